package receiver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
)

const imapDateLayout = "2-Jan-2006"

// ParseCriteria converts an IMAP SEARCH string (RFC 3501 section 6.4.4)
// into search criteria. Consecutive keys are combined with AND. An empty
// string matches every message.
func ParseCriteria(s string) (*imap.SearchCriteria, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}

	p := &criteriaParser{tokens: tokens}
	c := &imap.SearchCriteria{}
	for !p.done() {
		if err := p.key(c); err != nil {
			return nil, fmt.Errorf("search criteria %q: %w", s, err)
		}
	}
	return c, nil
}

type criteriaParser struct {
	tokens []token
	pos    int
}

type token struct {
	text   string
	quoted bool
}

func (p *criteriaParser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *criteriaParser) next() (token, bool) {
	if p.done() {
		return token{}, false
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, true
}

func (p *criteriaParser) arg(key string) (string, error) {
	t, ok := p.next()
	if !ok || (!t.quoted && (t.text == "(" || t.text == ")")) {
		return "", fmt.Errorf("%s: missing argument", key)
	}
	return t.text, nil
}

func (p *criteriaParser) date(key string) (time.Time, error) {
	s, err := p.arg(key)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(imapDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q", key, s)
	}
	return d, nil
}

func (p *criteriaParser) number(key string) (int64, error) {
	s, err := p.arg(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid number %q", key, s)
	}
	return n, nil
}

// key parses one search key and merges it into c.
func (p *criteriaParser) key(c *imap.SearchCriteria) error {
	t, ok := p.next()
	if !ok {
		return fmt.Errorf("unexpected end of criteria")
	}
	if t.quoted {
		return fmt.Errorf("unexpected string %q", t.text)
	}

	switch k := strings.ToUpper(t.text); k {
	case "(":
		for {
			if p.done() {
				return fmt.Errorf("unclosed parenthesis")
			}
			if nt := p.tokens[p.pos]; !nt.quoted && nt.text == ")" {
				p.pos++
				return nil
			}
			if err := p.key(c); err != nil {
				return err
			}
		}
	case ")":
		return fmt.Errorf("unexpected )")

	case "ALL":

	case "SEEN":
		c.Flag = append(c.Flag, imap.FlagSeen)
	case "UNSEEN":
		c.NotFlag = append(c.NotFlag, imap.FlagSeen)
	case "ANSWERED":
		c.Flag = append(c.Flag, imap.FlagAnswered)
	case "UNANSWERED":
		c.NotFlag = append(c.NotFlag, imap.FlagAnswered)
	case "FLAGGED":
		c.Flag = append(c.Flag, imap.FlagFlagged)
	case "UNFLAGGED":
		c.NotFlag = append(c.NotFlag, imap.FlagFlagged)
	case "DELETED":
		c.Flag = append(c.Flag, imap.FlagDeleted)
	case "UNDELETED":
		c.NotFlag = append(c.NotFlag, imap.FlagDeleted)
	case "DRAFT":
		c.Flag = append(c.Flag, imap.FlagDraft)
	case "UNDRAFT":
		c.NotFlag = append(c.NotFlag, imap.FlagDraft)
	case "KEYWORD", "UNKEYWORD":
		v, err := p.arg(k)
		if err != nil {
			return err
		}
		if k == "KEYWORD" {
			c.Flag = append(c.Flag, imap.Flag(v))
		} else {
			c.NotFlag = append(c.NotFlag, imap.Flag(v))
		}

	case "FROM", "TO", "CC", "BCC", "SUBJECT":
		v, err := p.arg(k)
		if err != nil {
			return err
		}
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{
			Key:   headerName(k),
			Value: v,
		})
	case "HEADER":
		field, err := p.arg(k)
		if err != nil {
			return err
		}
		v, err := p.arg(k)
		if err != nil {
			return err
		}
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: field, Value: v})
	case "BODY":
		v, err := p.arg(k)
		if err != nil {
			return err
		}
		c.Body = append(c.Body, v)
	case "TEXT":
		v, err := p.arg(k)
		if err != nil {
			return err
		}
		c.Text = append(c.Text, v)

	case "SINCE", "BEFORE", "ON", "SENTSINCE", "SENTBEFORE", "SENTON":
		d, err := p.date(k)
		if err != nil {
			return err
		}
		applyDate(c, k, d)

	case "LARGER":
		n, err := p.number(k)
		if err != nil {
			return err
		}
		if n > c.Larger {
			c.Larger = n
		}
	case "SMALLER":
		n, err := p.number(k)
		if err != nil {
			return err
		}
		if c.Smaller == 0 || n < c.Smaller {
			c.Smaller = n
		}

	case "NOT":
		sub := &imap.SearchCriteria{}
		if err := p.key(sub); err != nil {
			return fmt.Errorf("NOT: %w", err)
		}
		c.Not = append(c.Not, *sub)
	case "OR":
		var pair [2]imap.SearchCriteria
		for i := range pair {
			if err := p.key(&pair[i]); err != nil {
				return fmt.Errorf("OR: %w", err)
			}
		}
		c.Or = append(c.Or, pair)

	default:
		return fmt.Errorf("unsupported search key %q", t.text)
	}
	return nil
}

func headerName(key string) string {
	switch key {
	case "CC":
		return "Cc"
	case "BCC":
		return "Bcc"
	default:
		return key[:1] + strings.ToLower(key[1:])
	}
}

// applyDate narrows the date window of c; repeated keys intersect.
func applyDate(c *imap.SearchCriteria, key string, d time.Time) {
	since := func(dst *time.Time, v time.Time) {
		if dst.IsZero() || v.After(*dst) {
			*dst = v
		}
	}
	before := func(dst *time.Time, v time.Time) {
		if dst.IsZero() || v.Before(*dst) {
			*dst = v
		}
	}

	switch key {
	case "SINCE":
		since(&c.Since, d)
	case "BEFORE":
		before(&c.Before, d)
	case "ON":
		since(&c.Since, d)
		before(&c.Before, d.AddDate(0, 0, 1))
	case "SENTSINCE":
		since(&c.SentSince, d)
	case "SENTBEFORE":
		before(&c.SentBefore, d)
	case "SENTON":
		since(&c.SentSince, d)
		before(&c.SentBefore, d.AddDate(0, 0, 1))
	}
}

// tokenize splits s into atoms, double-quoted strings and parentheses.
func tokenize(s string) ([]token, error) {
	var (
		tokens []token
		cur    strings.Builder
		inAtom bool
	)
	flush := func() {
		if inAtom {
			tokens = append(tokens, token{text: cur.String()})
			cur.Reset()
			inAtom = false
		}
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			flush()
		case ch == '(' || ch == ')':
			flush()
			tokens = append(tokens, token{text: string(ch)})
		case ch == '"':
			flush()
			var q strings.Builder
			closed := false
			for i++; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					q.WriteByte(s[i])
					continue
				}
				if s[i] == '"' {
					closed = true
					break
				}
				q.WriteByte(s[i])
			}
			if !closed {
				return nil, fmt.Errorf("search criteria %q: unterminated string", s)
			}
			tokens = append(tokens, token{text: q.String(), quoted: true})
		default:
			cur.WriteByte(ch)
			inAtom = true
		}
	}
	flush()
	return tokens, nil
}
