package filter

import (
	"fmt"
	"strings"
)

// Mode selects how keywords are applied.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeWhitelist Mode = "whitelist"
	ModeBlacklist Mode = "blacklist"
)

// ParseMode converts a configuration value into a Mode. An empty value means ModeNone.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeNone, nil
	case ModeNone, ModeWhitelist, ModeBlacklist:
		return m, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q", s)
	}
}

// Policy decides whether a message should be archived based on its sender and subject.
type Policy struct {
	Mode     Mode
	Keywords []string
}

// New creates a Policy.
func New(mode Mode, keywords []string) Policy {
	return Policy{Mode: mode, Keywords: keywords}
}

// ShouldProcess reports whether a message from sender with the given subject passes the filter.
// Keywords match case-insensitively as substrings of either field; the first match decides.
func (p Policy) ShouldProcess(sender, subject string) bool {
	if p.Mode == ModeNone || p.Mode == "" || len(p.Keywords) == 0 {
		return true
	}

	sender = strings.ToLower(sender)
	subject = strings.ToLower(subject)

	for _, kw := range p.Keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(sender, kw) || strings.Contains(subject, kw) {
			return p.Mode == ModeWhitelist
		}
	}
	return p.Mode == ModeBlacklist
}
