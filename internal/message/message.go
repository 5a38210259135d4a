package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/spf13/afero"
)

// Address is a display name and mailbox pair.
type Address struct {
	Name    string
	Address string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Address)
}

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string // as declared by the sender, may be empty
	ContentType string
	Payload     []byte // transfer-decoded part body
}

// Message is the parsed form of a raw RFC 5322 message.
type Message struct {
	Subject     string
	From        []Address
	To          []Address
	Date        time.Time // zero when absent or unparseable
	Text        string
	HTML        string
	Attachments []Attachment

	// PartErrors holds problems hit while reading body parts. The message
	// is still usable; affected parts are missing or undecoded.
	PartErrors []error
}

// Sender returns the address of the first From entry, or "".
func (m *Message) Sender() string {
	if len(m.From) == 0 {
		return ""
	}
	return m.From[0].Address
}

// ParseFile reads and parses a stored .eml file.
func ParseFile(fs afero.Fs, path string) (*Message, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read message file: %w", err)
	}
	return Parse(raw)
}

// Parse reads raw message bytes. It fails only when the header block cannot
// be read; body problems are collected in PartErrors.
func Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return nil, fmt.Errorf("read message header: %w", err)
	}
	defer mr.Close()

	msg := &Message{}
	if err != nil {
		if !gomessage.IsUnknownCharset(err) {
			return nil, fmt.Errorf("read message header: %w", err)
		}
		msg.PartErrors = append(msg.PartErrors, err)
	}

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
		msg.PartErrors = append(msg.PartErrors, fmt.Errorf("decode subject: %w", err))
	}
	msg.From = addressList(mr.Header, "From")
	msg.To = addressList(mr.Header, "To")
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if part == nil || !gomessage.IsUnknownCharset(err) {
				msg.PartErrors = append(msg.PartErrors, fmt.Errorf("read part: %w", err))
				break
			}
			msg.PartErrors = append(msg.PartErrors, err)
		}

		if err := msg.addPart(part, len(msg.Attachments)); err != nil {
			msg.PartErrors = append(msg.PartErrors, err)
		}
	}

	return msg, nil
}

func (m *Message) addPart(part *mail.Part, index int) error {
	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("read inline part %s: %w", contentType, err)
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if m.Text == "" {
				m.Text = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if m.HTML == "" {
				m.HTML = string(body)
			}
		case strings.HasPrefix(contentType, "multipart/"):
		default:
			// Inline images and other embedded files are kept as attachments.
			att := &mail.AttachmentHeader{Header: h.Header}
			filename, _ := att.Filename()
			m.Attachments = append(m.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Payload:     body,
			})
		}

	case *mail.AttachmentHeader:
		filename, _ := h.Filename()
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("read attachment %d %q: %w", index, filename, err)
		}
		m.Attachments = append(m.Attachments, Attachment{
			Filename:    filename,
			ContentType: contentType,
			Payload:     body,
		})
	}
	return nil
}

func addressList(h mail.Header, key string) []Address {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]Address, 0, len(list))
	for _, a := range list {
		out = append(out, Address{Name: a.Name, Address: a.Address})
	}
	return out
}
