// Package document turns parsed messages into Markdown files with a
// sibling attachment directory.
//
// A message with subject "Test" sent at 2024-01-15 10:30:00 UTC becomes
//
//	{dir}/20240115_103000_Test.md
//	{dir}/20240115_103000_Test/{attachment files}
package document

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tracyhatemice/mail2md/internal/markdown"
	"github.com/tracyhatemice/mail2md/internal/message"
)

const (
	timestampLayout = "20060102_150405"
	dateLayout      = "2006-01-02 15:04:05"
	defaultSubject  = "No Subject"
)

// Document is a rendered message ready to be saved.
type Document struct {
	Timestamp     string
	SafeSubject   string
	Filename      string // {Timestamp}_{SafeSubject}.md
	Path          string
	AttachmentDir string // Path without the .md extension
	Content       string
	Attachments   []File
}

// File is an attachment as it will be written to the attachment directory.
type File struct {
	Name    string
	Payload []byte
}

// Writer renders and saves documents under one output directory.
type Writer struct {
	fs        afero.Fs
	dir       string
	converter markdown.Converter
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Writer that stores documents in dir.
func New(fs afero.Fs, dir string, converter markdown.Converter, logger *slog.Logger) *Writer {
	return &Writer{
		fs:        fs,
		dir:       dir,
		converter: converter,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for messages without a date.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// ErrExists is returned by Write when the document file is already present.
var ErrExists = errors.New("document already exists")

// Write composes and saves msg. An existing document is left untouched and
// ErrExists is returned together with the composed document.
func (w *Writer) Write(msg *message.Message) (*Document, error) {
	doc := w.Compose(msg)
	exists, err := afero.Exists(w.fs, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("stat document %s: %w", doc.Filename, err)
	}
	if exists {
		return doc, fmt.Errorf("%s: %w", doc.Filename, ErrExists)
	}
	if err := w.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Compose renders msg without touching the filesystem.
func (w *Writer) Compose(msg *message.Message) *Document {
	subject := msg.Subject
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject
	}

	ts := Timestamp(msg.Date, w.now())
	safe := SafeName(subject)
	filename := ts + "_" + safe + ".md"
	base := strings.TrimSuffix(filename, ".md")

	doc := &Document{
		Timestamp:     ts,
		SafeSubject:   safe,
		Filename:      filename,
		Path:          filepath.Join(w.dir, filename),
		AttachmentDir: filepath.Join(w.dir, base),
		Attachments:   attachmentFiles(msg.Attachments),
	}
	doc.Content = w.render(msg, subject, base, doc.Attachments)
	return doc
}

// Save writes the document and its attachments. Attachment failures are
// logged and do not fail the document.
func (w *Writer) Save(doc *Document) error {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := afero.WriteFile(w.fs, doc.Path, []byte(doc.Content), 0o644); err != nil {
		return fmt.Errorf("write document %s: %w", doc.Filename, err)
	}

	if len(doc.Attachments) == 0 {
		return nil
	}

	if err := w.fs.MkdirAll(doc.AttachmentDir, 0o755); err != nil {
		w.logger.Error("create attachment dir failed", "dir", doc.AttachmentDir, "error", err)
		return nil
	}

	for _, f := range doc.Attachments {
		data, decoded := DecodePayload(f.Payload)
		path := filepath.Join(doc.AttachmentDir, f.Name)
		if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
			w.logger.Error("save attachment failed", "file", f.Name, "error", err)
			continue
		}
		w.logger.Debug("saved attachment", "path", path, "bytes", len(data), "base64", decoded)
	}
	return nil
}

func (w *Writer) render(msg *message.Message, subject, base string, files []File) string {
	lines := []string{
		"# " + subject,
		"",
		"## Sender Info",
	}

	if len(msg.From) > 0 {
		lines = append(lines, "- **From**: "+msg.From[0].String())
	}

	var to []string
	for _, a := range msg.To {
		if a.Address != "" {
			to = append(to, a.String())
		}
	}
	if len(to) > 0 {
		lines = append(lines, "- **To**: "+strings.Join(to, ", "))
	}

	if !msg.Date.IsZero() {
		lines = append(lines, "- **Date**: "+msg.Date.UTC().Format(dateLayout))
	}

	lines = append(lines, "", "## Email Body")
	switch {
	case strings.TrimSpace(msg.Text) != "":
		lines = append(lines, strings.TrimRight(strings.ReplaceAll(msg.Text, "\r\n", "\n"), "\n"))
	case msg.HTML != "":
		lines = append(lines, w.converter.ToMarkdown(msg.HTML))
	}

	if len(files) > 0 {
		lines = append(lines, "", "## Attachments")
		for _, f := range files {
			lines = append(lines, fmt.Sprintf("- [%s](%s)", f.Name, linkTarget(base+"/"+f.Name)))
		}
	}

	return strings.Join(lines, "\n")
}

// Timestamp formats date at second precision in UTC, using now when date is zero.
func Timestamp(date, now time.Time) string {
	if date.IsZero() {
		date = now
	}
	return date.UTC().Format(timestampLayout)
}

func linkTarget(target string) string {
	if strings.ContainsAny(target, " ()") {
		return "<" + target + ">"
	}
	return target
}
