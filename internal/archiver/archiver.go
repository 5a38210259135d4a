package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/tracyhatemice/mail2md/internal/config"
	"github.com/tracyhatemice/mail2md/internal/dedup"
	"github.com/tracyhatemice/mail2md/internal/document"
	"github.com/tracyhatemice/mail2md/internal/filter"
	"github.com/tracyhatemice/mail2md/internal/markdown"
	"github.com/tracyhatemice/mail2md/internal/message"
	"github.com/tracyhatemice/mail2md/internal/receiver"
)

// Stats summarises one pass over the mailbox.
type Stats struct {
	Found      int
	Saved      int
	Filtered   int
	Duplicates int
	Failed     int
}

// Archiver converts messages from one mailbox into Markdown documents.
type Archiver struct {
	cfg      config.Config
	receiver receiver.Receiver
	policy   filter.Policy
	fs       afero.Fs
	writer   *document.Writer
	logger   *slog.Logger
}

// New creates an Archiver writing to cfg.SavePath on fs.
func New(cfg config.Config, recv receiver.Receiver, fs afero.Fs, logger *slog.Logger) *Archiver {
	conv := markdown.Converter{Flatten: cfg.FlattenHTML}
	return &Archiver{
		cfg:      cfg,
		receiver: recv,
		policy:   cfg.Policy(),
		fs:       fs,
		writer:   document.New(fs, cfg.SavePath, conv, logger),
		logger:   logger,
	}
}

// Writer exposes the document writer, mainly so callers can adjust its clock.
func (a *Archiver) Writer() *document.Writer {
	return a.writer
}

// Run performs one pass, then repeats on the configured interval until ctx
// is cancelled. Without an interval it returns the result of the single pass.
func (a *Archiver) Run(ctx context.Context) error {
	_, err := a.RunOnce(ctx)

	interval := a.cfg.CheckInterval()
	if interval <= 0 {
		return err
	}
	if err != nil {
		a.logger.Error("pass failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return nil
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Error("pass failed", "error", err)
			}
		}
	}
}

// RunOnce scans the mailbox once. Only session-level failures are returned;
// problems with individual messages are logged and counted in Stats.
func (a *Archiver) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := a.fs.MkdirAll(a.cfg.SavePath, 0o755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}
	tracker, err := dedup.Load(a.fs, a.cfg.SavePath)
	if err != nil {
		return stats, err
	}
	a.logger.Info("existing documents", "dir", a.cfg.SavePath, "count", tracker.Count())

	provider := a.cfg.Provider
	if provider == "" {
		provider = a.cfg.Host
	}
	a.logger.Info("connecting", "provider", provider, "host", a.cfg.Host, "protocol", a.cfg.Protocol)

	defer func() {
		if err := a.receiver.Close(); err != nil {
			a.logger.Debug("logout failed", "error", err)
		}
	}()

	if err := a.receiver.Open(); err != nil {
		return stats, err
	}

	ids, err := a.receiver.Search()
	if err != nil {
		return stats, err
	}
	if max := a.cfg.MaxEmails; max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	stats.Found = len(ids)
	a.logger.Info(fmt.Sprintf("found %d email(s) to process", len(ids)), "max", a.cfg.MaxEmails)

	for _, id := range ids {
		if ctx.Err() != nil {
			a.logger.Warn("interrupted", "remaining", stats.Found-stats.processed())
			break
		}
		a.process(id, tracker, &stats)
	}

	a.logger.Info("processing complete",
		"found", stats.Found,
		"saved", stats.Saved,
		"filtered", stats.Filtered,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (s Stats) processed() int {
	return s.Saved + s.Filtered + s.Duplicates + s.Failed
}

func (a *Archiver) process(id uint32, tracker *dedup.Tracker, stats *Stats) {
	raw, err := a.receiver.Fetch(id)
	if err != nil {
		stats.Failed++
		a.logger.Error("fetch failed", "msg_id", id, "error", err)
		return
	}

	msg, err := message.Parse(raw)
	if err != nil {
		stats.Failed++
		a.logger.Error("parse failed", "msg_id", id, "error", err)
		return
	}
	for _, perr := range msg.PartErrors {
		a.logger.Warn("message partially decoded", "msg_id", id, "error", perr)
	}

	if !a.policy.ShouldProcess(msg.Sender(), msg.Subject) {
		stats.Filtered++
		a.logger.Info("filtered out", "msg_id", id, "mode", a.policy.Mode, "subject", truncate(msg.Subject, 50))
		return
	}

	doc := a.writer.Compose(msg)
	if tracker.Seen(doc.Filename) {
		stats.Duplicates++
		a.logger.Info("already exists, skipping", "msg_id", id, "file", doc.Filename)
		return
	}

	if err := a.writer.Save(doc); err != nil {
		stats.Failed++
		a.logger.Error("save failed", "msg_id", id, "file", doc.Filename, "error", err)
		return
	}
	tracker.MarkSeen(doc.Filename)
	stats.Saved++
	a.logger.Info("saved", "msg_id", id, "path", doc.Path, "attachments", len(doc.Attachments))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
