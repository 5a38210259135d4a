package archiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/mail2md/internal/config"
)

type fakeReceiver struct {
	messages map[uint32][]byte
	ids      []uint32
	openErr  error
	fetchErr map[uint32]error
	opened   bool
	closed   int
}

func (f *fakeReceiver) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeReceiver) Search() ([]uint32, error) {
	if !f.opened {
		return nil, errors.New("not open")
	}
	return f.ids, nil
}

func (f *fakeReceiver) Fetch(id uint32) ([]byte, error) {
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	raw, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("no message %d", id)
	}
	return raw, nil
}

func (f *fakeReceiver) Close() error {
	f.closed++
	f.opened = false
	return nil
}

func (f *fakeReceiver) add(id uint32, raw []byte) {
	if f.messages == nil {
		f.messages = make(map[uint32][]byte)
	}
	f.messages[id] = raw
	f.ids = append(f.ids, id)
}

func rawMessage(from, subject, date, body string) []byte {
	return []byte("From: " + from + "\r\n" +
		"To: me@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: " + date + "\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}

const testDate = "Mon, 15 Jan 2024 10:30:00 +0000"

func testConfig() config.Config {
	return config.Config{
		Protocol: "imap",
		Host:     "imap.example.com",
		SavePath: "/out",
	}
}

func newTestArchiver(cfg config.Config, recv *fakeReceiver) (*Archiver, afero.Fs) {
	fs := afero.NewMemMapFs()
	a := New(cfg, recv, fs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.Writer().SetClock(func() time.Time {
		return time.Date(2025, 3, 1, 8, 0, 5, 0, time.UTC)
	})
	return a, fs
}

func TestRunOnceSavesDocument(t *testing.T) {
	recv := &fakeReceiver{}
	recv.add(1, rawMessage("Alice <alice@example.com>", "Test", testDate, "<h2>Hello</h2><p>world</p>"))

	a, fs := newTestArchiver(testConfig(), recv)
	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stats{Found: 1, Saved: 1}, stats)
	assert.Equal(t, 1, recv.closed)

	data, err := afero.ReadFile(fs, "/out/20240115_103000_Test.md")
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# Test")
	assert.Contains(t, content, "- **From**: Alice (alice@example.com)")
	assert.Contains(t, content, "## Hello")
	assert.Contains(t, content, "world")
}

func TestRunOnceFilter(t *testing.T) {
	recv := &fakeReceiver{}
	recv.add(1, rawMessage("alerts@jpm.com", "Statement", testDate, "<p>a</p>"))
	recv.add(2, rawMessage("news@shop.com", "Sale", testDate, "<p>b</p>"))

	cfg := testConfig()
	cfg.Filter = config.Filter{Mode: "whitelist", Keywords: []string{"JPM"}}

	a, fs := newTestArchiver(cfg, recv)
	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 2, Saved: 1, Filtered: 1}, stats)

	ok, err := afero.Exists(fs, "/out/20240115_103000_Statement.md")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fs, "/out/20240115_103000_Sale.md")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunOnceDuplicateInSameRun(t *testing.T) {
	recv := &fakeReceiver{}
	recv.add(1, rawMessage("a@example.com", "Report", testDate, "<p>first</p>"))
	recv.add(2, rawMessage("a@example.com", "Report", testDate, "<p>second</p>"))

	a, fs := newTestArchiver(testConfig(), recv)
	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 2, Saved: 1, Duplicates: 1}, stats)

	data, err := afero.ReadFile(fs, "/out/20240115_103000_Report.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")

	entries, err := afero.Glob(fs, "/out/*.md")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunOncePreservesExistingDocument(t *testing.T) {
	recv := &fakeReceiver{}
	recv.add(1, rawMessage("a@example.com", "Report", testDate, "<p>new</p>"))

	a, fs := newTestArchiver(testConfig(), recv)
	require.NoError(t, afero.WriteFile(fs, "/out/20240115_103000_Report.md", []byte("old"), 0o644))

	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 1, Duplicates: 1}, stats)

	data, err := afero.ReadFile(fs, "/out/20240115_103000_Report.md")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestRunOnceIsolatesMessageFailures(t *testing.T) {
	recv := &fakeReceiver{fetchErr: map[uint32]error{2: errors.New("connection reset")}}
	recv.add(1, rawMessage("a@example.com", "One", testDate, "<p>1</p>"))
	recv.add(2, rawMessage("a@example.com", "Two", testDate, "<p>2</p>"))
	recv.add(3, []byte("not a header line\r\n"))
	recv.add(4, rawMessage("a@example.com", "Four", testDate, "<p>4</p>"))

	a, fs := newTestArchiver(testConfig(), recv)
	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 4, Saved: 2, Failed: 2}, stats)

	for _, name := range []string{"20240115_103000_One.md", "20240115_103000_Four.md"} {
		ok, err := afero.Exists(fs, "/out/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestRunOnceOpenFailure(t *testing.T) {
	recv := &fakeReceiver{openErr: errors.New("authentication failed")}

	a, _ := newTestArchiver(testConfig(), recv)
	_, err := a.RunOnce(context.Background())
	assert.ErrorContains(t, err, "authentication failed")
	assert.Equal(t, 1, recv.closed)
}

func TestRunOnceMaxEmails(t *testing.T) {
	recv := &fakeReceiver{}
	for i, subject := range []string{"A", "B", "C", "D"} {
		recv.add(uint32(i+1), rawMessage("a@example.com", subject, testDate, "<p>x</p>"))
	}

	cfg := testConfig()
	cfg.MaxEmails = 2

	a, fs := newTestArchiver(cfg, recv)
	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 2, Saved: 2}, stats)

	entries, err := afero.Glob(fs, "/out/*.md")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/out/20240115_103000_C.md", "/out/20240115_103000_D.md"}, entries)
}

func TestRunOnceCancelled(t *testing.T) {
	recv := &fakeReceiver{}
	recv.add(1, rawMessage("a@example.com", "A", testDate, "<p>x</p>"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, _ := newTestArchiver(testConfig(), recv)
	stats, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 1}, stats)
}

func TestRunSinglePassReturnsError(t *testing.T) {
	recv := &fakeReceiver{openErr: errors.New("refused")}

	a, _ := newTestArchiver(testConfig(), recv)
	assert.Error(t, a.Run(context.Background()))
}

func TestRunPollsUntilCancelled(t *testing.T) {
	recv := &fakeReceiver{openErr: errors.New("refused")}
	cfg := testConfig()
	cfg.CheckIntervalSeconds = 3600

	a, _ := newTestArchiver(cfg, recv)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "日本...", truncate("日本語", 2))
}
