package receiver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	pop3client "github.com/knadh/go-pop3"
)

// POP3Receiver reads messages from a POP3/POP3S maildrop. POP3 has no
// folders or server-side search; every message in the maildrop matches.
type POP3Receiver struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger

	conn *pop3client.Conn
}

// NewPOP3 creates a new POP3 receiver.
func NewPOP3(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *POP3Receiver {
	return &POP3Receiver{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

func (r *POP3Receiver) Open() error {
	addr := net.JoinHostPort(r.host, fmt.Sprintf("%d", r.port))

	client := pop3client.New(pop3client.Opt{
		Host:       r.host,
		Port:       r.port,
		TLSEnabled: r.useTLS,
	})
	conn, err := client.NewConn()
	if err != nil {
		return fmt.Errorf("pop3 connect %s: %w", addr, err)
	}
	r.conn = conn

	if err := conn.Auth(r.username, r.password); err != nil {
		return fmt.Errorf("pop3 auth %s: %w", r.username, err)
	}
	r.logger.Info("login successful", "username", r.username)
	return nil
}

func (r *POP3Receiver) Search() ([]uint32, error) {
	if r.conn == nil {
		return nil, errors.New("pop3 session not open")
	}

	msgs, err := r.conn.List(0)
	if err != nil {
		return nil, fmt.Errorf("pop3 list: %w", err)
	}

	ids := make([]uint32, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, uint32(m.ID))
	}
	return ids, nil
}

func (r *POP3Receiver) Fetch(id uint32) ([]byte, error) {
	if r.conn == nil {
		return nil, errors.New("pop3 session not open")
	}

	buf, err := r.conn.RetrRaw(int(id))
	if err != nil {
		return nil, fmt.Errorf("pop3 retrieve %d: %w", id, err)
	}
	return buf.Bytes(), nil
}

func (r *POP3Receiver) Close() error {
	if r.conn == nil {
		return nil
	}
	defer func() { r.conn = nil }()
	return r.conn.Quit()
}
