package receiver

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPReceiver reads messages from one IMAP/IMAPS folder.
type IMAPReceiver struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	folder   string
	criteria string
	logger   *slog.Logger

	client *imapclient.Client
}

// NewIMAP creates a new IMAP receiver. criteria is an IMAP SEARCH string such as "UNSEEN SINCE 1-Jan-2024".
func NewIMAP(host string, port int, username, password string, useTLS bool, folder, criteria string, logger *slog.Logger) *IMAPReceiver {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPReceiver{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		folder:   folder,
		criteria: criteria,
		logger:   logger,
	}
}

func (r *IMAPReceiver) Open() error {
	addr := net.JoinHostPort(r.host, fmt.Sprintf("%d", r.port))

	var err error
	if r.useTLS {
		r.client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: r.host},
		})
	} else {
		r.client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("imap connect %s: %w", addr, err)
	}

	if err := r.client.Login(r.username, r.password).Wait(); err != nil {
		return fmt.Errorf("imap login %s: %w", r.username, err)
	}
	r.logger.Info("login successful", "username", r.username)

	data, err := r.client.Select(r.folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("imap select %s: %w", r.folder, err)
	}
	r.logger.Info("selected folder", "folder", r.folder, "messages", data.NumMessages)
	return nil
}

func (r *IMAPReceiver) Search() ([]uint32, error) {
	if r.client == nil {
		return nil, errors.New("imap session not open")
	}

	criteria, err := ParseCriteria(r.criteria)
	if err != nil {
		return nil, err
	}

	data, err := r.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]uint32, len(uids))
	for i, uid := range uids {
		ids[i] = uint32(uid)
	}
	return ids, nil
}

func (r *IMAPReceiver) Fetch(id uint32) ([]byte, error) {
	if r.client == nil {
		return nil, errors.New("imap session not open")
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	buffers, err := r.client.Fetch(imap.UIDSetNum(imap.UID(id)), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch uid %d: %w", id, err)
	}
	if len(buffers) == 0 {
		return nil, fmt.Errorf("imap fetch uid %d: message not found", id)
	}

	content := buffers[0].FindBodySection(bodySection)
	if len(content) == 0 {
		return nil, fmt.Errorf("imap fetch uid %d: empty body", id)
	}
	return content, nil
}

func (r *IMAPReceiver) Close() error {
	if r.client == nil {
		return nil
	}
	defer func() { r.client = nil }()

	err := r.client.Logout().Wait()
	_ = r.client.Close()
	return err
}
