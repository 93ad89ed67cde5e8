package mailer

import (
	"errors"
	"fmt"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/hoasen-edu/preschool-api/pkg/config"
)

// Session is one open connection to the confirmation mailbox. Opening a
// session is expensive; callers hold exactly one per scan run and must Close
// it when the run finishes.
type Session interface {
	SearchUnseen() ([]imap.UID, error)
	Fetch(uid imap.UID) ([]byte, error)
	MarkSeen(uid imap.UID) error
	Close() error
}

// Mailbox hands out sessions against the inbound mailbox.
type Mailbox interface {
	Connect() (Session, error)
}

// IMAPMailbox dials the configured IMAP server.
type IMAPMailbox struct {
	cfg config.IMAPConfig
}

// NewIMAPMailbox builds a mailbox from config.
func NewIMAPMailbox(cfg config.IMAPConfig) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg}
}

// Connect dials, authenticates and selects the configured folder.
func (m *IMAPMailbox) Connect() (Session, error) {
	if m.cfg.Host == "" {
		return nil, errors.New("imap mailbox missing host")
	}
	if m.cfg.User == "" || m.cfg.Password == "" {
		return nil, errors.New("imap mailbox missing credentials")
	}

	port := m.cfg.Port
	if port == 0 {
		if m.cfg.TLS {
			port = 993
		} else {
			port = 143
		}
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, port)
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: m.cfg.DialTimeout}}

	var client *imapclient.Client
	var err error
	if m.cfg.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}

	if err := client.Login(m.cfg.User, m.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap auth: %w", err)
	}

	folder := m.cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap select %s: %w", folder, err)
	}

	return &imapSession{client: client}, nil
}

type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) SearchUnseen() ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	return data.AllUIDs(), nil
}

func (s *imapSession) Fetch(uid imap.UID) ([]byte, error) {
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := s.client.Fetch(imap.UIDSetNum(uid), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, err)
	}
	if len(buffers) == 0 {
		return nil, fmt.Errorf("imap fetch %d: message not found", uid)
	}
	body := buffers[0].FindBodySection(&imap.FetchItemBodySection{})
	if body == nil {
		return nil, fmt.Errorf("imap fetch %d: empty body", uid)
	}
	return append([]byte(nil), body...), nil
}

func (s *imapSession) MarkSeen(uid imap.UID) error {
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagSeen}}
	if err := s.client.Store(imap.UIDSetNum(uid), store, nil).Close(); err != nil {
		return fmt.Errorf("imap mark seen %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		_ = s.client.Close()
		return fmt.Errorf("imap logout: %w", err)
	}
	return s.client.Close()
}
