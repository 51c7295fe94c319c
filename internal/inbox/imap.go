package inbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// IMAPDialer connects to an IMAP server over TLS.
type IMAPDialer struct {
	addr   string
	logger *logging.Logger
}

var _ Dialer = (*IMAPDialer)(nil)

func NewIMAPDialer(addr string, logger *logging.Logger) *IMAPDialer {
	if logger == nil {
		logger = logging.Default()
	}
	return &IMAPDialer{addr: addr, logger: logger}
}

func (d *IMAPDialer) Dial(ctx context.Context, account Account) (Mailbox, error) {
	if d.addr == "" {
		return nil, errors.New("inbox: imap addr is required")
	}
	if account.Email == "" || account.Password == "" {
		return nil, errors.New("inbox: imap username/password is required")
	}
	host, _, err := net.SplitHostPort(d.addr)
	if err != nil {
		return nil, fmt.Errorf("inbox: imap addr %q: %w", d.addr, err)
	}

	c, err := imapclient.DialTLS(d.addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host},
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: imap dial tls: %w", err)
	}
	// Unblocks pending commands if the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	if err := c.Login(account.Email, account.Password).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("inbox: imap login %s: %w", account.Email, err)
	}
	if _, err := c.Select("INBOX", &imap.SelectOptions{}).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("inbox: imap select inbox: %w", err)
	}
	return &imapMailbox{client: c, stop: stop, account: account.Email, logger: d.logger}, nil
}

type imapMailbox struct {
	client  *imapclient.Client
	stop    func() bool
	account string
	logger  *logging.Logger
}

// FetchUnseen uses BODY.PEEK[] so fetched messages stay unseen until MarkSeen.
func (m *imapMailbox) FetchUnseen(ctx context.Context, since time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	if !since.IsZero() {
		criteria.Since = since
	}
	searchData, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("inbox: imap uid search unseen: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// Oldest first so replies land on the lead in arrival order.
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodyAll := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetchCmd := m.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]Message, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("inbox: imap fetch collect: %w", err)
		}

		msg := Message{UID: uint32(buf.UID), Date: buf.InternalDate}
		if buf.Envelope != nil {
			msg.Subject = buf.Envelope.Subject
			if !buf.Envelope.Date.IsZero() {
				msg.Date = buf.Envelope.Date
			}
			if len(buf.Envelope.From) > 0 {
				msg.From = strings.TrimSpace(buf.Envelope.From[0].Addr())
			}
		}
		if raw := buf.FindBodySection(bodyAll); len(raw) > 0 {
			parsed, err := ParseMessage(raw)
			if err != nil {
				m.logger.Warn("reply body parse failed", "mailbox", m.account, "uid", msg.UID, "error", err)
			}
			msg.Text = parsed.Text
			if msg.From == "" {
				msg.From = parsed.From
			}
			if msg.Subject == "" {
				msg.Subject = parsed.Subject
			}
		}
		out = append(out, msg)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("inbox: imap fetch close: %w", err)
	}
	return out, nil
}

func (m *imapMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	set := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		set = append(set, imap.UID(uid))
	}
	cmd := m.client.Store(imap.UIDSetNum(set...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("inbox: imap store add seen: %w", err)
	}
	return nil
}

func (m *imapMailbox) Close() error {
	m.stop()
	if err := m.client.Logout().Wait(); err != nil {
		m.logger.Warn("imap logout failed", "mailbox", m.account, "error", err)
	}
	return m.client.Close()
}
