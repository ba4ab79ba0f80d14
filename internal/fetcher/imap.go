// Copyright (C) 2025  Fabian Weidner <fweidner@mailbox.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

const imapDefaultPort = 993

// flagRecent is not part of the go-imap v2 flag constants anymore, because
// IMAP4rev2 dropped it. Servers still report it.
const flagRecent = imap.Flag("\\Recent")

// imapDialer implements Dialer over IMAP4 with implicit TLS.
type imapDialer struct{}

// NewIMAPDialer creates a Dialer for IMAP accounts.
func NewIMAPDialer() Dialer {
	return imapDialer{}
}

func (imapDialer) Protocol() models.Protocol {
	return models.ProtocolIMAP
}

func (imapDialer) Capabilities() criterion.Set {
	return criterion.NewSet(
		criterion.All,
		criterion.Recent,
		criterion.Seen,
		criterion.Unseen,
		criterion.Flagged,
		criterion.Unflagged,
		criterion.Draft,
		criterion.Undraft,
		criterion.Answered,
		criterion.Unanswered,
		criterion.Deleted,
		criterion.Undeleted,
		criterion.New,
		criterion.Old,

		criterion.Daily,
		criterion.Weekly,
		criterion.Monthly,
		criterion.Annually,

		criterion.From,
		criterion.Body,
		criterion.Subject,
		criterion.Keyword,
		criterion.Unkeyword,
		criterion.Larger,
		criterion.Smaller,
		criterion.SentSince,
	)
}

func (imapDialer) Dial(ctx context.Context, account *models.AccountEntity) (Client, error) {
	addr := hostport(account, imapDefaultPort)

	log.DebugContext(ctx).
		Str("addr", addr).
		Msg("dialing imap server")

	netDialer := net.Dialer{Timeout: accountTimeout(account)}

	conn, err := tls.DialWithDialer(&netDialer, "tcp", addr, nil)
	if err != nil {
		return nil, connErr(err)
	}

	client := imapclient.New(conn, nil)

	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		client.Close()
		return nil, authErr(err)
	}

	return &imapClient{client: client}, nil
}

type imapClient struct {
	client *imapclient.Client
}

func (c *imapClient) Mailboxes(ctx context.Context) ([]MailboxInfo, error) {
	listCmd := c.client.List("", "*", &imap.ListOptions{
		ReturnStatus: &imap.StatusOptions{NumMessages: true},
	})

	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, connErr(err)
	}

	infos := make([]MailboxInfo, 0, len(mailboxes))

	for _, mailbox := range mailboxes {
		info := MailboxInfo{Name: mailbox.Mailbox}

		if mailbox.Status != nil && mailbox.Status.NumMessages != nil {
			info.Total = *mailbox.Status.NumMessages
		}

		infos = append(infos, info)
	}

	return infos, nil
}

func (c *imapClient) Fetch(
	ctx context.Context,
	mailbox string,
	query criterion.Query,
	limit int,
) (Messages, error) {
	if _, err := c.client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMailboxNotFound, mailbox, err)
	}

	criteria, err := imapSearchCriteria(query)
	if err != nil {
		return nil, err
	}

	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, connErr(err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return &sliceMessages{}, nil
	}

	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}

	fetchCmd := c.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})

	return &imapMessages{fetchCmd: fetchCmd, bodySection: bodySection}, nil
}

func (c *imapClient) Restore(ctx context.Context, mailbox string, raw []byte) error {
	appendCmd := c.client.Append(mailbox, int64(len(raw)), nil)

	if _, err := appendCmd.Write(raw); err != nil {
		appendCmd.Close()
		return connErr(err)
	}

	if err := appendCmd.Close(); err != nil {
		return connErr(err)
	}

	if _, err := appendCmd.Wait(); err != nil {
		return connErr(err)
	}

	return nil
}

func (c *imapClient) Close() error {
	if err := c.client.Logout().Wait(); err != nil {
		return c.client.Close()
	}

	return nil
}

// imapMessages adapts a running fetch command to the Messages iterator. The
// body sections are collected one message at a time.
type imapMessages struct {
	fetchCmd    *imapclient.FetchCommand
	bodySection *imap.FetchItemBodySection
}

func (m *imapMessages) Next() (*RawMessage, error) {
	msg := m.fetchCmd.Next()
	if msg == nil {
		return nil, io.EOF
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, connErr(err)
	}

	raw := RawMessage{
		UID:  uint32(buf.UID),
		Body: buf.FindBodySection(m.bodySection),
	}

	for _, flag := range buf.Flags {
		raw.Flags = append(raw.Flags, string(flag))
	}

	return &raw, nil
}

func (m *imapMessages) Close() error {
	return m.fetchCmd.Close()
}

// imapSearchCriteria translates a resolved query into the native search
// grammar. Dates are truncated to day precision by the wire format.
func imapSearchCriteria(query criterion.Query) (*imap.SearchCriteria, error) {
	var criteria imap.SearchCriteria

	switch query.Criterion {
	case criterion.All:
		// No restriction.

	case criterion.Recent:
		criteria.Flag = []imap.Flag{flagRecent}
	case criterion.Seen:
		criteria.Flag = []imap.Flag{imap.FlagSeen}
	case criterion.Unseen:
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	case criterion.Flagged:
		criteria.Flag = []imap.Flag{imap.FlagFlagged}
	case criterion.Unflagged:
		criteria.NotFlag = []imap.Flag{imap.FlagFlagged}
	case criterion.Draft:
		criteria.Flag = []imap.Flag{imap.FlagDraft}
	case criterion.Undraft:
		criteria.NotFlag = []imap.Flag{imap.FlagDraft}
	case criterion.Answered:
		criteria.Flag = []imap.Flag{imap.FlagAnswered}
	case criterion.Unanswered:
		criteria.NotFlag = []imap.Flag{imap.FlagAnswered}
	case criterion.Deleted:
		criteria.Flag = []imap.Flag{imap.FlagDeleted}
	case criterion.Undeleted:
		criteria.NotFlag = []imap.Flag{imap.FlagDeleted}
	case criterion.New:
		criteria.Flag = []imap.Flag{flagRecent}
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	case criterion.Old:
		criteria.NotFlag = []imap.Flag{flagRecent}

	case criterion.Daily, criterion.Weekly, criterion.Monthly, criterion.Annually:
		criteria.Since = truncateToDay(query.Since)
	case criterion.SentSince:
		criteria.SentSince = truncateToDay(query.Since)

	case criterion.From:
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "From", Value: query.Argument}}
	case criterion.Subject:
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: query.Argument}}
	case criterion.Body:
		criteria.Body = []string{query.Argument}
	case criterion.Keyword:
		criteria.Flag = []imap.Flag{imap.Flag(query.Argument)}
	case criterion.Unkeyword:
		criteria.NotFlag = []imap.Flag{imap.Flag(query.Argument)}

	case criterion.Larger:
		size, err := strconv.ParseInt(query.Argument, 10, 64)
		if err != nil {
			return nil, err
		}

		criteria.Larger = size
	case criterion.Smaller:
		size, err := strconv.ParseInt(query.Argument, 10, 64)
		if err != nil {
			return nil, err
		}

		criteria.Smaller = size

	default:
		return nil, criterion.ErrUnsupported
	}

	return &criteria, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func hostport(account *models.AccountEntity, defaultPort int) string {
	port := account.Port
	if port == 0 {
		port = defaultPort
	}

	return net.JoinHostPort(account.Host, strconv.Itoa(port))
}

func accountTimeout(account *models.AccountEntity) time.Duration {
	if account.TimeoutSeconds.Valid {
		return time.Duration(account.TimeoutSeconds.Int64) * time.Second
	}

	return 0
}
