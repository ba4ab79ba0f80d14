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
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"

	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

const pop3DefaultPort = 995

// pop3MailboxName is the one mailbox a pop3 account exposes.
const pop3MailboxName = "INBOX"

// pop3Dialer implements Dialer over POP3 with implicit TLS. The protocol has
// a single mailbox, no server side search and no upload.
type pop3Dialer struct{}

// NewPOP3Dialer creates a Dialer for POP3 accounts.
func NewPOP3Dialer() Dialer {
	return pop3Dialer{}
}

func (pop3Dialer) Protocol() models.Protocol {
	return models.ProtocolPOP3
}

func (pop3Dialer) Capabilities() criterion.Set {
	return criterion.NewSet(criterion.All)
}

func (pop3Dialer) Dial(ctx context.Context, account *models.AccountEntity) (Client, error) {
	addr := hostport(account, pop3DefaultPort)

	log.DebugContext(ctx).
		Str("addr", addr).
		Msg("dialing pop3 server")

	netDialer := net.Dialer{Timeout: accountTimeout(account)}

	conn, err := tls.DialWithDialer(&netDialer, "tcp", addr, nil)
	if err != nil {
		return nil, connErr(err)
	}

	client := &pop3Client{
		conn: conn,
		text: textproto.NewConn(conn),
	}

	if _, err := client.readResponse(); err != nil {
		client.Close()
		return nil, err
	}

	if err := client.login(account.Username, account.Password); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

type pop3Client struct {
	conn net.Conn
	text *textproto.Conn
}

// readResponse reads a single line status response. An -ERR status is
// returned as an error with the servers message.
func (c *pop3Client) readResponse() (string, error) {
	line, err := c.text.ReadLine()
	if err != nil {
		return "", connErr(err)
	}

	if !strings.HasPrefix(line, "+OK") {
		return "", fmt.Errorf("pop3: %s", strings.TrimPrefix(line, "-ERR "))
	}

	return strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
}

func (c *pop3Client) command(format string, args ...any) (string, error) {
	if err := c.text.PrintfLine(format, args...); err != nil {
		return "", connErr(err)
	}

	return c.readResponse()
}

func (c *pop3Client) login(username, password string) error {
	if _, err := c.command("USER %s", username); err != nil {
		return loginErr(err)
	}

	if _, err := c.command("PASS %s", password); err != nil {
		return loginErr(err)
	}

	return nil
}

// loginErr classifies a failed USER/PASS exchange. Only a server rejection is
// a credential problem, transport failures keep their taxonomy.
func loginErr(err error) error {
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) {
		return err
	}

	return authErr(err)
}

// stat returns the number of messages in the maildrop.
func (c *pop3Client) stat() (int, error) {
	status, err := c.command("STAT")
	if err != nil {
		return 0, err
	}

	var count, size int

	if _, err := fmt.Sscanf(status, "%d %d", &count, &size); err != nil {
		return 0, fmt.Errorf("pop3: malformed stat response %q: %w", status, err)
	}

	return count, nil
}

func (c *pop3Client) Mailboxes(ctx context.Context) ([]MailboxInfo, error) {
	count, err := c.stat()
	if err != nil {
		return nil, err
	}

	return []MailboxInfo{{Name: pop3MailboxName, Total: uint32(count)}}, nil
}

func (c *pop3Client) Fetch(
	ctx context.Context,
	mailbox string,
	query criterion.Query,
	limit int,
) (Messages, error) {
	if mailbox != pop3MailboxName {
		return nil, fmt.Errorf("%w: %q", ErrMailboxNotFound, mailbox)
	}

	if query.Criterion != criterion.All {
		return nil, criterion.ErrUnsupported
	}

	count, err := c.stat()
	if err != nil {
		return nil, err
	}

	first := 1
	if limit > 0 && count > limit {
		first = count - limit + 1
	}

	return &pop3Messages{client: c, next: first, last: count}, nil
}

func (c *pop3Client) Restore(ctx context.Context, mailbox string, raw []byte) error {
	return ErrRestoreUnsupported
}

func (c *pop3Client) Close() error {
	c.command("QUIT")
	return c.text.Close()
}

// pop3Messages retrieves messages one RETR at a time.
type pop3Messages struct {
	client *pop3Client
	next   int
	last   int
}

func (m *pop3Messages) Next() (*RawMessage, error) {
	if m.next > m.last {
		return nil, io.EOF
	}

	number := m.next
	m.next++

	if _, err := m.client.command("RETR %d", number); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(m.client.text.DotReader())
	if err != nil {
		return nil, connErr(err)
	}

	return &RawMessage{UID: uint32(number), Body: body}, nil
}

func (m *pop3Messages) Close() error {
	return nil
}
