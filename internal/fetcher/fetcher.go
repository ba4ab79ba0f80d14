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
	"io"

	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/models"
)

// MailboxInfo describes a remote mailbox as reported by the server.
type MailboxInfo struct {
	// Name is the protocol native mailbox name.
	Name string
	// Total is the number of messages, if the protocol reports one.
	Total uint32
}

// RawMessage is one unparsed message as delivered by a protocol adapter.
type RawMessage struct {
	// UID identifies the message within its source mailbox for the duration
	// of the session. Zero when the protocol has no stable identifier.
	UID uint32
	// Flags is the remote flag snapshot at fetch time.
	Flags []string
	// Body is the full rfc822 message.
	Body []byte
}

// Messages iterates lazily over fetched messages. Next returns io.EOF after
// the last message. Close must be called regardless of iteration progress.
type Messages interface {
	Next() (*RawMessage, error)
	Close() error
}

// Client is an authenticated session with a remote mail server. A client is
// not safe for concurrent use.
type Client interface {
	// Mailboxes lists the mailboxes visible to the account.
	Mailboxes(ctx context.Context) ([]MailboxInfo, error)
	// Fetch retrieves the messages of a mailbox matching a query. A limit
	// greater than zero caps the number of messages. The returned iterator
	// must be closed before the client is used again.
	Fetch(ctx context.Context, mailbox string, query criterion.Query, limit int) (Messages, error)
	// Restore uploads a raw message back into a remote mailbox. Adapters
	// without an upload operation return ErrRestoreUnsupported.
	Restore(ctx context.Context, mailbox string, raw []byte) error
	// Close terminates the session.
	Close() error
}

// Dialer creates clients for one protocol.
type Dialer interface {
	// Protocol reports which protocol the dialer implements.
	Protocol() models.Protocol
	// Capabilities reports the criteria the protocol can evaluate remotely.
	Capabilities() criterion.Set
	// Dial connects and authenticates using the accounts profile.
	Dial(ctx context.Context, account *models.AccountEntity) (Client, error)
}

// Registry resolves accounts to their protocol dialer.
type Registry struct {
	dialers map[models.Protocol]Dialer
}

// NewRegistry creates a registry over the given dialers.
func NewRegistry(dialers ...Dialer) *Registry {
	m := make(map[models.Protocol]Dialer, len(dialers))

	for _, d := range dialers {
		m[d.Protocol()] = d
	}

	return &Registry{dialers: m}
}

// Dialer returns the dialer for a protocol.
func (r *Registry) Dialer(protocol models.Protocol) (Dialer, error) {
	d, ok := r.dialers[protocol]
	if !ok {
		return nil, ErrServiceUnknown
	}

	return d, nil
}

// Test dials an account and lists its mailboxes to verify connectivity and
// credentials.
func (r *Registry) Test(ctx context.Context, account *models.AccountEntity) error {
	d, err := r.Dialer(account.Protocol)
	if err != nil {
		return err
	}

	client, err := d.Dial(ctx, account)
	if err != nil {
		return err
	}

	defer client.Close()

	_, err = client.Mailboxes(ctx)
	return err
}

// sliceMessages is a Messages implementation over an in-memory slice.
type sliceMessages struct {
	messages []RawMessage
	index    int
}

func (s *sliceMessages) Next() (*RawMessage, error) {
	if s.index >= len(s.messages) {
		return nil, io.EOF
	}

	message := &s.messages[s.index]
	s.index++

	return message, nil
}

func (s *sliceMessages) Close() error {
	return nil
}
