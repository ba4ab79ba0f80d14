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

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type fieldAccount struct{}
type fieldMailbox struct{}
type fieldRoutine struct{}
type fieldMessageID struct{}

// WithAccount adds the account identifier to the context.
func WithAccount(ctx context.Context, account int64) context.Context {
	return context.WithValue(ctx, fieldAccount{}, account)
}

// WithMailbox adds the mailbox identifier to the context.
func WithMailbox(ctx context.Context, mailbox int64) context.Context {
	return context.WithValue(ctx, fieldMailbox{}, mailbox)
}

// WithRoutine adds the routine uuid to the context.
func WithRoutine(ctx context.Context, routine string) context.Context {
	return context.WithValue(ctx, fieldRoutine{}, routine)
}

// WithMessageID adds the protocol message-id to the context.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, fieldMessageID{}, messageID)
}

// appendContextFields adds defined fields in the context to the log event.
func appendContextFields(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	if account, ok := ctx.Value(fieldAccount{}).(int64); ok {
		event.Int64("account", account)
	}

	if mailbox, ok := ctx.Value(fieldMailbox{}).(int64); ok {
		event.Int64("mailbox", mailbox)
	}

	if routine, ok := ctx.Value(fieldRoutine{}).(string); ok {
		event.Str("routine", routine)
	}

	if messageID, ok := ctx.Value(fieldMessageID{}).(string); ok {
		event.Str("messageId", messageID)
	}

	return event
}
