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

package models

import (
	"strings"
	"time"
)

// Protocol identifies the remote access protocol of an account.
type Protocol string

const (
	ProtocolIMAP     Protocol = "imap"
	ProtocolPOP3     Protocol = "pop3"
	ProtocolExchange Protocol = "exchange"
	ProtocolJMAP     Protocol = "jmap"
)

// Health is the tri-state health of an account, mailbox or routine.
type Health string

const (
	// HealthUnknown means no probe or fetch has completed yet.
	HealthUnknown Health = "unknown"
	HealthGood    Health = "good"
	HealthBad     Health = "bad"
)

// MailboxKind classifies a mailbox by the conventional meaning of its name.
type MailboxKind string

const (
	KindInbox  MailboxKind = "inbox"
	KindOutbox MailboxKind = "outbox"
	KindSent   MailboxKind = "sent"
	KindDrafts MailboxKind = "drafts"
	KindJunk   MailboxKind = "junk"
	KindTrash  MailboxKind = "trash"
	KindCustom MailboxKind = "custom"
)

var kindsByName = map[string]MailboxKind{
	"inbox":         KindInbox,
	"outbox":        KindOutbox,
	"sent":          KindSent,
	"sent items":    KindSent,
	"sent messages": KindSent,
	"drafts":        KindDrafts,
	"draft":         KindDrafts,
	"junk":          KindJunk,
	"spam":          KindJunk,
	"junk e-mail":   KindJunk,
	"trash":         KindTrash,
	"deleted":       KindTrash,
	"deleted items": KindTrash,
}

// ClassifyMailboxKind derives the kind from a mailbox name. Nested folders
// are classified by their last path segment. Unrecognized names are custom.
func ClassifyMailboxKind(name string) MailboxKind {
	segment := name

	if i := strings.LastIndexAny(name, "/."); i >= 0 {
		segment = name[i+1:]
	}

	if kind, ok := kindsByName[strings.ToLower(strings.TrimSpace(segment))]; ok {
		return kind
	}

	return KindCustom
}

// Role is the position of a correspondent on an email.
type Role string

const (
	RoleFrom Role = "from"
	RoleTo   Role = "to"
	RoleCc   Role = "cc"
	RoleBcc  Role = "bcc"
)

// IntervalUnit is the base unit of a routine schedule.
type IntervalUnit string

const (
	UnitMinute IntervalUnit = "minute"
	UnitHour   IntervalUnit = "hour"
	UnitDay    IntervalUnit = "day"
	UnitWeek   IntervalUnit = "week"
)

// Duration resolves the unit together with a multiplier into a duration.
// Unknown units fall back to hours.
func (u IntervalUnit) Duration(multiplier int) time.Duration {
	if multiplier < 1 {
		multiplier = 1
	}

	base := time.Hour

	switch u {
	case UnitMinute:
		base = time.Minute
	case UnitHour:
		base = time.Hour
	case UnitDay:
		base = 24 * time.Hour
	case UnitWeek:
		base = 7 * 24 * time.Hour
	}

	return time.Duration(multiplier) * base
}
