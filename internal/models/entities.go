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
	"database/sql"

	"github.com/fweidner/postarchiv/internal/criterion"
)

// AccountEntity is the entity for the "accounts" table. It holds the
// connection profile for one remote mail provider.
type AccountEntity struct {
	ID       int64    `db:"id"`
	Name     string   `db:"name"`
	Protocol Protocol `db:"protocol"`
	Host     string   `db:"host"`
	// Port is the remote port. Zero means the protocol default.
	Port     int    `db:"port"`
	Username string `db:"username"`
	Password string `db:"password"`
	// TimeoutSeconds is the per-call socket timeout. Null means no timeout.
	TimeoutSeconds sql.NullInt64 `db:"timeout_seconds"`
	Health         Health        `db:"health"`
	CreatedAt      int64         `db:"created_at"`
	UpdatedAt      int64         `db:"updated_at"`
}

// MailboxEntity is the entity for the "mailboxes" table. A mailbox is one
// named folder within an accounts namespace.
type MailboxEntity struct {
	ID        int64       `db:"id"`
	AccountID int64       `db:"account_id"`
	Name      string      `db:"name"`
	Kind      MailboxKind `db:"kind"`
	// StoreRaw controls whether the raw rfc822 message is archived as a blob.
	StoreRaw bool `db:"store_raw"`
	// StoreAttachments controls whether attachment blobs are archived.
	StoreAttachments bool   `db:"store_attachments"`
	Health           Health `db:"health"`
}

// RoutineEntity is the entity for the "routines" table. A routine binds a
// fetch schedule and criterion to exactly one mailbox.
type RoutineEntity struct {
	ID        int64  `db:"id"`
	UUID      string `db:"uuid"`
	MailboxID int64  `db:"mailbox_id"`

	Criterion    criterion.Criterion `db:"criterion"`
	CriterionArg string              `db:"criterion_arg"`

	IntervalUnit       IntervalUnit `db:"interval_unit"`
	IntervalMultiplier int          `db:"interval_multiplier"`
	// RestartSeconds is the delay before a crashed routine is rescheduled.
	RestartSeconds int64 `db:"restart_seconds"`

	Running   bool          `db:"running"`
	Health    Health        `db:"health"`
	LastError string        `db:"last_error"`
	LastRunAt sql.NullInt64 `db:"last_run_at"`
}

// EmailEntity is the entity for the "emails" table. The protocol message-id
// is unique per archive, which makes ingestion idempotent.
type EmailEntity struct {
	ID        int64  `db:"id"`
	MailboxID int64  `db:"mailbox_id"`
	MessageID string `db:"message_id"`
	Subject   string `db:"subject"`
	// SentAt is the parsed date header as unix seconds.
	SentAt     int64 `db:"sent_at"`
	ArchivedAt int64 `db:"archived_at"`
	// RawPath points to the stored rfc822 blob, if the mailbox policy
	// enables raw storage and the write succeeded.
	RawPath  sql.NullString `db:"raw_path"`
	TextBody string         `db:"text_body"`
	HTMLBody string         `db:"html_body"`
	// Flags is the remote flag snapshot at fetch time, space separated.
	Flags string `db:"flags"`
	Spam  bool   `db:"spam"`
	// BlobsMissing marks an email whose metadata was persisted although one
	// or more blob writes failed.
	BlobsMissing bool `db:"blobs_missing"`
}

// CorrespondentEntity is the entity for the "correspondents" table. The
// address is the dedup key, the display name is the latest one seen.
type CorrespondentEntity struct {
	ID          int64  `db:"id"`
	Address     string `db:"address"`
	DisplayName string `db:"display_name"`
}

// EmailCorrespondentEntity is the entity for the "email_correspondents"
// link table. (email, correspondent, role) is unique.
type EmailCorrespondentEntity struct {
	EmailID         int64 `db:"email_id"`
	CorrespondentID int64 `db:"correspondent_id"`
	Role            Role  `db:"role"`
}

// AttachmentEntity is the entity for the "attachments" table.
type AttachmentEntity struct {
	ID          int64  `db:"id"`
	EmailID     int64  `db:"email_id"`
	Filename    string `db:"filename"`
	ContentType string `db:"content_type"`
	Size        int64  `db:"size"`
	// Path points to the stored blob. Null if the blob write failed or the
	// mailbox policy disables attachment storage.
	Path sql.NullString `db:"path"`
}

// ReferenceEntity is the entity for the "email_references" table. It records
// one message-id mentioned in the threading headers of an email, so that a
// later arriving parent can find its already archived children.
type ReferenceEntity struct {
	EmailID   int64  `db:"email_id"`
	MessageID string `db:"message_id"`
}

// ConversationEdgeEntity is the entity for the "conversation_edges" table.
// Edges are stored in both directions; the conversation of an email is the
// transitive closure over this adjacency.
type ConversationEdgeEntity struct {
	EmailID   int64 `db:"email_id"`
	RelatedID int64 `db:"related_id"`
}

// BucketEntity is the entity for the "storage_buckets" table. A bucket is a
// numbered blob subdirectory capped at a maximum file count.
type BucketEntity struct {
	ID        int64 `db:"id"`
	Number    int64 `db:"number"`
	FileCount int64 `db:"file_count"`
	Current   bool  `db:"current"`
}

// AllocationEntity is the entity for the "storage_allocations" table. It
// makes path allocation idempotent per logical name.
type AllocationEntity struct {
	LogicalName string `db:"logical_name"`
	Path        string `db:"path"`
}
