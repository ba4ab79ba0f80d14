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

// Package archive sequences one fetch cycle: adapter, parser, blob storage,
// persistence and conversation linking.
package archive

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/blobs"
	"github.com/fweidner/postarchiv/internal/conversation"
	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/fetcher"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/mailparse"
	"github.com/fweidner/postarchiv/internal/models"
)

func init() {
	viper.SetDefault("ingest.fetch.limit", 0)
	viper.SetDefault("ingest.criterion.default", "ALL")
}

// CycleOutcome is the result of one fetch cycle. A cycle counts as successful
// when the connection and listing succeeded, individual message failures are
// reported in Failed without escalating.
type CycleOutcome struct {
	// Processed is the number of newly archived emails.
	Processed int
	// Skipped counts already archived and spam discarded messages.
	Skipped int
	// Failed counts messages that could not be archived.
	Failed int
	// Err is set when the cycle itself failed.
	Err error
}

// Archiver runs fetch cycles against remote mailboxes.
type Archiver struct {
	conn             database.Conn
	registry         *fetcher.Registry
	emailDao         database.EmailDao
	correspondentDao database.CorrespondentDao
	attachmentDao    database.AttachmentDao
	resolver         *conversation.Resolver
	allocator        *blobs.Allocator
	store            *blobs.Store
	policy           mailparse.Policy

	clock func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(
	conn database.Conn,
	registry *fetcher.Registry,
	emailDao database.EmailDao,
	correspondentDao database.CorrespondentDao,
	attachmentDao database.AttachmentDao,
	resolver *conversation.Resolver,
	allocator *blobs.Allocator,
	store *blobs.Store,
	policy mailparse.Policy,
) *Archiver {
	return &Archiver{
		conn:             conn,
		registry:         registry,
		emailDao:         emailDao,
		correspondentDao: correspondentDao,
		attachmentDao:    attachmentDao,
		resolver:         resolver,
		allocator:        allocator,
		store:            store,
		policy:           policy,
		clock:            time.Now,
	}
}

// DefaultCriterion returns the configured fallback criterion for a mailbox
// kind. It is substituted when a routine requests a criterion the protocol
// does not support.
func DefaultCriterion(kind models.MailboxKind) criterion.Criterion {
	value := viper.GetString("ingest.criterion." + string(kind))
	if value == "" {
		value = viper.GetString("ingest.criterion.default")
	}

	c := criterion.Criterion(strings.ToUpper(value))
	if !c.IsKnown() || c.NeedsArgument() {
		return criterion.All
	}

	return c
}

// RunCycle fetches all messages matching the criterion from one remote
// mailbox and archives them. The context is checked between messages, so
// cancellation never interrupts a message mid-write.
func (a *Archiver) RunCycle(
	ctx context.Context,
	account *models.AccountEntity,
	mailbox *models.MailboxEntity,
	crit criterion.Criterion,
	argument string,
) (outcome CycleOutcome) {
	ctx = log.WithAccount(ctx, account.ID)
	ctx = log.WithMailbox(ctx, mailbox.ID)

	dialer, err := a.registry.Dialer(account.Protocol)
	if err != nil {
		outcome.Err = err
		return
	}

	query, err := a.translate(ctx, dialer, mailbox, crit, argument)
	if err != nil {
		outcome.Err = err
		return
	}

	client, err := dialer.Dial(ctx, account)
	if err != nil {
		outcome.Err = err
		return
	}

	defer client.Close()

	messages, err := client.Fetch(ctx, mailbox.Name, query,
		viper.GetInt("ingest.fetch.limit"))
	if err != nil {
		outcome.Err = err
		return
	}

	defer messages.Close()

	for {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			return
		}

		raw, err := messages.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			outcome.Err = err
			return
		}

		archived, err := a.archiveMessage(ctx, mailbox, raw)

		switch {
		case errors.Is(err, mailparse.ErrSpamDiscarded):
			outcome.Skipped++
		case err != nil:
			log.ErrorContext(ctx).
				Err(err).
				Msg("could not archive message")

			outcome.Failed++
		case !archived:
			outcome.Skipped++
		default:
			outcome.Processed++
		}
	}

	log.InfoContext(ctx).
		Int("processed", outcome.Processed).
		Int("skipped", outcome.Skipped).
		Int("failed", outcome.Failed).
		Msg("finished fetch cycle")

	return
}

// translate resolves the criterion against the adapters capability set,
// substituting the mailbox default when unsupported.
func (a *Archiver) translate(
	ctx context.Context,
	dialer fetcher.Dialer,
	mailbox *models.MailboxEntity,
	crit criterion.Criterion,
	argument string,
) (criterion.Query, error) {
	caps := dialer.Capabilities()

	query, err := criterion.Translate(crit, argument, caps, a.clock())
	if errors.Is(err, criterion.ErrUnsupported) {
		fallback := DefaultCriterion(mailbox.Kind)

		log.WarnContext(ctx).
			Str("criterion", string(crit)).
			Str("fallback", string(fallback)).
			Msg("criterion not supported by protocol")

		return criterion.Translate(fallback, "", caps, a.clock())
	}

	return query, err
}

// archiveMessage parses and persists one raw message inside a transaction.
// It reports false without error when the message is already archived.
func (a *Archiver) archiveMessage(
	ctx context.Context,
	mailbox *models.MailboxEntity,
	raw *fetcher.RawMessage,
) (bool, error) {
	parsed, err := mailparse.Parse(raw.Body, a.policy)
	if err != nil {
		return false, err
	}

	ctx = log.WithMessageID(ctx, parsed.MessageID)

	for _, partErr := range parsed.PartErrors {
		log.WarnContext(ctx).
			Err(partErr).
			Msg("skipped undecodable mime part")
	}

	exists, err := a.emailDao.ExistsMessageID(ctx, a.conn, parsed.MessageID)
	if err != nil {
		return false, err
	}

	if exists {
		log.DebugContext(ctx).Msg("message already archived")
		return false, nil
	}

	tx, err := a.conn.Begin(ctx)
	if err != nil {
		return false, err
	}

	defer tx.RollbackWith(func() {
		log.WarnContext(ctx).Msg("rolled back message archive")
	})

	email, err := a.persistEmail(ctx, tx, mailbox, parsed, raw)
	if err != nil {
		return false, err
	}

	if _, err := a.resolver.Link(ctx, tx, email.ID, parsed.MessageID,
		parsed.References); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (a *Archiver) persistEmail(
	ctx context.Context,
	tx database.Tx,
	mailbox *models.MailboxEntity,
	parsed *mailparse.Email,
	raw *fetcher.RawMessage,
) (*models.EmailEntity, error) {
	now := a.clock().Unix()

	email := models.EmailEntity{
		MailboxID:  mailbox.ID,
		MessageID:  parsed.MessageID,
		Subject:    parsed.Subject,
		SentAt:     parsed.Date.Unix(),
		ArchivedAt: now,
		TextBody:   parsed.TextBody,
		HTMLBody:   parsed.HTMLBody,
		Flags:      strings.Join(raw.Flags, " "),
		Spam:       parsed.Spam,
	}

	if parsed.Date.IsZero() {
		email.SentAt = now
	}

	if mailbox.StoreRaw {
		path, err := a.storeBlob(ctx, tx, parsed.MessageID+".eml", raw.Body)
		if err != nil {
			log.WarnContext(ctx).
				Err(err).
				Msg("could not store raw message, archiving metadata only")

			email.BlobsMissing = true
		} else {
			email.RawPath = sql.NullString{String: path, Valid: true}
		}
	}

	if err := a.emailDao.Insert(ctx, tx, &email); err != nil {
		return nil, err
	}

	if err := a.persistCorrespondents(ctx, tx, &email, parsed); err != nil {
		return nil, err
	}

	blobsMissing, err := a.persistAttachments(ctx, tx, mailbox, &email, parsed)
	if err != nil {
		return nil, err
	}

	if blobsMissing && !email.BlobsMissing {
		if err := a.emailDao.UpdateBlobsMissing(ctx, tx, email.ID, true); err != nil {
			return nil, err
		}
	}

	return &email, nil
}

func (a *Archiver) persistCorrespondents(
	ctx context.Context,
	tx database.Tx,
	email *models.EmailEntity,
	parsed *mailparse.Email,
) error {
	for _, address := range parsed.Addresses {
		correspondent := models.CorrespondentEntity{
			Address:     address.Address,
			DisplayName: address.Name,
		}

		if err := a.correspondentDao.Upsert(ctx, tx, &correspondent); err != nil {
			return err
		}

		link := models.EmailCorrespondentEntity{
			EmailID:         email.ID,
			CorrespondentID: correspondent.ID,
			Role:            address.Role,
		}

		if err := a.correspondentDao.Link(ctx, tx, &link); err != nil {
			return err
		}
	}

	return nil
}

func (a *Archiver) persistAttachments(
	ctx context.Context,
	tx database.Tx,
	mailbox *models.MailboxEntity,
	email *models.EmailEntity,
	parsed *mailparse.Email,
) (blobsMissing bool, err error) {
	for i, attachment := range parsed.Attachments {
		record := models.AttachmentEntity{
			EmailID:     email.ID,
			Filename:    attachment.Filename,
			ContentType: attachment.ContentType,
			Size:        attachment.Size,
		}

		if mailbox.StoreAttachments {
			logicalName := fmt.Sprintf("%s.%d.%s",
				parsed.MessageID, i+1, attachment.Filename)

			path, err := a.storeBlob(ctx, tx, logicalName, attachment.Content)
			if err != nil {
				log.WarnContext(ctx).
					Err(err).
					Str("filename", attachment.Filename).
					Msg("could not store attachment")

				blobsMissing = true
			} else {
				record.Path = sql.NullString{String: path, Valid: true}
			}
		}

		if err := a.attachmentDao.Insert(ctx, tx, &record); err != nil {
			return blobsMissing, err
		}
	}

	return blobsMissing, nil
}

func (a *Archiver) storeBlob(
	ctx context.Context,
	q database.Queryer,
	logicalName string,
	content []byte,
) (string, error) {
	path, err := a.allocator.Allocate(ctx, q, logicalName)
	if err != nil {
		return "", err
	}

	if _, err := a.store.Write(ctx, path, bytes.NewReader(content)); err != nil {
		return "", err
	}

	return path, nil
}
