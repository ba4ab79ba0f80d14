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

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/blobs"
	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/fetcher"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

func init() {
	viper.SetDefault("ingest.mailboxes.ignored", []string{})
	viper.SetDefault("ingest.defaults.storeraw", true)
	viper.SetDefault("ingest.defaults.storeattachments", true)
}

// ErrRawUnavailable is returned when a restore is requested for an email
// whose raw message was never stored.
var ErrRawUnavailable = errors.New("archive: no raw message stored")

// RemoteMailbox describes one folder discovered on a remote account.
type RemoteMailbox struct {
	Name  string
	Kind  models.MailboxKind
	Total uint32
}

// Service is the contract consumed by the administrative layer and the
// routine scheduler.
type Service struct {
	conn       database.Conn
	registry   *fetcher.Registry
	accountDao database.AccountDao
	mailboxDao database.MailboxDao
	emailDao   database.EmailDao
	store      *blobs.Store
	archiver   *Archiver
}

// NewService creates a Service.
func NewService(
	conn database.Conn,
	registry *fetcher.Registry,
	accountDao database.AccountDao,
	mailboxDao database.MailboxDao,
	emailDao database.EmailDao,
	store *blobs.Store,
	archiver *Archiver,
) *Service {
	return &Service{
		conn:       conn,
		registry:   registry,
		accountDao: accountDao,
		mailboxDao: mailboxDao,
		emailDao:   emailDao,
		store:      store,
		archiver:   archiver,
	}
}

// TestAccount verifies connectivity and credentials of an account. The
// health of an already persisted account is updated with the result.
func (s *Service) TestAccount(ctx context.Context, account *models.AccountEntity) error {
	err := s.registry.Test(ctx, account)

	if account.ID != 0 {
		health := models.HealthGood
		if err != nil {
			health = models.HealthBad
		}

		if updateErr := s.accountDao.UpdateHealth(ctx, s.conn,
			account.ID, health); updateErr != nil {
			log.ErrorContext(ctx).
				Err(updateErr).
				Msg("could not update account health")
		}
	}

	return err
}

// ListRemoteMailboxes enumerates the folders of a remote account, classified
// by kind and filtered by the configured ignore patterns.
func (s *Service) ListRemoteMailboxes(
	ctx context.Context,
	account *models.AccountEntity,
) ([]RemoteMailbox, error) {
	dialer, err := s.registry.Dialer(account.Protocol)
	if err != nil {
		return nil, err
	}

	client, err := dialer.Dial(ctx, account)
	if err != nil {
		return nil, err
	}

	defer client.Close()

	infos, err := client.Mailboxes(ctx)
	if err != nil {
		return nil, err
	}

	ignored := viper.GetStringSlice("ingest.mailboxes.ignored")
	remote := make([]RemoteMailbox, 0, len(infos))

	for _, info := range infos {
		if isIgnoredMailbox(info.Name, ignored) {
			continue
		}

		remote = append(remote, RemoteMailbox{
			Name:  info.Name,
			Kind:  models.ClassifyMailboxKind(info.Name),
			Total: info.Total,
		})
	}

	return remote, nil
}

// isIgnoredMailbox matches a folder name against the ignore patterns. A
// pattern matches case-insensitively anywhere in the name, so "spam" covers
// "Spam", "INBOX/Spam" and "[Gmail] Spam" alike.
func isIgnoredMailbox(name string, patterns []string) bool {
	name = strings.ToLower(name)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		if strings.Contains(name, strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

// TestMailbox verifies that a mailbox still exists on its remote account and
// updates its health with the result.
func (s *Service) TestMailbox(ctx context.Context, mailbox *models.MailboxEntity) error {
	err := s.probeMailbox(ctx, mailbox)

	health := models.HealthGood
	if err != nil {
		health = models.HealthBad
	}

	if updateErr := s.mailboxDao.UpdateHealth(ctx, s.conn,
		mailbox.ID, health); updateErr != nil {
		log.ErrorContext(ctx).
			Err(updateErr).
			Msg("could not update mailbox health")
	}

	return err
}

func (s *Service) probeMailbox(ctx context.Context, mailbox *models.MailboxEntity) error {
	account, err := s.accountDao.FindByID(ctx, s.conn, mailbox.AccountID)
	if err != nil {
		return err
	}

	remote, err := s.ListRemoteMailboxes(ctx, account)
	if err != nil {
		return err
	}

	for _, info := range remote {
		if info.Name == mailbox.Name {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", fetcher.ErrMailboxNotFound, mailbox.Name)
}

// RunFetchCycle runs one fetch cycle for a persisted mailbox and records the
// resulting health on the mailbox and its account. Connectivity and auth
// failures mark both unhealthy, per-message failures do not.
func (s *Service) RunFetchCycle(
	ctx context.Context,
	mailboxID int64,
	crit criterion.Criterion,
	argument string,
) CycleOutcome {
	mailbox, err := s.mailboxDao.FindByID(ctx, s.conn, mailboxID)
	if err != nil {
		return CycleOutcome{Err: err}
	}

	account, err := s.accountDao.FindByID(ctx, s.conn, mailbox.AccountID)
	if err != nil {
		return CycleOutcome{Err: err}
	}

	outcome := s.archiver.RunCycle(ctx, account, mailbox, crit, argument)

	switch {
	case outcome.Err == nil:
		s.updateHealth(ctx, account, mailbox, models.HealthGood)
	case fetcher.IsHealthAffecting(outcome.Err):
		s.updateHealth(ctx, account, mailbox, models.HealthBad)
	}

	return outcome
}

func (s *Service) updateHealth(
	ctx context.Context,
	account *models.AccountEntity,
	mailbox *models.MailboxEntity,
	health models.Health,
) {
	if err := s.mailboxDao.UpdateHealth(ctx, s.conn, mailbox.ID, health); err != nil {
		log.ErrorContext(ctx).
			Err(err).
			Msg("could not update mailbox health")
	}

	if err := s.accountDao.UpdateHealth(ctx, s.conn, account.ID, health); err != nil {
		log.ErrorContext(ctx).
			Err(err).
			Msg("could not update account health")
	}
}

// RestoreEmail reinjects an archived email into its live remote mailbox. It
// requires the raw message blob and a protocol with restore support.
func (s *Service) RestoreEmail(ctx context.Context, emailID int64) error {
	email, err := s.emailDao.FindByID(ctx, s.conn, emailID)
	if err != nil {
		return err
	}

	ctx = log.WithMessageID(ctx, email.MessageID)

	if !email.RawPath.Valid {
		return ErrRawUnavailable
	}

	reader, err := s.store.Reader(email.RawPath.String)
	if err != nil {
		return err
	}

	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	mailbox, err := s.mailboxDao.FindByID(ctx, s.conn, email.MailboxID)
	if err != nil {
		return err
	}

	account, err := s.accountDao.FindByID(ctx, s.conn, mailbox.AccountID)
	if err != nil {
		return err
	}

	dialer, err := s.registry.Dialer(account.Protocol)
	if err != nil {
		return err
	}

	client, err := dialer.Dial(ctx, account)
	if err != nil {
		return err
	}

	defer client.Close()

	log.InfoContext(ctx).
		Str("mailbox", mailbox.Name).
		Msg("restoring email")

	return client.Restore(ctx, mailbox.Name, raw)
}
