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

package database

import (
	"context"

	"github.com/fweidner/postarchiv/internal/models"
)

// EmailDao is a data access object for all email related queries.
type EmailDao interface {
	// Insert inserts a new email.
	Insert(context.Context, Queryer, *models.EmailEntity) error
	// FindByID returns the email with the given id.
	FindByID(context.Context, Queryer, int64) (*models.EmailEntity, error)
	// FindByMessageID returns the email with the given message-id.
	FindByMessageID(context.Context, Queryer, string) (*models.EmailEntity, error)
	// FindByMailbox returns all emails of a mailbox ordered by sent date.
	FindByMailbox(context.Context, Queryer, int64) ([]models.EmailEntity, error)
	// ExistsMessageID checks if an email with the message-id is already archived.
	ExistsMessageID(context.Context, Queryer, string) (bool, error)
	// UpdateBlobsMissing sets the blobs-missing flag of an email.
	UpdateBlobsMissing(context.Context, Queryer, int64, bool) error
}

// emailDao is the sqlite implementation of EmailDao.
type emailDao struct{}

// NewEmailDao creates a new EmailDao.
func NewEmailDao() EmailDao {
	return emailDao{}
}

func (emailDao) Insert(ctx context.Context, q Queryer, email *models.EmailEntity) error {
	const query = `
		insert into "emails" (
			"mailbox_id" ,
			"message_id" ,
			"subject" ,
			"sent_at" ,
			"archived_at" ,
			"raw_path" ,
			"text_body" ,
			"html_body" ,
			"flags" ,
			"spam" ,
			"blobs_missing"
		) values (
			:mailbox_id ,
			:message_id ,
			:subject ,
			:sent_at ,
			:archived_at ,
			:raw_path ,
			:text_body ,
			:html_body ,
			:flags ,
			:spam ,
			:blobs_missing
		) ;
	`

	result, err := execNamed(ctx, q, query, email)
	if err != nil {
		return err
	}

	if err := ensureRowsAffected(result); err != nil {
		return err
	}

	email.ID, err = result.LastInsertId()
	return err
}

func (emailDao) FindByID(ctx context.Context, q Queryer, id int64) (*models.EmailEntity, error) {
	const query = `
		select *
		from "emails"
		where "id" = $1
		limit 1 ;
	`

	var email models.EmailEntity

	if err := selectOne(ctx, q, &email, query, id); err != nil {
		return nil, err
	}

	return &email, nil
}

func (emailDao) FindByMessageID(
	ctx context.Context,
	q Queryer,
	messageID string,
) (*models.EmailEntity, error) {
	const query = `
		select *
		from "emails"
		where "message_id" = $1
		limit 1 ;
	`

	var email models.EmailEntity

	if err := selectOne(ctx, q, &email, query, messageID); err != nil {
		return nil, err
	}

	return &email, nil
}

func (emailDao) FindByMailbox(
	ctx context.Context,
	q Queryer,
	mailboxID int64,
) ([]models.EmailEntity, error) {
	const query = `
		select *
		from "emails"
		where "mailbox_id" = $1
		order by "sent_at" desc, "id" desc ;
	`

	var emailSlice []models.EmailEntity

	if err := selectSlice(ctx, q, &emailSlice, query, mailboxID); err != nil {
		return nil, err
	}

	return emailSlice, nil
}

func (emailDao) ExistsMessageID(
	ctx context.Context,
	q Queryer,
	messageID string,
) (bool, error) {
	const query = `
		select count(*)
		from "emails"
		where "message_id" = $1 ;
	`

	var count int64

	if err := selectOne(ctx, q, &count, query, messageID); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (emailDao) UpdateBlobsMissing(
	ctx context.Context,
	q Queryer,
	id int64,
	missing bool,
) error {
	const query = `
		update "emails"
		set "blobs_missing" = $1
		where "id" = $2 ;
	`

	result, err := execPositional(ctx, q, query, missing, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}
