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

// MailboxDao is a data access object for all mailbox related queries.
type MailboxDao interface {
	// Insert inserts a new mailbox.
	Insert(context.Context, Queryer, *models.MailboxEntity) error
	// Update updates an existing mailbox.
	Update(context.Context, Queryer, *models.MailboxEntity) error
	// Delete deletes an existing mailbox.
	Delete(context.Context, Queryer, *models.MailboxEntity) error
	// FindByID returns the mailbox with the given id.
	FindByID(context.Context, Queryer, int64) (*models.MailboxEntity, error)
	// FindByAccount returns all mailboxes of an account.
	FindByAccount(context.Context, Queryer, int64) ([]models.MailboxEntity, error)
	// FindByName returns the mailbox of an account with the given name.
	FindByName(context.Context, Queryer, int64, string) (*models.MailboxEntity, error)
	// UpdateHealth sets the health of a mailbox.
	UpdateHealth(context.Context, Queryer, int64, models.Health) error
}

// mailboxDao is the sqlite implementation of MailboxDao.
type mailboxDao struct{}

// NewMailboxDao creates a new MailboxDao.
func NewMailboxDao() MailboxDao {
	return mailboxDao{}
}

func (mailboxDao) Insert(ctx context.Context, q Queryer, mailbox *models.MailboxEntity) error {
	const query = `
		insert into "mailboxes" (
			"account_id" ,
			"name" ,
			"kind" ,
			"store_raw" ,
			"store_attachments" ,
			"health"
		) values (
			:account_id ,
			:name ,
			:kind ,
			:store_raw ,
			:store_attachments ,
			:health
		) ;
	`

	result, err := execNamed(ctx, q, query, mailbox)
	if err != nil {
		return err
	}

	if err := ensureRowsAffected(result); err != nil {
		return err
	}

	mailbox.ID, err = result.LastInsertId()
	return err
}

func (mailboxDao) Update(ctx context.Context, q Queryer, mailbox *models.MailboxEntity) error {
	const query = `
		update "mailboxes"
		set "name" = :name ,
		    "kind" = :kind ,
		    "store_raw" = :store_raw ,
		    "store_attachments" = :store_attachments ,
		    "health" = :health
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, mailbox)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (mailboxDao) Delete(ctx context.Context, q Queryer, mailbox *models.MailboxEntity) error {
	const query = `
		delete from "mailboxes"
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, mailbox)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (mailboxDao) FindByID(ctx context.Context, q Queryer, id int64) (*models.MailboxEntity, error) {
	const query = `
		select *
		from "mailboxes"
		where "id" = $1
		limit 1 ;
	`

	var mailbox models.MailboxEntity

	if err := selectOne(ctx, q, &mailbox, query, id); err != nil {
		return nil, err
	}

	return &mailbox, nil
}

func (mailboxDao) FindByAccount(
	ctx context.Context,
	q Queryer,
	accountID int64,
) ([]models.MailboxEntity, error) {
	const query = `
		select *
		from "mailboxes"
		where "account_id" = $1
		order by "name" ;
	`

	var mailboxSlice []models.MailboxEntity

	if err := selectSlice(ctx, q, &mailboxSlice, query, accountID); err != nil {
		return nil, err
	}

	return mailboxSlice, nil
}

func (mailboxDao) FindByName(
	ctx context.Context,
	q Queryer,
	accountID int64,
	name string,
) (*models.MailboxEntity, error) {
	const query = `
		select *
		from "mailboxes"
		where "account_id" = $1
		  and "name" = $2
		limit 1 ;
	`

	var mailbox models.MailboxEntity

	if err := selectOne(ctx, q, &mailbox, query, accountID, name); err != nil {
		return nil, err
	}

	return &mailbox, nil
}

func (mailboxDao) UpdateHealth(
	ctx context.Context,
	q Queryer,
	id int64,
	health models.Health,
) error {
	const query = `
		update "mailboxes"
		set "health" = $1
		where "id" = $2 ;
	`

	result, err := execPositional(ctx, q, query, health, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}
