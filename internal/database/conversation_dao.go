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

	"github.com/jmoiron/sqlx"

	"github.com/fweidner/postarchiv/internal/models"
)

// ConversationDao is a data access object for all threading related queries.
type ConversationDao interface {
	// InsertReference records a message-id mentioned by an email. Duplicates
	// are ignored.
	InsertReference(context.Context, Queryer, *models.ReferenceEntity) error
	// FindEmailsByMessageIDs returns the ids of archived emails whose
	// message-id is in the given set.
	FindEmailsByMessageIDs(context.Context, Queryer, []string) ([]int64, error)
	// FindReferencingEmails returns the ids of archived emails that mention
	// the given message-id in their threading headers.
	FindReferencingEmails(context.Context, Queryer, string) ([]int64, error)
	// InsertEdge records a conversation edge in both directions. Duplicates
	// are ignored.
	InsertEdge(context.Context, Queryer, int64, int64) error
	// FindRelated returns the ids of emails directly linked to an email.
	FindRelated(context.Context, Queryer, int64) ([]int64, error)
}

// conversationDao is the sqlite implementation of ConversationDao.
type conversationDao struct{}

// NewConversationDao creates a new ConversationDao.
func NewConversationDao() ConversationDao {
	return conversationDao{}
}

func (conversationDao) InsertReference(
	ctx context.Context,
	q Queryer,
	reference *models.ReferenceEntity,
) error {
	const query = `
		insert or ignore into "email_references" (
			"email_id" ,
			"message_id"
		) values (
			:email_id ,
			:message_id
		) ;
	`

	_, err := execNamed(ctx, q, query, reference)
	return err
}

func (conversationDao) FindEmailsByMessageIDs(
	ctx context.Context,
	q Queryer,
	messageIDs []string,
) ([]int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	const query = `
		select "id"
		from "emails"
		where "message_id" in (?)
		order by "id" ;
	`

	expanded, args, err := sqlx.In(query, messageIDs)
	if err != nil {
		return nil, err
	}

	var idSlice []int64

	if err := selectSlice(ctx, q, &idSlice, q.Rebind(expanded), args...); err != nil {
		return nil, err
	}

	return idSlice, nil
}

func (conversationDao) FindReferencingEmails(
	ctx context.Context,
	q Queryer,
	messageID string,
) ([]int64, error) {
	const query = `
		select "email_id"
		from "email_references"
		where "message_id" = $1
		order by "email_id" ;
	`

	var idSlice []int64

	if err := selectSlice(ctx, q, &idSlice, query, messageID); err != nil {
		return nil, err
	}

	return idSlice, nil
}

func (conversationDao) InsertEdge(ctx context.Context, q Queryer, a, b int64) error {
	const query = `
		insert or ignore into "conversation_edges" (
			"email_id" ,
			"related_id"
		) values
			( $1, $2 ) ,
			( $2, $1 ) ;
	`

	_, err := execPositional(ctx, q, query, a, b)
	return err
}

func (conversationDao) FindRelated(ctx context.Context, q Queryer, emailID int64) ([]int64, error) {
	const query = `
		select "related_id"
		from "conversation_edges"
		where "email_id" = $1
		order by "related_id" ;
	`

	var idSlice []int64

	if err := selectSlice(ctx, q, &idSlice, query, emailID); err != nil {
		return nil, err
	}

	return idSlice, nil
}
