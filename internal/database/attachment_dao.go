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

// AttachmentDao is a data access object for all attachment related queries.
type AttachmentDao interface {
	// Insert inserts a new attachment.
	Insert(context.Context, Queryer, *models.AttachmentEntity) error
	// FindByEmail returns all attachments of an email.
	FindByEmail(context.Context, Queryer, int64) ([]models.AttachmentEntity, error)
}

// attachmentDao is the sqlite implementation of AttachmentDao.
type attachmentDao struct{}

// NewAttachmentDao creates a new AttachmentDao.
func NewAttachmentDao() AttachmentDao {
	return attachmentDao{}
}

func (attachmentDao) Insert(
	ctx context.Context,
	q Queryer,
	attachment *models.AttachmentEntity,
) error {
	const query = `
		insert into "attachments" (
			"email_id" ,
			"filename" ,
			"content_type" ,
			"size" ,
			"path"
		) values (
			:email_id ,
			:filename ,
			:content_type ,
			:size ,
			:path
		) ;
	`

	result, err := execNamed(ctx, q, query, attachment)
	if err != nil {
		return err
	}

	if err := ensureRowsAffected(result); err != nil {
		return err
	}

	attachment.ID, err = result.LastInsertId()
	return err
}

func (attachmentDao) FindByEmail(
	ctx context.Context,
	q Queryer,
	emailID int64,
) ([]models.AttachmentEntity, error) {
	const query = `
		select *
		from "attachments"
		where "email_id" = $1
		order by "id" ;
	`

	var attachmentSlice []models.AttachmentEntity

	if err := selectSlice(ctx, q, &attachmentSlice, query, emailID); err != nil {
		return nil, err
	}

	return attachmentSlice, nil
}
