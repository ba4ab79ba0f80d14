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

// CorrespondentDao is a data access object for all correspondent related queries.
type CorrespondentDao interface {
	// Upsert inserts a correspondent or updates the display name of an
	// existing one with the same address. The id is filled in either way.
	Upsert(context.Context, Queryer, *models.CorrespondentEntity) error
	// FindByAddress returns the correspondent with the given address.
	FindByAddress(context.Context, Queryer, string) (*models.CorrespondentEntity, error)
	// Link connects an email with a correspondent in a role. Duplicate links
	// are ignored.
	Link(context.Context, Queryer, *models.EmailCorrespondentEntity) error
	// FindByEmail returns all correspondents of an email in a role.
	FindByEmail(context.Context, Queryer, int64, models.Role) ([]models.CorrespondentEntity, error)
}

// correspondentDao is the sqlite implementation of CorrespondentDao.
type correspondentDao struct{}

// NewCorrespondentDao creates a new CorrespondentDao.
func NewCorrespondentDao() CorrespondentDao {
	return correspondentDao{}
}

func (correspondentDao) Upsert(
	ctx context.Context,
	q Queryer,
	correspondent *models.CorrespondentEntity,
) error {
	const query = `
		insert into "correspondents" (
			"address" ,
			"display_name"
		) values (
			:address ,
			:display_name
		)
		on conflict ( "address" ) do update
		set "display_name" = "excluded"."display_name" ;
	`

	if _, err := execNamed(ctx, q, query, correspondent); err != nil {
		return err
	}

	const idQuery = `
		select "id"
		from "correspondents"
		where "address" = $1 ;
	`

	return selectOne(ctx, q, &correspondent.ID, idQuery, correspondent.Address)
}

func (correspondentDao) FindByAddress(
	ctx context.Context,
	q Queryer,
	address string,
) (*models.CorrespondentEntity, error) {
	const query = `
		select *
		from "correspondents"
		where "address" = $1
		limit 1 ;
	`

	var correspondent models.CorrespondentEntity

	if err := selectOne(ctx, q, &correspondent, query, address); err != nil {
		return nil, err
	}

	return &correspondent, nil
}

func (correspondentDao) Link(
	ctx context.Context,
	q Queryer,
	link *models.EmailCorrespondentEntity,
) error {
	const query = `
		insert or ignore into "email_correspondents" (
			"email_id" ,
			"correspondent_id" ,
			"role"
		) values (
			:email_id ,
			:correspondent_id ,
			:role
		) ;
	`

	_, err := execNamed(ctx, q, query, link)
	return err
}

func (correspondentDao) FindByEmail(
	ctx context.Context,
	q Queryer,
	emailID int64,
	role models.Role,
) ([]models.CorrespondentEntity, error) {
	const query = `
		select "correspondents".*
		from "correspondents"
			inner join "email_correspondents"
				on "correspondents"."id" = "email_correspondents"."correspondent_id"
		where "email_correspondents"."email_id" = $1
		  and "email_correspondents"."role" = $2
		order by "correspondents"."address" ;
	`

	var correspondentSlice []models.CorrespondentEntity

	if err := selectSlice(ctx, q, &correspondentSlice, query, emailID, role); err != nil {
		return nil, err
	}

	return correspondentSlice, nil
}
