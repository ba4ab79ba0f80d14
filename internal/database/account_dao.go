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

// AccountDao is a data access object for all account related queries.
type AccountDao interface {
	// Insert inserts a new account.
	Insert(context.Context, Queryer, *models.AccountEntity) error
	// Update updates an existing account.
	Update(context.Context, Queryer, *models.AccountEntity) error
	// Delete deletes an existing account.
	Delete(context.Context, Queryer, *models.AccountEntity) error
	// FindAll returns all accounts.
	FindAll(context.Context, Queryer) ([]models.AccountEntity, error)
	// FindByID returns the account with the given id.
	FindByID(context.Context, Queryer, int64) (*models.AccountEntity, error)
	// UpdateHealth sets the health of an account.
	UpdateHealth(context.Context, Queryer, int64, models.Health) error
}

// accountDao is the sqlite implementation of AccountDao.
type accountDao struct{}

// NewAccountDao creates a new AccountDao.
func NewAccountDao() AccountDao {
	return accountDao{}
}

func (accountDao) Insert(ctx context.Context, q Queryer, account *models.AccountEntity) error {
	const query = `
		insert into "accounts" (
			"name" ,
			"protocol" ,
			"host" ,
			"port" ,
			"username" ,
			"password" ,
			"timeout_seconds" ,
			"health" ,
			"created_at" ,
			"updated_at"
		) values (
			:name ,
			:protocol ,
			:host ,
			:port ,
			:username ,
			:password ,
			:timeout_seconds ,
			:health ,
			:created_at ,
			:updated_at
		) ;
	`

	result, err := execNamed(ctx, q, query, account)
	if err != nil {
		return err
	}

	if err := ensureRowsAffected(result); err != nil {
		return err
	}

	account.ID, err = result.LastInsertId()
	return err
}

func (accountDao) Update(ctx context.Context, q Queryer, account *models.AccountEntity) error {
	const query = `
		update "accounts"
		set "name" = :name ,
		    "protocol" = :protocol ,
		    "host" = :host ,
		    "port" = :port ,
		    "username" = :username ,
		    "password" = :password ,
		    "timeout_seconds" = :timeout_seconds ,
		    "health" = :health ,
		    "updated_at" = :updated_at
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, account)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (accountDao) Delete(ctx context.Context, q Queryer, account *models.AccountEntity) error {
	const query = `
		delete from "accounts"
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, account)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (accountDao) FindAll(ctx context.Context, q Queryer) ([]models.AccountEntity, error) {
	const query = `
		select *
		from "accounts"
		order by "id" ;
	`

	var accountSlice []models.AccountEntity

	if err := selectSlice(ctx, q, &accountSlice, query); err != nil {
		return nil, err
	}

	return accountSlice, nil
}

func (accountDao) FindByID(ctx context.Context, q Queryer, id int64) (*models.AccountEntity, error) {
	const query = `
		select *
		from "accounts"
		where "id" = $1
		limit 1 ;
	`

	var account models.AccountEntity

	if err := selectOne(ctx, q, &account, query, id); err != nil {
		return nil, err
	}

	return &account, nil
}

func (accountDao) UpdateHealth(
	ctx context.Context,
	q Queryer,
	id int64,
	health models.Health,
) error {
	const query = `
		update "accounts"
		set "health" = $1
		where "id" = $2 ;
	`

	result, err := execPositional(ctx, q, query, health, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}
