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

// RoutineDao is a data access object for all routine related queries.
type RoutineDao interface {
	// Insert inserts a new routine.
	Insert(context.Context, Queryer, *models.RoutineEntity) error
	// Update updates an existing routine.
	Update(context.Context, Queryer, *models.RoutineEntity) error
	// Delete deletes an existing routine.
	Delete(context.Context, Queryer, *models.RoutineEntity) error
	// FindAll returns all routines.
	FindAll(context.Context, Queryer) ([]models.RoutineEntity, error)
	// FindByUUID returns the routine with the given uuid.
	FindByUUID(context.Context, Queryer, string) (*models.RoutineEntity, error)
	// FindByMailbox returns all routines of a mailbox.
	FindByMailbox(context.Context, Queryer, int64) ([]models.RoutineEntity, error)
	// UpdateRunning sets the running flag of a routine.
	UpdateRunning(context.Context, Queryer, int64, bool) error
	// UpdateHealth sets the health and last error of a routine.
	UpdateHealth(context.Context, Queryer, int64, models.Health, string) error
	// TouchLastRun records the time of the latest completed run.
	TouchLastRun(context.Context, Queryer, int64, int64) error
}

// routineDao is the sqlite implementation of RoutineDao.
type routineDao struct{}

// NewRoutineDao creates a new RoutineDao.
func NewRoutineDao() RoutineDao {
	return routineDao{}
}

func (routineDao) Insert(ctx context.Context, q Queryer, routine *models.RoutineEntity) error {
	const query = `
		insert into "routines" (
			"uuid" ,
			"mailbox_id" ,
			"criterion" ,
			"criterion_arg" ,
			"interval_unit" ,
			"interval_multiplier" ,
			"restart_seconds" ,
			"running" ,
			"health" ,
			"last_error" ,
			"last_run_at"
		) values (
			:uuid ,
			:mailbox_id ,
			:criterion ,
			:criterion_arg ,
			:interval_unit ,
			:interval_multiplier ,
			:restart_seconds ,
			:running ,
			:health ,
			:last_error ,
			:last_run_at
		) ;
	`

	result, err := execNamed(ctx, q, query, routine)
	if err != nil {
		return err
	}

	if err := ensureRowsAffected(result); err != nil {
		return err
	}

	routine.ID, err = result.LastInsertId()
	return err
}

func (routineDao) Update(ctx context.Context, q Queryer, routine *models.RoutineEntity) error {
	const query = `
		update "routines"
		set "criterion" = :criterion ,
		    "criterion_arg" = :criterion_arg ,
		    "interval_unit" = :interval_unit ,
		    "interval_multiplier" = :interval_multiplier ,
		    "restart_seconds" = :restart_seconds ,
		    "running" = :running ,
		    "health" = :health ,
		    "last_error" = :last_error ,
		    "last_run_at" = :last_run_at
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, routine)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (routineDao) Delete(ctx context.Context, q Queryer, routine *models.RoutineEntity) error {
	const query = `
		delete from "routines"
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, routine)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (routineDao) FindAll(ctx context.Context, q Queryer) ([]models.RoutineEntity, error) {
	const query = `
		select *
		from "routines"
		order by "id" ;
	`

	var routineSlice []models.RoutineEntity

	if err := selectSlice(ctx, q, &routineSlice, query); err != nil {
		return nil, err
	}

	return routineSlice, nil
}

func (routineDao) FindByUUID(
	ctx context.Context,
	q Queryer,
	uuid string,
) (*models.RoutineEntity, error) {
	const query = `
		select *
		from "routines"
		where "uuid" = $1
		limit 1 ;
	`

	var routine models.RoutineEntity

	if err := selectOne(ctx, q, &routine, query, uuid); err != nil {
		return nil, err
	}

	return &routine, nil
}

func (routineDao) FindByMailbox(
	ctx context.Context,
	q Queryer,
	mailboxID int64,
) ([]models.RoutineEntity, error) {
	const query = `
		select *
		from "routines"
		where "mailbox_id" = $1
		order by "id" ;
	`

	var routineSlice []models.RoutineEntity

	if err := selectSlice(ctx, q, &routineSlice, query, mailboxID); err != nil {
		return nil, err
	}

	return routineSlice, nil
}

func (routineDao) UpdateRunning(ctx context.Context, q Queryer, id int64, running bool) error {
	const query = `
		update "routines"
		set "running" = $1
		where "id" = $2 ;
	`

	result, err := execPositional(ctx, q, query, running, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (routineDao) UpdateHealth(
	ctx context.Context,
	q Queryer,
	id int64,
	health models.Health,
	lastError string,
) error {
	const query = `
		update "routines"
		set "health" = $1 ,
		    "last_error" = $2
		where "id" = $3 ;
	`

	result, err := execPositional(ctx, q, query, health, lastError, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (routineDao) TouchLastRun(ctx context.Context, q Queryer, id int64, unix int64) error {
	const query = `
		update "routines"
		set "last_run_at" = $1
		where "id" = $2 ;
	`

	result, err := execPositional(ctx, q, query, unix, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}
