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

// AllocationDao is a data access object for all path allocation related queries.
type AllocationDao interface {
	// Insert inserts a new allocation.
	Insert(context.Context, Queryer, *models.AllocationEntity) error
	// FindByLogicalName returns the allocation for a logical name.
	FindByLogicalName(context.Context, Queryer, string) (*models.AllocationEntity, error)
	// ExistsPath checks if a path has already been handed out.
	ExistsPath(context.Context, Queryer, string) (bool, error)
}

// allocationDao is the sqlite implementation of AllocationDao.
type allocationDao struct{}

// NewAllocationDao creates a new AllocationDao.
func NewAllocationDao() AllocationDao {
	return allocationDao{}
}

func (allocationDao) Insert(
	ctx context.Context,
	q Queryer,
	allocation *models.AllocationEntity,
) error {
	const query = `
		insert into "storage_allocations" (
			"logical_name" ,
			"path"
		) values (
			:logical_name ,
			:path
		) ;
	`

	result, err := execNamed(ctx, q, query, allocation)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (allocationDao) FindByLogicalName(
	ctx context.Context,
	q Queryer,
	logicalName string,
) (*models.AllocationEntity, error) {
	const query = `
		select *
		from "storage_allocations"
		where "logical_name" = $1
		limit 1 ;
	`

	var allocation models.AllocationEntity

	if err := selectOne(ctx, q, &allocation, query, logicalName); err != nil {
		return nil, err
	}

	return &allocation, nil
}

func (allocationDao) ExistsPath(ctx context.Context, q Queryer, path string) (bool, error) {
	const query = `
		select count(*)
		from "storage_allocations"
		where "path" = $1 ;
	`

	var count int64

	if err := selectOne(ctx, q, &count, query, path); err != nil {
		return false, err
	}

	return count > 0, nil
}
