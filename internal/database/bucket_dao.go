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

// BucketDao is a data access object for all storage bucket related queries.
type BucketDao interface {
	// Insert inserts a new bucket.
	Insert(context.Context, Queryer, *models.BucketEntity) error
	// FindCurrent returns the bucket marked as current.
	FindCurrent(context.Context, Queryer) (*models.BucketEntity, error)
	// ClearCurrent unmarks all buckets. No bucket being current is not an error.
	ClearCurrent(context.Context, Queryer) error
	// IncrementFileCount adds one to the file count of a bucket.
	IncrementFileCount(context.Context, Queryer, int64) error
	// MaxNumber returns the highest bucket number so far. Zero if none exist.
	MaxNumber(context.Context, Queryer) (int64, error)
}

// bucketDao is the sqlite implementation of BucketDao.
type bucketDao struct{}

// NewBucketDao creates a new BucketDao.
func NewBucketDao() BucketDao {
	return bucketDao{}
}

func (bucketDao) Insert(ctx context.Context, q Queryer, bucket *models.BucketEntity) error {
	const query = `
		insert into "storage_buckets" (
			"number" ,
			"file_count" ,
			"current"
		) values (
			:number ,
			:file_count ,
			:current
		) ;
	`

	result, err := execNamed(ctx, q, query, bucket)
	if err != nil {
		return err
	}

	if err := ensureRowsAffected(result); err != nil {
		return err
	}

	bucket.ID, err = result.LastInsertId()
	return err
}

func (bucketDao) FindCurrent(ctx context.Context, q Queryer) (*models.BucketEntity, error) {
	const query = `
		select *
		from "storage_buckets"
		where "current"
		limit 1 ;
	`

	var bucket models.BucketEntity

	if err := selectOne(ctx, q, &bucket, query); err != nil {
		return nil, err
	}

	return &bucket, nil
}

func (bucketDao) ClearCurrent(ctx context.Context, q Queryer) error {
	const query = `
		update "storage_buckets"
		set "current" = false
		where "current" ;
	`

	_, err := execPositional(ctx, q, query)
	return err
}

func (bucketDao) IncrementFileCount(ctx context.Context, q Queryer, id int64) error {
	const query = `
		update "storage_buckets"
		set "file_count" = "file_count" + 1
		where "id" = $1 ;
	`

	result, err := execPositional(ctx, q, query, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (bucketDao) MaxNumber(ctx context.Context, q Queryer) (int64, error) {
	const query = `
		select coalesce(max("number"), 0)
		from "storage_buckets" ;
	`

	var number int64

	if err := selectOne(ctx, q, &number, query); err != nil {
		return 0, err
	}

	return number, nil
}
