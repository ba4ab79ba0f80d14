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

package blobs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

func init() {
	viper.SetDefault("storage.blobs.maxfilesperbucket", 1000)
}

// maxLogicalNameLength caps the filename part of an allocated path. Logical
// names derive from message-ids, which have no length guarantee.
const maxLogicalNameLength = 120

// Allocator hands out bucket relative paths for blobs. Buckets are numbered
// subdirectories holding at most `storage.blobs.maxfilesperbucket` files, so
// that no single directory grows unbounded. Allocation is idempotent per
// logical name.
type Allocator struct {
	bucketDao     database.BucketDao
	allocationDao database.AllocationDao
}

// NewAllocator creates a new Allocator.
func NewAllocator(
	bucketDao database.BucketDao,
	allocationDao database.AllocationDao,
) *Allocator {
	return &Allocator{
		bucketDao:     bucketDao,
		allocationDao: allocationDao,
	}
}

// Allocate returns the path for a logical name. Repeated calls with the same
// logical name return the same path without consuming a new slot. Distinct
// logical names never share a path.
func (a *Allocator) Allocate(ctx context.Context, q database.Queryer, logicalName string) (string, error) {
	allocation, err := a.allocationDao.FindByLogicalName(ctx, q, logicalName)
	if err == nil {
		return allocation.Path, nil
	}

	if !database.IsErrNoRows(err) {
		return "", err
	}

	bucket, err := a.currentBucket(ctx, q)
	if err != nil {
		return "", err
	}

	name, err := a.uniqueFilename(ctx, q, bucket, logicalName)
	if err != nil {
		return "", err
	}

	allocation = &models.AllocationEntity{
		LogicalName: logicalName,
		Path:        name,
	}

	if err := a.allocationDao.Insert(ctx, q, allocation); err != nil {
		return "", err
	}

	if err := a.bucketDao.IncrementFileCount(ctx, q, bucket.ID); err != nil {
		return "", err
	}

	return name, nil
}

// currentBucket returns the bucket accepting new files. A fresh bucket is
// opened when none exists or the current one is full.
func (a *Allocator) currentBucket(ctx context.Context, q database.Queryer) (*models.BucketEntity, error) {
	maxFiles := viper.GetInt64("storage.blobs.maxfilesperbucket")

	bucket, err := a.bucketDao.FindCurrent(ctx, q)
	if err == nil && bucket.FileCount < maxFiles {
		return bucket, nil
	}

	if err != nil && !database.IsErrNoRows(err) {
		return nil, err
	}

	if err := a.bucketDao.ClearCurrent(ctx, q); err != nil {
		return nil, err
	}

	number, err := a.bucketDao.MaxNumber(ctx, q)
	if err != nil {
		return nil, err
	}

	bucket = &models.BucketEntity{
		Number:  number + 1,
		Current: true,
	}

	if err := a.bucketDao.Insert(ctx, q, bucket); err != nil {
		return nil, err
	}

	log.InfoContext(ctx).
		Int64("bucket", bucket.Number).
		Msg("opened new storage bucket")

	return bucket, nil
}

func (a *Allocator) uniqueFilename(
	ctx context.Context,
	q database.Queryer,
	bucket *models.BucketEntity,
	logicalName string,
) (string, error) {
	var (
		folder = fmt.Sprintf("%04d", bucket.Number)
		base   = sanitizeFilename(logicalName)
	)

	for i := 0; ; i++ {
		name := base

		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}

		candidate := path.Join(folder, name)

		exists, err := a.allocationDao.ExistsPath(ctx, q, candidate)
		if err != nil {
			return "", err
		}

		if !exists {
			return candidate, nil
		}
	}
}

// sanitizeFilename reduces a logical name to a safe filename. The extension
// is preserved, everything outside a conservative character set is replaced.
func sanitizeFilename(logicalName string) string {
	ext := path.Ext(logicalName)
	base := strings.TrimSuffix(logicalName, ext)

	mapping := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			return r
		}

		return '_'
	}

	base = strings.Map(mapping, base)
	ext = strings.Map(mapping, ext)

	if len(base) > maxLogicalNameLength {
		base = base[:maxLogicalNameLength]
	}

	if base == "" {
		base = "blob"
	}

	return base + ext
}
