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
	"io"
	"path"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/log"
)

func init() {
	viper.SetDefault("storage.blobs.foldername", "data/blobs")
}

// StoreOptions is the set of configuration for the blob store.
type StoreOptions struct {
	// Foldername is the root folder for blob files.
	Foldername string
}

// StoreOptionsFromViper reads StoreOptions using configuration from viper.
//
// `storage.blobs.foldername` is the foldername for blob files.
func StoreOptionsFromViper() StoreOptions {
	return StoreOptions{
		Foldername: viper.GetString("storage.blobs.foldername"),
	}
}

// Store is a permanent storage for blobs of data. Blobs are addressed by
// their bucket relative path as handed out by the Allocator.
type Store struct {
	fs afero.Fs
}

// NewStore creates a new blob store rooted at the configured folder.
func NewStore(fs afero.Fs, opts StoreOptions) (*Store, error) {
	if err := fs.MkdirAll(opts.Foldername, 0700); err != nil {
		return nil, err
	}

	return &Store{
		fs: afero.NewBasePathFs(fs, opts.Foldername),
	}, nil
}

// Write copies all the data from r to the blob at name. A partially written
// blob is removed on error.
func (s *Store) Write(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := s.fs.MkdirAll(path.Dir(name), 0700); err != nil {
		return -1, err
	}

	f, err := s.fs.Create(name)
	if err != nil {
		return -1, err
	}

	log.DebugContext(ctx).
		Str("blob", name).
		Msg("writing blob")

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		s.Remove(ctx, name)

		return -1, err
	}

	return size, f.Close()
}

// Reader opens the blob at name for reading. The responsibility to close the
// reader is on the caller.
func (s *Store) Reader(name string) (io.ReadCloser, error) {
	return s.fs.Open(name)
}

// Remove deletes the blob at name.
func (s *Store) Remove(ctx context.Context, name string) error {
	log.DebugContext(ctx).
		Str("blob", name).
		Msg("removing blob")

	return s.fs.Remove(name)
}
