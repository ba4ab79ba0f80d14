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
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestStoreOptionsFromViper(t *testing.T) {
	viper.Set("storage.blobs.foldername", "/very-secret/location")

	expected := StoreOptions{
		Foldername: "/very-secret/location",
	}
	actual := StoreOptionsFromViper()
	assert.Equal(t, expected, actual)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

type StoreTestSuite struct {
	suite.Suite

	fs    afero.Fs
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.fs = afero.NewMemMapFs()

	store, err := NewStore(s.fs, StoreOptions{Foldername: "/test/blobs"})
	s.Require().NoError(err)
	s.Require().NotNil(store)

	s.store = store
}

func (s *StoreTestSuite) requireWrite(filename string, content string) {
	f, err := s.fs.Create(filename)
	s.Require().NoError(err)

	defer f.Close()
	_, err = io.Copy(f, strings.NewReader(content))
	s.Require().NoError(err)
}

func (s *StoreTestSuite) assertFileContent(filename string, expectedContent string) {
	f, err := s.fs.Open(filename)
	s.Require().NoError(err)

	defer f.Close()
	actualContent, err := io.ReadAll(f)
	s.Require().NoError(err)
	s.Assert().EqualValues(expectedContent, actualContent)
}

func (s *StoreTestSuite) TestWrite() {
	const data = "TestWrite"

	size, err := s.store.Write(context.TODO(), "0001/TestWrite.eml", strings.NewReader(data))
	s.Assert().NoError(err)
	s.Assert().EqualValues(len(data), size)

	s.assertFileContent("/test/blobs/0001/TestWrite.eml", data)
}

func (s *StoreTestSuite) TestReaderNotFound() {
	_, err := s.store.Reader("0001/not-existing")
	s.Assert().Error(err)
}

func (s *StoreTestSuite) TestReaderOK() {
	const data = "TestReader-data"

	s.requireWrite("/test/blobs/0001/TestReader.eml", data)

	r, err := s.store.Reader("0001/TestReader.eml")
	s.Require().NoError(err)
	s.Require().NotNil(r)

	actual, err := io.ReadAll(r)
	s.Assert().NoError(err)
	s.Assert().EqualValues(data, actual)
	s.Assert().NoError(r.Close())
}

func (s *StoreTestSuite) TestRemove() {
	s.requireWrite("/test/blobs/0001/TestRemove.eml", "TestRemove")

	s.Assert().NoError(s.store.Remove(context.TODO(), "0001/TestRemove.eml"))

	_, err := s.store.Reader("0001/TestRemove.eml")
	s.Assert().Error(err)
}
