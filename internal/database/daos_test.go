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
	"database/sql/driver"
	"fmt"

	"github.com/stretchr/testify/suite"
)

type baseDatabaseTestSuite struct {
	suite.Suite

	ctx  context.Context
	conn Conn
}

func (s *baseDatabaseTestSuite) SetupTest() {
	conn, err := openInMemory()
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.conn = conn
}

func (s *baseDatabaseTestSuite) TearDownTest() {
	s.Require().NoError(s.conn.Close())
}

func (s *baseDatabaseTestSuite) requireExec(query string) {
	_, err := s.conn.ExecContext(s.ctx, query)
	s.Require().NoError(err)
}

func (s *baseDatabaseTestSuite) assertQuery(query string, expectedRows ...[]string) {
	rows, err := s.conn.QueryxContext(s.ctx, query)
	s.Require().NoError(err)

	defer rows.Close()

	for _, expectedValues := range expectedRows {
		s.Require().True(rows.Next())

		actualValues, err := rows.SliceScan()
		s.Require().NoError(err)
		s.Require().Len(actualValues, len(expectedValues))

		for i, actualValue := range actualValues {
			actualValueAsString, err := driver.String.ConvertValue(actualValue)
			s.Assert().NoError(err)
			s.Assert().Equal(expectedValues[i], actualValueAsString)
		}
	}

	s.Assert().False(rows.Next())
}

// requireAccount inserts a minimal account to satisfy foreign keys.
func (s *baseDatabaseTestSuite) requireAccount(id int64) {
	s.requireExec(fmt.Sprintf(
		`
			insert into "accounts"
				( "id", "name", "protocol", "host", "username", "password",
				  "created_at", "updated_at" )
			values
				( %d, 'account%d', 'imap', 'mail.example.com', 'user', 'secret', 0, 0 ) ;
		`, id, id))
}

// requireMailbox inserts a minimal mailbox to satisfy foreign keys.
func (s *baseDatabaseTestSuite) requireMailbox(id, accountID int64) {
	s.requireExec(fmt.Sprintf(
		`
			insert into "mailboxes"
				( "id", "account_id", "name" )
			values
				( %d, %d, 'mailbox%d' ) ;
		`, id, accountID, id))
}

// requireEmail inserts a minimal email to satisfy foreign keys.
func (s *baseDatabaseTestSuite) requireEmail(id, mailboxID int64, messageID string) {
	s.requireExec(fmt.Sprintf(
		`
			insert into "emails"
				( "id", "mailbox_id", "message_id", "archived_at" )
			values
				( %d, %d, '%s', 0 ) ;
		`, id, mailboxID, messageID))
}
