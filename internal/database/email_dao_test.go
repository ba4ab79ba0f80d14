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
	"database/sql"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fweidner/postarchiv/internal/models"
)

func TestEmailDaoTestSuite(t *testing.T) {
	suite.Run(t, new(EmailDaoTestSuite))
}

type EmailDaoTestSuite struct {
	baseDatabaseTestSuite

	emailDao EmailDao
}

func (s *EmailDaoTestSuite) SetupSuite() {
	s.emailDao = NewEmailDao()
}

func (s *EmailDaoTestSuite) SetupTest() {
	s.baseDatabaseTestSuite.SetupTest()

	s.requireAccount(42)
	s.requireMailbox(7, 42)
}

func (s *EmailDaoTestSuite) TestInsert() {
	email := models.EmailEntity{
		MailboxID:  7,
		MessageID:  "<msg1@example.com>",
		Subject:    "hello",
		SentAt:     1700000000,
		ArchivedAt: 1700000100,
		RawPath:    sql.NullString{String: "0001/msg1.eml", Valid: true},
		TextBody:   "hello world",
		Flags:      "\\Seen",
	}

	s.Assert().Zero(email.ID)
	s.Assert().NoError(s.emailDao.Insert(s.ctx, s.conn, &email))
	s.Assert().NotZero(email.ID)

	s.assertQuery(
		`
			select "mailbox_id", "message_id", "subject", "raw_path", "spam"
			from "emails" ;
		`,
		[]string{"7", "<msg1@example.com>", "hello", "0001/msg1.eml", "0"})
}

func (s *EmailDaoTestSuite) TestInsertDuplicateMessageID() {
	s.requireEmail(1, 7, "<msg1@example.com>")

	email := models.EmailEntity{
		MailboxID:  7,
		MessageID:  "<msg1@example.com>",
		ArchivedAt: 1700000100,
	}

	err := s.emailDao.Insert(s.ctx, s.conn, &email)
	s.Assert().True(IsErrUnique(err))
}

func (s *EmailDaoTestSuite) TestFindByMessageID() {
	s.requireEmail(1, 7, "<msg1@example.com>")

	email, err := s.emailDao.FindByMessageID(s.ctx, s.conn, "<msg1@example.com>")
	s.Require().NoError(err)
	s.Assert().Equal(int64(1), email.ID)

	_, err = s.emailDao.FindByMessageID(s.ctx, s.conn, "<nope@example.com>")
	s.Assert().True(IsErrNoRows(err))
}

func (s *EmailDaoTestSuite) TestExistsMessageID() {
	s.requireEmail(1, 7, "<msg1@example.com>")

	exists, err := s.emailDao.ExistsMessageID(s.ctx, s.conn, "<msg1@example.com>")
	s.Require().NoError(err)
	s.Assert().True(exists)

	exists, err = s.emailDao.ExistsMessageID(s.ctx, s.conn, "<nope@example.com>")
	s.Require().NoError(err)
	s.Assert().False(exists)
}

func (s *EmailDaoTestSuite) TestFindByMailboxOrder() {
	s.requireExec(
		`
			insert into "emails"
				( "id", "mailbox_id", "message_id", "sent_at", "archived_at" )
			values
				( 1, 7, '<a@example.com>', 100, 0 ) ,
				( 2, 7, '<b@example.com>', 300, 0 ) ,
				( 3, 7, '<c@example.com>', 200, 0 ) ;
		`)

	emails, err := s.emailDao.FindByMailbox(s.ctx, s.conn, 7)
	s.Require().NoError(err)
	s.Require().Len(emails, 3)

	s.Assert().Equal(int64(2), emails[0].ID)
	s.Assert().Equal(int64(3), emails[1].ID)
	s.Assert().Equal(int64(1), emails[2].ID)
}

func (s *EmailDaoTestSuite) TestUpdateBlobsMissing() {
	s.requireEmail(1, 7, "<msg1@example.com>")

	s.Assert().NoError(s.emailDao.UpdateBlobsMissing(s.ctx, s.conn, 1, true))
	s.assertQuery(`select "blobs_missing" from "emails" ;`, []string{"1"})
}
