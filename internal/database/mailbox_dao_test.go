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
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fweidner/postarchiv/internal/models"
)

func TestMailboxDaoTestSuite(t *testing.T) {
	suite.Run(t, new(MailboxDaoTestSuite))
}

type MailboxDaoTestSuite struct {
	baseDatabaseTestSuite

	mailboxDao MailboxDao
}

func (s *MailboxDaoTestSuite) SetupSuite() {
	s.mailboxDao = NewMailboxDao()
}

func (s *MailboxDaoTestSuite) TestInsert() {
	s.requireAccount(42)

	mailbox := models.MailboxEntity{
		AccountID:        42,
		Name:             "INBOX",
		Kind:             models.KindInbox,
		StoreRaw:         true,
		StoreAttachments: true,
		Health:           models.HealthUnknown,
	}

	s.Assert().Zero(mailbox.ID)
	s.Assert().NoError(s.mailboxDao.Insert(s.ctx, s.conn, &mailbox))
	s.Assert().NotZero(mailbox.ID)

	s.assertQuery(
		`
			select "account_id", "name", "kind", "store_raw"
			from "mailboxes" ;
		`,
		[]string{"42", "INBOX", "inbox", "1"})
}

func (s *MailboxDaoTestSuite) TestInsertDuplicateName() {
	s.requireAccount(42)
	s.requireMailbox(7, 42)

	mailbox := models.MailboxEntity{
		AccountID: 42,
		Name:      "mailbox7",
		Kind:      models.KindCustom,
		Health:    models.HealthUnknown,
	}

	err := s.mailboxDao.Insert(s.ctx, s.conn, &mailbox)
	s.Assert().True(IsErrUnique(err))
}

func (s *MailboxDaoTestSuite) TestUpdate() {
	s.requireAccount(42)
	s.requireMailbox(7, 42)

	mailbox := models.MailboxEntity{
		ID:               7,
		Name:             "Archive",
		Kind:             models.KindCustom,
		StoreRaw:         false,
		StoreAttachments: true,
		Health:           models.HealthGood,
	}

	s.Assert().NoError(s.mailboxDao.Update(s.ctx, s.conn, &mailbox))

	s.assertQuery(
		`
			select "id", "name", "store_raw", "health"
			from "mailboxes" ;
		`,
		[]string{"7", "Archive", "0", "good"})
}

func (s *MailboxDaoTestSuite) TestDelete() {
	s.requireAccount(42)
	s.requireMailbox(7, 42)

	s.assertQuery(`select count(*) from "mailboxes" ;`, []string{"1"})
	s.Assert().NoError(s.mailboxDao.Delete(s.ctx, s.conn, &models.MailboxEntity{ID: 7}))
	s.assertQuery(`select count(*) from "mailboxes" ;`, []string{"0"})
}

func (s *MailboxDaoTestSuite) TestFindByAccount() {
	s.requireAccount(42)
	s.requireAccount(43)
	s.requireMailbox(7, 42)
	s.requireMailbox(8, 42)
	s.requireMailbox(9, 43)

	mailboxes, err := s.mailboxDao.FindByAccount(s.ctx, s.conn, 42)
	s.Require().NoError(err)
	s.Require().Len(mailboxes, 2)

	s.Assert().Equal("mailbox7", mailboxes[0].Name)
	s.Assert().Equal("mailbox8", mailboxes[1].Name)
}

func (s *MailboxDaoTestSuite) TestFindByName() {
	s.requireAccount(42)
	s.requireMailbox(7, 42)

	mailbox, err := s.mailboxDao.FindByName(s.ctx, s.conn, 42, "mailbox7")
	s.Require().NoError(err)
	s.Assert().Equal(int64(7), mailbox.ID)

	_, err = s.mailboxDao.FindByName(s.ctx, s.conn, 42, "nope")
	s.Assert().True(IsErrNoRows(err))
}

func (s *MailboxDaoTestSuite) TestUpdateHealth() {
	s.requireAccount(42)
	s.requireMailbox(7, 42)

	s.Assert().NoError(s.mailboxDao.UpdateHealth(s.ctx, s.conn, 7, models.HealthBad))
	s.assertQuery(`select "health" from "mailboxes" ;`, []string{"bad"})
}
