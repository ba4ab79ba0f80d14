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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/archive"
	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

type probeCommand struct {
	Conn    database.Conn
	Service *archive.Service
}

// run connects to the account configured under the "probe.*" keys and prints
// its mailboxes. The account is not persisted.
func (c *probeCommand) run() error {
	defer c.closeConn()

	account := models.AccountEntity{
		Name:     "probe",
		Protocol: models.Protocol(viper.GetString("probe.protocol")),
		Host:     viper.GetString("probe.host"),
		Port:     viper.GetInt("probe.port"),
		Username: viper.GetString("probe.username"),
		Password: viper.GetString("probe.password"),
	}

	ctx := context.Background()

	if err := c.Service.TestAccount(ctx, &account); err != nil {
		return fmt.Errorf("could not connect to %q: %w", account.Host, err)
	}

	log.Info().
		Str("host", account.Host).
		Str("protocol", string(account.Protocol)).
		Msg("connection successful")

	mailboxes, err := c.Service.ListRemoteMailboxes(ctx, &account)
	if err != nil {
		return err
	}

	for _, mailbox := range mailboxes {
		fmt.Printf("%-40s %-8s %6d\n", mailbox.Name, mailbox.Kind, mailbox.Total)
	}

	return nil
}

func (c *probeCommand) closeConn() {
	if err := c.Conn.Close(); err != nil {
		log.Error().Err(err).Msg("could not close database connection")
	}
}
