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
	"os"
	"os/signal"
	"syscall"

	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/routine"
)

type startCommand struct {
	Conn      database.Conn
	Scheduler *routine.Scheduler
}

// run starts all persisted routines and blocks until the process receives an
// interrupt or termination signal.
func (c *startCommand) run() error {
	defer c.closeConn()

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	log.Info().Msg("shutting down")
	c.Scheduler.Stop()

	return nil
}

func (c *startCommand) closeConn() {
	if err := c.Conn.Close(); err != nil {
		log.Error().Err(err).Msg("could not close database connection")
	}
}
