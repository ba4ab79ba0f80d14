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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/fweidner/postarchiv/internal/archive"
	"github.com/fweidner/postarchiv/internal/blobs"
	"github.com/fweidner/postarchiv/internal/conversation"
	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/fetcher"
	"github.com/fweidner/postarchiv/internal/mailparse"
	"github.com/fweidner/postarchiv/internal/routine"
)

var wireSet = wire.NewSet(
	wire.Struct(new(startCommand), "*"),
	wire.Struct(new(probeCommand), "*"),

	database.WireSet,
	blobs.WireSet,
	fetcher.WireSet,
	mailparse.WireSet,
	conversation.WireSet,
	archive.WireSet,
	routine.WireSet,
)

func newStartCommand() (*startCommand, error) {
	panic(wire.Build(wireSet))
}

func newProbeCommand() (*probeCommand, error) {
	panic(wire.Build(wireSet))
}
