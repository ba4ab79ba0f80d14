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

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrServiceUnknown is returned when no dialer exists for a protocol.
	ErrServiceUnknown = errors.New("fetcher: unknown protocol")
	// ErrConnection is returned when the server is unreachable or drops the
	// connection.
	ErrConnection = errors.New("fetcher: connection failed")
	// ErrAuth is returned when the server rejects the credentials.
	ErrAuth = errors.New("fetcher: authentication failed")
	// ErrTimeout is returned when an operation exceeds the accounts timeout.
	ErrTimeout = errors.New("fetcher: operation timed out")
	// ErrMailboxNotFound is returned when a mailbox does not exist remotely.
	ErrMailboxNotFound = errors.New("fetcher: mailbox not found")
	// ErrRestoreUnsupported is returned by adapters whose protocol has no
	// upload operation.
	ErrRestoreUnsupported = errors.New("fetcher: restore not supported by protocol")
)

// IsHealthAffecting reports if an error indicates a broken account or
// mailbox rather than a problem with a single message.
func IsHealthAffecting(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrTimeout)
}

// connErr wraps a transport level error into the taxonomy. Timeouts and
// cancellations are classified as ErrTimeout.
func connErr(err error) error {
	var netErr net.Error

	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// authErr wraps a rejected login into the taxonomy.
func authErr(err error) error {
	return fmt.Errorf("%w: %v", ErrAuth, err)
}
