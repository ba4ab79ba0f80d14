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

package criterion

import (
	"errors"
	"time"
)

// ErrUnsupported is returned when a criterion is not part of an adapters
// capability set.
var ErrUnsupported = errors.New("criterion: not supported by protocol")

// Set is the criterion subset understood by a protocol adapter.
type Set map[Criterion]bool

// NewSet creates a capability set from a list of criteria.
func NewSet(criteria ...Criterion) Set {
	set := make(Set, len(criteria))

	for _, c := range criteria {
		set[c] = true
	}

	return set
}

// Contains reports if c is part of the set.
func (s Set) Contains(c Criterion) bool {
	return s[c]
}

// Query is a protocol-agnostic fetch query as handed to an adapter. For
// time-window criteria the window has already been resolved into Since.
type Query struct {
	// Criterion is the original criterion.
	Criterion Criterion
	// Argument is the opaque value of a value criterion. Adapters with a
	// compound native query syntax forward it verbatim.
	Argument string
	// Since is the resolved absolute lower bound for time based criteria.
	// Only the date part is meaningful.
	Since time.Time
}

// Translate resolves a criterion and argument into a Query for an adapter
// declaring the given capability set. Time-window criteria are anchored at
// now. Criteria outside the capability set yield ErrUnsupported; the caller
// decides on a fallback.
func Translate(c Criterion, argument string, caps Set, now time.Time) (Query, error) {
	if !caps.Contains(c) {
		return Query{}, ErrUnsupported
	}

	query := Query{
		Criterion: c,
		Argument:  argument,
	}

	switch c {
	case Daily:
		query.Since = now.Add(-24 * time.Hour)

	case Weekly:
		query.Since = now.Add(-7 * 24 * time.Hour)

	case Monthly:
		query.Since = now.Add(-4 * 7 * 24 * time.Hour)

	case Annually:
		query.Since = now.Add(-52 * 7 * 24 * time.Hour)

	case SentSince:
		since, err := time.Parse(DateFormat, argument)
		if err != nil {
			return Query{}, err
		}

		query.Since = since
	}

	return query, nil
}
