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
	"fmt"
	"strconv"
	"time"
)

// DateFormat is the wire format for date valued criterion arguments. Mail
// search grammars are date-only, so there is no time component.
const DateFormat = "2006-01-02"

// Criterion is an abstract filter selecting which remote messages to fetch.
// Adapters translate a criterion into their protocol native query.
type Criterion string

// Flag criteria select messages by their remote flag state.
const (
	All        Criterion = "ALL"
	Recent     Criterion = "RECENT"
	Seen       Criterion = "SEEN"
	Unseen     Criterion = "UNSEEN"
	Flagged    Criterion = "FLAGGED"
	Unflagged  Criterion = "UNFLAGGED"
	Draft      Criterion = "DRAFT"
	Undraft    Criterion = "UNDRAFT"
	Answered   Criterion = "ANSWERED"
	Unanswered Criterion = "UNANSWERED"
	Deleted    Criterion = "DELETED"
	Undeleted  Criterion = "UNDELETED"
	// New selects messages that are both recent and unseen.
	New Criterion = "NEW"
	// Old selects messages that are not new.
	Old Criterion = "OLD"
)

// Time-window criteria select messages received within a sliding window
// ending now. The window is resolved to an absolute date at translation time.
const (
	Daily    Criterion = "DAILY"
	Weekly   Criterion = "WEEKLY"
	Monthly  Criterion = "MONTHLY"
	Annually Criterion = "ANNUALLY"
)

// Value criteria carry an opaque argument that is handed to the adapter.
const (
	From      Criterion = "FROM"
	Body      Criterion = "BODY"
	Subject   Criterion = "SUBJECT"
	Keyword   Criterion = "KEYWORD"
	Unkeyword Criterion = "UNKEYWORD"
	Larger    Criterion = "LARGER"
	Smaller   Criterion = "SMALLER"
	SentSince Criterion = "SENTSINCE"
)

var flagCriteria = map[Criterion]bool{
	All:        true,
	Recent:     true,
	Seen:       true,
	Unseen:     true,
	Flagged:    true,
	Unflagged:  true,
	Draft:      true,
	Undraft:    true,
	Answered:   true,
	Unanswered: true,
	Deleted:    true,
	Undeleted:  true,
	New:        true,
	Old:        true,
}

var valueCriteria = map[Criterion]bool{
	From:      true,
	Body:      true,
	Subject:   true,
	Keyword:   true,
	Unkeyword: true,
	Larger:    true,
	Smaller:   true,
	SentSince: true,
}

// IsFlag reports if c selects messages by flag state alone.
func (c Criterion) IsFlag() bool {
	return flagCriteria[c]
}

// IsTimeWindow reports if c selects messages by a sliding time window.
func (c Criterion) IsTimeWindow() bool {
	switch c {
	case Daily, Weekly, Monthly, Annually:
		return true
	}

	return false
}

// NeedsArgument reports if c requires a non-empty argument.
func (c Criterion) NeedsArgument() bool {
	return valueCriteria[c]
}

// IsKnown reports if c is part of the documented criterion set.
func (c Criterion) IsKnown() bool {
	return c.IsFlag() || c.IsTimeWindow() || valueCriteria[c]
}

// Validate checks a criterion together with its argument. It is meant to run
// when a routine is created or updated, so that invalid configurations never
// reach the scheduler.
func Validate(c Criterion, argument string) error {
	if !c.IsKnown() {
		return fmt.Errorf("criterion: unknown criterion %q", c)
	}

	if c.NeedsArgument() && argument == "" {
		return fmt.Errorf("criterion: %q requires an argument", c)
	}

	switch c {
	case SentSince:
		if _, err := time.Parse(DateFormat, argument); err != nil {
			return fmt.Errorf("criterion: %q requires a date in format %s: %w",
				c, DateFormat, err)
		}

	case Larger, Smaller:
		size, err := strconv.Atoi(argument)
		if err != nil {
			return fmt.Errorf("criterion: %q requires an integer argument: %w", c, err)
		}

		if size <= 0 {
			return fmt.Errorf("criterion: %q requires a positive size, got %d", c, size)
		}
	}

	return nil
}
