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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	for _, testCase := range []struct {
		criterion Criterion
		argument  string
		ok        bool
	}{
		{All, "", true},
		{Unseen, "", true},
		{Daily, "", true},
		{Annually, "", true},
		{From, "alice@example.com", true},
		{Subject, "invoice", true},
		{SentSince, "2024-06-01", true},
		{Larger, "1024", true},
		{Smaller, "1", true},

		{Criterion("BOGUS"), "", false},
		{From, "", false},
		{SentSince, "yesterday", false},
		{SentSince, "01.06.2024", false},
		{Larger, "big", false},
		{Larger, "0", false},
		{Smaller, "0", false},
		{Smaller, "-1", false},
	} {
		err := Validate(testCase.criterion, testCase.argument)

		if testCase.ok {
			assert.NoError(t, err, "criterion=%q argument=%q",
				testCase.criterion, testCase.argument)
		} else {
			assert.Error(t, err, "criterion=%q argument=%q",
				testCase.criterion, testCase.argument)
		}
	}
}

func TestFamilies(t *testing.T) {
	assert.True(t, All.IsFlag())
	assert.True(t, New.IsFlag())
	assert.False(t, Daily.IsFlag())

	assert.True(t, Weekly.IsTimeWindow())
	assert.False(t, Seen.IsTimeWindow())

	assert.True(t, Keyword.NeedsArgument())
	assert.False(t, Monthly.NeedsArgument())

	assert.True(t, Undeleted.IsKnown())
	assert.False(t, Criterion("BOGUS").IsKnown())
}
