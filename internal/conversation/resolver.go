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

// Package conversation links archived emails into threads.
//
// Threading is incremental and order independent. Every archived email
// records the message-ids it mentions in its In-Reply-To and References
// headers. Linking a new email connects it to already archived emails in
// both directions: to the parents it mentions and to the children that
// mentioned it before it arrived. A single fetch cycle never sees a whole
// conversation, completeness grows with every cycle that archives a mailbox
// and its outgoing counterpart.
package conversation

import (
	"context"

	"github.com/fweidner/postarchiv/internal/database"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

// Resolver maintains the conversation graph.
type Resolver struct {
	conversationDao database.ConversationDao
}

// NewResolver creates a Resolver on top of the threading queries.
func NewResolver(conversationDao database.ConversationDao) *Resolver {
	return &Resolver{conversationDao: conversationDao}
}

// Link records the threading headers of a newly archived email and connects
// it to every archived email it is related to. It returns the ids of the
// emails a new edge was created to.
func (r *Resolver) Link(
	ctx context.Context,
	q database.Queryer,
	emailID int64,
	messageID string,
	references []string,
) ([]int64, error) {
	for _, reference := range references {
		err := r.conversationDao.InsertReference(ctx, q, &models.ReferenceEntity{
			EmailID:   emailID,
			MessageID: reference,
		})
		if err != nil {
			return nil, err
		}
	}

	related := make(map[int64]bool)

	// Parents that are already archived.
	parents, err := r.conversationDao.FindEmailsByMessageIDs(ctx, q, references)
	if err != nil {
		return nil, err
	}

	for _, parent := range parents {
		related[parent] = true
	}

	// Children that arrived first and mentioned this message-id.
	children, err := r.conversationDao.FindReferencingEmails(ctx, q, messageID)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		related[child] = true
	}

	delete(related, emailID)

	linked := make([]int64, 0, len(related))

	for relatedID := range related {
		if err := r.conversationDao.InsertEdge(ctx, q, emailID, relatedID); err != nil {
			return nil, err
		}

		linked = append(linked, relatedID)
	}

	if len(linked) > 0 {
		log.DebugContext(ctx).
			Int64("email", emailID).
			Int("edges", len(linked)).
			Msg("linked conversation")
	}

	return linked, nil
}

// Related returns the ids of emails directly connected to an email.
func (r *Resolver) Related(
	ctx context.Context,
	q database.Queryer,
	emailID int64,
) ([]int64, error) {
	return r.conversationDao.FindRelated(ctx, q, emailID)
}
