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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fweidner/postarchiv/internal/criterion"
)

// jmapMethodScript maps method names to canned response arguments.
type jmapMethodScript map[string]any

func newTestJMAPClient(t *testing.T, script jmapMethodScript, blobs map[string]string) *jmapClient {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		var request jmapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		require.Len(t, request.MethodCalls, 1)

		call, ok := request.MethodCalls[0].([]any)
		require.True(t, ok)

		method, ok := call[0].(string)
		require.True(t, ok)

		args, ok := script[method]
		if !ok {
			t.Errorf("unexpected method call: %s", method)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"methodResponses": []any{
				[]any{method, args, "0"},
			},
		})
	})

	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		blobID := strings.TrimPrefix(r.URL.Path, "/download/")

		body, ok := blobs[blobID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		io.WriteString(w, body)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &jmapClient{
		username: "user",
		password: "secret",
		http:     server.Client(),
		session: jmapSession{
			APIURL:      server.URL + "/api",
			DownloadURL: server.URL + "/download/{blobId}",
		},
		accountID: "acc-1",
	}
}

func jmapMailboxList() any {
	return map[string]any{
		"list": []map[string]any{
			{"id": "mbox-inbox", "name": "INBOX", "totalEmails": 4},
			{"id": "mbox-archive", "name": "Archive", "totalEmails": 120},
		},
	}
}

func TestJMAPMailboxes(t *testing.T) {
	client := newTestJMAPClient(t, jmapMethodScript{
		"Mailbox/get": jmapMailboxList(),
	}, nil)

	mailboxes, err := client.Mailboxes(context.TODO())
	require.NoError(t, err)
	require.Len(t, mailboxes, 2)

	assert.Equal(t, "INBOX", mailboxes[0].Name)
	assert.EqualValues(t, 4, mailboxes[0].Total)
	assert.Equal(t, "Archive", mailboxes[1].Name)
}

func TestJMAPFetch(t *testing.T) {
	// The query reports newest first, iteration yields oldest first.
	client := newTestJMAPClient(t, jmapMethodScript{
		"Mailbox/get": jmapMailboxList(),
		"Email/query": map[string]any{
			"ids": []string{"email-2", "email-1"},
		},
		"Email/get": map[string]any{
			"list": []map[string]any{
				{"blobId": "blob-2", "keywords": map[string]bool{"$seen": true}},
				{"blobId": "blob-1", "keywords": map[string]bool{}},
			},
		},
	}, map[string]string{
		"blob-1": "Subject: older\r\n\r\nbody one",
		"blob-2": "Subject: newer\r\n\r\nbody two",
	})

	messages, err := client.Fetch(context.TODO(), "INBOX",
		criterion.Query{Criterion: criterion.All}, 0)
	require.NoError(t, err)

	defer messages.Close()

	first, err := messages.Next()
	require.NoError(t, err)
	assert.Contains(t, string(first.Body), "Subject: older")
	assert.Empty(t, first.Flags)

	second, err := messages.Next()
	require.NoError(t, err)
	assert.Contains(t, string(second.Body), "Subject: newer")
	assert.Equal(t, []string{"\\Seen"}, second.Flags)

	_, err = messages.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestJMAPFetchUnknownMailbox(t *testing.T) {
	client := newTestJMAPClient(t, jmapMethodScript{
		"Mailbox/get": jmapMailboxList(),
	}, nil)

	_, err := client.Fetch(context.TODO(), "Missing",
		criterion.Query{Criterion: criterion.All}, 0)
	assert.ErrorIs(t, err, ErrMailboxNotFound)
}

func TestJMAPMethodError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"methodResponses":[["error",{"type":"serverFail"},"0"]]}`)
	}))
	t.Cleanup(server.Close)

	client := &jmapClient{
		http:      server.Client(),
		session:   jmapSession{APIURL: server.URL},
		accountID: "acc-1",
	}

	_, err := client.Mailboxes(context.TODO())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestJMAPAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := &jmapClient{
		http:      server.Client(),
		session:   jmapSession{APIURL: server.URL},
		accountID: "acc-1",
	}

	_, err := client.Mailboxes(context.TODO())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestJMAPRestore(t *testing.T) {
	client := newTestJMAPClient(t, nil, nil)

	err := client.Restore(context.TODO(), "INBOX", []byte("raw"))
	assert.ErrorIs(t, err, ErrRestoreUnsupported)
}

func TestJMAPKeywordsToFlags(t *testing.T) {
	flags := jmapKeywordsToFlags(map[string]bool{
		"$seen":     true,
		"$flagged":  true,
		"$draft":    false,
		"important": true,
	})

	assert.ElementsMatch(t, []string{"\\Seen", "\\Flagged", "important"}, flags)
}

func TestJMAPFilter(t *testing.T) {
	filter, err := jmapFilter("mbox-1", criterion.Query{Criterion: criterion.All})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"inMailbox": "mbox-1"}, filter)

	filter, err = jmapFilter("mbox-1", criterion.Query{Criterion: criterion.Unseen})
	require.NoError(t, err)
	assert.Equal(t, "$seen", filter["notKeyword"])

	filter, err = jmapFilter("mbox-1", criterion.Query{
		Criterion: criterion.Keyword,
		Argument:  "invoice",
	})
	require.NoError(t, err)
	assert.Equal(t, "invoice", filter["hasKeyword"])

	since := time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC)
	filter, err = jmapFilter("mbox-1", criterion.Query{
		Criterion: criterion.Daily,
		Since:     since,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-14T12:00:00Z", filter["after"])

	filter, err = jmapFilter("mbox-1", criterion.Query{
		Criterion: criterion.Smaller,
		Argument:  "1024",
	})
	require.NoError(t, err)
	assert.Equal(t, 1024, filter["maxSize"])

	_, err = jmapFilter("mbox-1", criterion.Query{
		Criterion: criterion.Larger,
		Argument:  "big",
	})
	assert.Error(t, err)
}
