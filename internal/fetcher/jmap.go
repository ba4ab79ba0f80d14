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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

var jmapUsing = []string{
	"urn:ietf:params:jmap:core",
	"urn:ietf:params:jmap:mail",
}

// jmapDialer implements Dialer over JMAP (RFC 8620/8621).
type jmapDialer struct{}

// NewJMAPDialer creates a Dialer for JMAP accounts.
func NewJMAPDialer() Dialer {
	return jmapDialer{}
}

func (jmapDialer) Protocol() models.Protocol {
	return models.ProtocolJMAP
}

func (jmapDialer) Capabilities() criterion.Set {
	return criterion.NewSet(
		criterion.All,
		criterion.Seen,
		criterion.Unseen,
		criterion.Flagged,
		criterion.Unflagged,
		criterion.Draft,
		criterion.Undraft,
		criterion.Answered,
		criterion.Unanswered,

		criterion.Daily,
		criterion.Weekly,
		criterion.Monthly,
		criterion.Annually,

		criterion.From,
		criterion.Subject,
		criterion.Body,
		criterion.Keyword,
		criterion.Unkeyword,
		criterion.Larger,
		criterion.Smaller,
		criterion.SentSince,
	)
}

type jmapSession struct {
	APIURL      string `json:"apiUrl"`
	DownloadURL string `json:"downloadUrl"`

	PrimaryAccounts map[string]string `json:"primaryAccounts"`
}

func (jmapDialer) Dial(ctx context.Context, account *models.AccountEntity) (Client, error) {
	sessionURL := fmt.Sprintf("https://%s/.well-known/jmap", account.Host)

	log.DebugContext(ctx).
		Str("session", sessionURL).
		Msg("dialing jmap server")

	client := &jmapClient{
		username: account.Username,
		password: account.Password,
		http:     &http.Client{Timeout: accountTimeout(account)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return nil, connErr(err)
	}

	req.SetBasicAuth(client.username, client.password)

	resp, err := client.http.Do(req)
	if err != nil {
		return nil, connErr(err)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, authErr(fmt.Errorf("jmap: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, connErr(fmt.Errorf("jmap: status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(&client.session); err != nil {
		return nil, connErr(err)
	}

	client.accountID = client.session.PrimaryAccounts["urn:ietf:params:jmap:mail"]
	if client.accountID == "" {
		return nil, connErr(fmt.Errorf("jmap: session lacks a mail account"))
	}

	return client, nil
}

type jmapClient struct {
	username  string
	password  string
	http      *http.Client
	session   jmapSession
	accountID string
}

type jmapRequest struct {
	Using       []string `json:"using"`
	MethodCalls []any    `json:"methodCalls"`
}

type jmapResponse struct {
	MethodResponses [][]json.RawMessage `json:"methodResponses"`
}

// call invokes a single method and decodes its arguments into dest.
func (c *jmapClient) call(ctx context.Context, method string, args any, dest any) error {
	payload, err := json.Marshal(jmapRequest{
		Using:       jmapUsing,
		MethodCalls: []any{[]any{method, args, "0"}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.APIURL,
		bytes.NewReader(payload))
	if err != nil {
		return connErr(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return connErr(err)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return authErr(fmt.Errorf("jmap: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return connErr(fmt.Errorf("jmap: status %d", resp.StatusCode))
	}

	var response jmapResponse

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return connErr(err)
	}

	for _, methodResponse := range response.MethodResponses {
		if len(methodResponse) < 2 {
			continue
		}

		var name string
		if err := json.Unmarshal(methodResponse[0], &name); err != nil {
			continue
		}

		if name == method {
			return json.Unmarshal(methodResponse[1], dest)
		}

		if name == "error" {
			return connErr(fmt.Errorf("jmap: method error: %s", methodResponse[1]))
		}
	}

	return connErr(fmt.Errorf("jmap: missing response for %s", method))
}

type jmapMailbox struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TotalEmails uint32 `json:"totalEmails"`
}

func (c *jmapClient) mailboxes(ctx context.Context) ([]jmapMailbox, error) {
	var result struct {
		List []jmapMailbox `json:"list"`
	}

	args := map[string]any{
		"accountId": c.accountID,
		"ids":       nil,
	}

	if err := c.call(ctx, "Mailbox/get", args, &result); err != nil {
		return nil, err
	}

	return result.List, nil
}

func (c *jmapClient) Mailboxes(ctx context.Context) ([]MailboxInfo, error) {
	mailboxes, err := c.mailboxes(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]MailboxInfo, 0, len(mailboxes))

	for _, mailbox := range mailboxes {
		infos = append(infos, MailboxInfo{
			Name:  mailbox.Name,
			Total: mailbox.TotalEmails,
		})
	}

	return infos, nil
}

func (c *jmapClient) mailboxID(ctx context.Context, name string) (string, error) {
	mailboxes, err := c.mailboxes(ctx)
	if err != nil {
		return "", err
	}

	for _, mailbox := range mailboxes {
		if mailbox.Name == name {
			return mailbox.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrMailboxNotFound, name)
}

func (c *jmapClient) Fetch(
	ctx context.Context,
	mailbox string,
	query criterion.Query,
	limit int,
) (Messages, error) {
	mailboxID, err := c.mailboxID(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	filter, err := jmapFilter(mailboxID, query)
	if err != nil {
		return nil, err
	}

	queryArgs := map[string]any{
		"accountId": c.accountID,
		"filter":    filter,
		"sort": []map[string]any{
			{"property": "receivedAt", "isAscending": false},
		},
	}

	if limit > 0 {
		queryArgs["limit"] = limit
	}

	var queryResult struct {
		IDs []string `json:"ids"`
	}

	if err := c.call(ctx, "Email/query", queryArgs, &queryResult); err != nil {
		return nil, err
	}

	if len(queryResult.IDs) == 0 {
		return &sliceMessages{}, nil
	}

	var getResult struct {
		List []struct {
			BlobID   string          `json:"blobId"`
			Keywords map[string]bool `json:"keywords"`
		} `json:"list"`
	}

	getArgs := map[string]any{
		"accountId":  c.accountID,
		"ids":        queryResult.IDs,
		"properties": []string{"blobId", "keywords"},
	}

	if err := c.call(ctx, "Email/get", getArgs, &getResult); err != nil {
		return nil, err
	}

	var entries []jmapEntry

	for _, email := range getResult.List {
		entries = append(entries, jmapEntry{
			blobID: email.BlobID,
			flags:  jmapKeywordsToFlags(email.Keywords),
		})
	}

	// The query sorts newest first so that a limit selects the most recent
	// messages. Iteration yields chronologically ascending.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return &jmapMessages{client: c, ctx: ctx, entries: entries}, nil
}

func (c *jmapClient) downloadBlob(ctx context.Context, blobID string) ([]byte, error) {
	replacer := strings.NewReplacer(
		"{accountId}", c.accountID,
		"{blobId}", blobID,
		"{name}", "blob",
		"{type}", "message/rfc822",
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		replacer.Replace(c.session.DownloadURL), nil)
	if err != nil {
		return nil, connErr(err)
	}

	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, connErr(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, connErr(fmt.Errorf("jmap: blob download status %d", resp.StatusCode))
	}

	return io.ReadAll(resp.Body)
}

func (c *jmapClient) Restore(ctx context.Context, mailbox string, raw []byte) error {
	return ErrRestoreUnsupported
}

func (c *jmapClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type jmapEntry struct {
	blobID string
	flags  []string
}

// jmapMessages downloads blobs one message at a time.
type jmapMessages struct {
	client  *jmapClient
	ctx     context.Context
	entries []jmapEntry
	index   int
}

func (m *jmapMessages) Next() (*RawMessage, error) {
	if m.index >= len(m.entries) {
		return nil, io.EOF
	}

	entry := m.entries[m.index]
	m.index++

	body, err := m.client.downloadBlob(m.ctx, entry.blobID)
	if err != nil {
		return nil, err
	}

	return &RawMessage{Flags: entry.flags, Body: body}, nil
}

func (m *jmapMessages) Close() error {
	return nil
}

// jmapKeywordsToFlags maps the reserved jmap keywords onto their imap flag
// spellings. Custom keywords pass through unchanged.
func jmapKeywordsToFlags(keywords map[string]bool) []string {
	mapping := map[string]string{
		"$seen":     "\\Seen",
		"$flagged":  "\\Flagged",
		"$draft":    "\\Draft",
		"$answered": "\\Answered",
	}

	var flags []string

	for keyword, set := range keywords {
		if !set {
			continue
		}

		if flag, ok := mapping[keyword]; ok {
			flags = append(flags, flag)
		} else {
			flags = append(flags, keyword)
		}
	}

	return flags
}

// jmapFilter renders the email filter condition for a query.
func jmapFilter(mailboxID string, query criterion.Query) (map[string]any, error) {
	filter := map[string]any{
		"inMailbox": mailboxID,
	}

	keyword := func(name string, set bool) (map[string]any, error) {
		if set {
			filter["hasKeyword"] = name
		} else {
			filter["notKeyword"] = name
		}

		return filter, nil
	}

	switch query.Criterion {
	case criterion.All:
		return filter, nil

	case criterion.Seen:
		return keyword("$seen", true)
	case criterion.Unseen:
		return keyword("$seen", false)
	case criterion.Flagged:
		return keyword("$flagged", true)
	case criterion.Unflagged:
		return keyword("$flagged", false)
	case criterion.Draft:
		return keyword("$draft", true)
	case criterion.Undraft:
		return keyword("$draft", false)
	case criterion.Answered:
		return keyword("$answered", true)
	case criterion.Unanswered:
		return keyword("$answered", false)
	case criterion.Keyword:
		return keyword(query.Argument, true)
	case criterion.Unkeyword:
		return keyword(query.Argument, false)

	case criterion.Daily, criterion.Weekly, criterion.Monthly, criterion.Annually,
		criterion.SentSince:
		filter["after"] = query.Since.UTC().Format(time.RFC3339)
		return filter, nil

	case criterion.From:
		filter["from"] = query.Argument
		return filter, nil
	case criterion.Subject:
		filter["subject"] = query.Argument
		return filter, nil
	case criterion.Body:
		filter["body"] = query.Argument
		return filter, nil

	case criterion.Larger:
		size, err := strconv.Atoi(query.Argument)
		if err != nil {
			return nil, err
		}

		filter["minSize"] = size
		return filter, nil
	case criterion.Smaller:
		size, err := strconv.Atoi(query.Argument)
		if err != nil {
			return nil, err
		}

		filter["maxSize"] = size
		return filter, nil
	}

	return nil, criterion.ErrUnsupported
}
