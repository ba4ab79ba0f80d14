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
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fweidner/postarchiv/internal/criterion"
	"github.com/fweidner/postarchiv/internal/log"
	"github.com/fweidner/postarchiv/internal/models"
)

// exchangeMaxPerCycle caps one fetch cycle. Exchange servers throttle large
// GetItem batches aggressively, so the remainder is left for the next run.
const exchangeMaxPerCycle = 25

const exchangeRetryAttempts = 3

// exchangeDialer implements Dialer over Exchange Web Services.
type exchangeDialer struct{}

// NewExchangeDialer creates a Dialer for Exchange accounts.
func NewExchangeDialer() Dialer {
	return exchangeDialer{}
}

func (exchangeDialer) Protocol() models.Protocol {
	return models.ProtocolExchange
}

func (exchangeDialer) Capabilities() criterion.Set {
	return criterion.NewSet(
		criterion.All,
		criterion.Seen,
		criterion.Unseen,

		criterion.Daily,
		criterion.Weekly,
		criterion.Monthly,
		criterion.Annually,

		criterion.From,
		criterion.Subject,
		criterion.Body,
		criterion.Larger,
		criterion.Smaller,
		criterion.SentSince,
	)
}

func (exchangeDialer) Dial(ctx context.Context, account *models.AccountEntity) (Client, error) {
	endpoint := fmt.Sprintf("https://%s/EWS/Exchange.asmx", account.Host)

	log.DebugContext(ctx).
		Str("endpoint", endpoint).
		Msg("dialing exchange server")

	client := &exchangeClient{
		endpoint: endpoint,
		username: account.Username,
		password: account.Password,
		http:     &http.Client{Timeout: accountTimeout(account)},
	}

	// EWS is stateless, so the dial verifies credentials with a folder
	// listing right away.
	if _, err := client.Mailboxes(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

type exchangeClient struct {
	endpoint string
	username string
	password string
	http     *http.Client
}

const exchangeEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
               xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages"
               xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
  <soap:Body>%s</soap:Body>
</soap:Envelope>`

// call posts a SOAP body and decodes the response envelope into dest.
// Transient failures are retried with a doubling backoff.
func (c *exchangeClient) call(ctx context.Context, body string, dest any) error {
	payload := fmt.Sprintf(exchangeEnvelope, body)
	backoff := time.Second

	var lastErr error

	for attempt := 0; attempt < exchangeRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return connErr(ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		retry, err := c.post(ctx, payload, dest)
		if err == nil {
			return nil
		}

		lastErr = err

		if !retry {
			return err
		}

		log.WarnContext(ctx).
			Int("attempt", attempt+1).
			Err(err).
			Msg("retrying exchange request")
	}

	return lastErr
}

func (c *exchangeClient) post(ctx context.Context, payload string, dest any) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(payload))
	if err != nil {
		return false, connErr(err)
	}

	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return true, connErr(err)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, authErr(fmt.Errorf("exchange: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return true, connErr(fmt.Errorf("exchange: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return false, connErr(fmt.Errorf("exchange: status %d", resp.StatusCode))
	}

	if err := xml.NewDecoder(resp.Body).Decode(dest); err != nil {
		return false, connErr(err)
	}

	return false, nil
}

type exchangeFolderResponse struct {
	Folders []struct {
		ID struct {
			Value string `xml:"Id,attr"`
		} `xml:"FolderId"`
		DisplayName string `xml:"DisplayName"`
		TotalCount  uint32 `xml:"TotalCount"`
	} `xml:"Body>FindFolderResponse>ResponseMessages>FindFolderResponseMessage>RootFolder>Folders>Folder"`
}

const exchangeFindFolders = `
<m:FindFolder Traversal="Deep">
  <m:FolderShape><t:BaseShape>Default</t:BaseShape></m:FolderShape>
  <m:ParentFolderIds><t:DistinguishedFolderId Id="msgfolderroot"/></m:ParentFolderIds>
</m:FindFolder>`

func (c *exchangeClient) Mailboxes(ctx context.Context) ([]MailboxInfo, error) {
	var response exchangeFolderResponse

	if err := c.call(ctx, exchangeFindFolders, &response); err != nil {
		return nil, err
	}

	infos := make([]MailboxInfo, 0, len(response.Folders))

	for _, folder := range response.Folders {
		infos = append(infos, MailboxInfo{
			Name:  folder.DisplayName,
			Total: folder.TotalCount,
		})
	}

	return infos, nil
}

func (c *exchangeClient) folderID(ctx context.Context, mailbox string) (string, error) {
	var response exchangeFolderResponse

	if err := c.call(ctx, exchangeFindFolders, &response); err != nil {
		return "", err
	}

	for _, folder := range response.Folders {
		if folder.DisplayName == mailbox {
			return folder.ID.Value, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrMailboxNotFound, mailbox)
}

type exchangeFindItemResponse struct {
	Items []struct {
		ID struct {
			Value string `xml:"Id,attr"`
		} `xml:"ItemId"`
	} `xml:"Body>FindItemResponse>ResponseMessages>FindItemResponseMessage>RootFolder>Items>Message"`
}

type exchangeGetItemResponse struct {
	Messages []struct {
		MimeContent string `xml:"MimeContent"`
		IsRead      bool   `xml:"IsRead"`
	} `xml:"Body>GetItemResponse>ResponseMessages>GetItemResponseMessage>Items>Message"`
}

func (c *exchangeClient) Fetch(
	ctx context.Context,
	mailbox string,
	query criterion.Query,
	limit int,
) (Messages, error) {
	folderID, err := c.folderID(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	restriction, err := exchangeRestriction(query)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > exchangeMaxPerCycle {
		limit = exchangeMaxPerCycle
	}

	findItem := fmt.Sprintf(`
<m:FindItem Traversal="Shallow">
  <m:ItemShape><t:BaseShape>IdOnly</t:BaseShape></m:ItemShape>
  <m:IndexedPageItemView MaxEntriesReturned="%d" Offset="0" BasePoint="End"/>
  %s
  <m:ParentFolderIds><t:FolderId Id="%s"/></m:ParentFolderIds>
</m:FindItem>`, limit, restriction, xmlEscape(folderID))

	var response exchangeFindItemResponse

	if err := c.call(ctx, findItem, &response); err != nil {
		return nil, err
	}

	messages := make([]RawMessage, 0, len(response.Items))

	for _, item := range response.Items {
		raw, err := c.getItem(ctx, item.ID.Value)
		if err != nil {
			return nil, err
		}

		messages = append(messages, *raw)
	}

	return &sliceMessages{messages: messages}, nil
}

func (c *exchangeClient) getItem(ctx context.Context, itemID string) (*RawMessage, error) {
	getItem := fmt.Sprintf(`
<m:GetItem>
  <m:ItemShape>
    <t:BaseShape>IdOnly</t:BaseShape>
    <t:IncludeMimeContent>true</t:IncludeMimeContent>
    <t:AdditionalProperties><t:FieldURI FieldURI="message:IsRead"/></t:AdditionalProperties>
  </m:ItemShape>
  <m:ItemIds><t:ItemId Id="%s"/></m:ItemIds>
</m:GetItem>`, xmlEscape(itemID))

	var response exchangeGetItemResponse

	if err := c.call(ctx, getItem, &response); err != nil {
		return nil, err
	}

	if len(response.Messages) == 0 {
		return nil, connErr(fmt.Errorf("exchange: item %q missing in response", itemID))
	}

	message := response.Messages[0]

	body, err := base64.StdEncoding.DecodeString(message.MimeContent)
	if err != nil {
		return nil, fmt.Errorf("exchange: malformed mime content: %w", err)
	}

	raw := RawMessage{Body: body}

	if message.IsRead {
		raw.Flags = []string{"\\Seen"}
	}

	return &raw, nil
}

func (c *exchangeClient) Restore(ctx context.Context, mailbox string, raw []byte) error {
	folderID, err := c.folderID(ctx, mailbox)
	if err != nil {
		return err
	}

	createItem := fmt.Sprintf(`
<m:CreateItem MessageDisposition="SaveOnly">
  <m:SavedItemFolderId><t:FolderId Id="%s"/></m:SavedItemFolderId>
  <m:Items>
    <t:Message><t:MimeContent CharacterSet="UTF-8">%s</t:MimeContent></t:Message>
  </m:Items>
</m:CreateItem>`, xmlEscape(folderID), base64.StdEncoding.EncodeToString(raw))

	var response struct{}

	return c.call(ctx, createItem, &response)
}

func (c *exchangeClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// exchangeRestriction renders the search restriction for a query. An empty
// string means no restriction.
func exchangeRestriction(query criterion.Query) (string, error) {
	const timeLayout = "2006-01-02T15:04:05Z07:00"

	contains := func(fieldURI, value string) string {
		return fmt.Sprintf(`
  <m:Restriction>
    <t:Contains ContainmentMode="Substring" ContainmentComparison="IgnoreCase">
      <t:FieldURI FieldURI="%s"/>
      <t:Constant Value="%s"/>
    </t:Contains>
  </m:Restriction>`, fieldURI, xmlEscape(value))
	}

	switch query.Criterion {
	case criterion.All:
		return "", nil

	case criterion.Seen, criterion.Unseen:
		return fmt.Sprintf(`
  <m:Restriction>
    <t:IsEqualTo>
      <t:FieldURI FieldURI="message:IsRead"/>
      <t:FieldURIOrConstant><t:Constant Value="%t"/></t:FieldURIOrConstant>
    </t:IsEqualTo>
  </m:Restriction>`, query.Criterion == criterion.Seen), nil

	case criterion.Daily, criterion.Weekly, criterion.Monthly, criterion.Annually:
		return fmt.Sprintf(`
  <m:Restriction>
    <t:IsGreaterThanOrEqualTo>
      <t:FieldURI FieldURI="item:DateTimeReceived"/>
      <t:FieldURIOrConstant><t:Constant Value="%s"/></t:FieldURIOrConstant>
    </t:IsGreaterThanOrEqualTo>
  </m:Restriction>`, query.Since.UTC().Format(timeLayout)), nil

	case criterion.SentSince:
		return fmt.Sprintf(`
  <m:Restriction>
    <t:IsGreaterThanOrEqualTo>
      <t:FieldURI FieldURI="item:DateTimeSent"/>
      <t:FieldURIOrConstant><t:Constant Value="%s"/></t:FieldURIOrConstant>
    </t:IsGreaterThanOrEqualTo>
  </m:Restriction>`, query.Since.UTC().Format(timeLayout)), nil

	case criterion.From:
		return contains("message:From", query.Argument), nil
	case criterion.Subject:
		return contains("item:Subject", query.Argument), nil
	case criterion.Body:
		return contains("item:Body", query.Argument), nil

	case criterion.Larger:
		return fmt.Sprintf(`
  <m:Restriction>
    <t:IsGreaterThan>
      <t:FieldURI FieldURI="item:Size"/>
      <t:FieldURIOrConstant><t:Constant Value="%s"/></t:FieldURIOrConstant>
    </t:IsGreaterThan>
  </m:Restriction>`, xmlEscape(query.Argument)), nil

	case criterion.Smaller:
		return fmt.Sprintf(`
  <m:Restriction>
    <t:IsLessThan>
      <t:FieldURI FieldURI="item:Size"/>
      <t:FieldURIOrConstant><t:Constant Value="%s"/></t:FieldURIOrConstant>
    </t:IsLessThan>
  </m:Restriction>`, xmlEscape(query.Argument)), nil
	}

	return "", criterion.ErrUnsupported
}

func xmlEscape(s string) string {
	var buf bytes.Buffer

	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}

	return buf.String()
}
