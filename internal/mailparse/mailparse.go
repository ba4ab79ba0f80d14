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

package mailparse

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/spf13/viper"

	"github.com/fweidner/postarchiv/internal/models"
)

func init() {
	viper.SetDefault("ingest.spam.discard", false)
	viper.SetDefault("ingest.attachments.denylist", []string{
		"application/pkcs7-signature",
		"application/pgp-signature",
	})
}

var (
	// ErrMalformedMime is returned when the raw payload cannot be read as a
	// mime message at all.
	ErrMalformedMime = errors.New("mailparse: malformed mime")

	// ErrSpamDiscarded is returned instead of an email when the message is
	// classified as spam and the policy says to drop it.
	ErrSpamDiscarded = errors.New("mailparse: spam discarded")
)

// Policy controls spam handling and attachment filtering during parsing.
type Policy struct {
	// DiscardSpam drops messages carrying a spam flag instead of archiving
	// them.
	DiscardSpam bool
	// AttachmentDenylist lists content types excluded from attachment
	// extraction. An entry matches the full type ("application/pdf"), the
	// maintype ("image") or the subtype ("pkcs7-signature").
	AttachmentDenylist []string
}

// PolicyFromViper reads the parsing policy from the global configuration.
//
//	ingest.spam.discard          = false
//	ingest.attachments.denylist  = [ "application/pkcs7-signature", ... ]
func PolicyFromViper() Policy {
	return Policy{
		DiscardSpam:        viper.GetBool("ingest.spam.discard"),
		AttachmentDenylist: viper.GetStringSlice("ingest.attachments.denylist"),
	}
}

// Address is a single decoded correspondent of an email.
type Address struct {
	Name    string
	Address string
	Role    models.Role
}

// Attachment is a non-body mime part with its decoded content.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// Email is the structured result of parsing one raw message.
type Email struct {
	MessageID string
	Subject   string
	Date      time.Time
	Spam      bool

	TextBody string
	HTMLBody string

	Addresses   []Address
	Attachments []Attachment

	// References holds the message-ids named by the References and
	// In-Reply-To headers, in order of appearance and without duplicates.
	References []string

	// PartErrors collects per-part decoding failures. A failing part is
	// skipped without aborting the rest of the message.
	PartErrors []error
}

var addressHeaders = []struct {
	key  string
	role models.Role
}{
	{"From", models.RoleFrom},
	{"To", models.RoleTo},
	{"Cc", models.RoleCc},
	{"Bcc", models.RoleBcc},
}

// Parse decodes a raw rfc 5322 message into an Email.
func Parse(raw []byte, policy Policy) (*Email, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMime, err)
	}

	defer reader.Close()

	email := Email{
		Spam: isSpamFlagged(&reader.Header),
	}

	if email.Spam && policy.DiscardSpam {
		return nil, ErrSpamDiscarded
	}

	parseEnvelope(&email, &reader.Header, raw)
	parseParts(&email, reader, policy)

	return &email, nil
}

func parseEnvelope(email *Email, header *mail.Header, raw []byte) {
	var err error

	if email.MessageID, err = header.MessageID(); err != nil || email.MessageID == "" {
		email.MessageID = fallbackMessageID(raw)

		if err != nil {
			email.PartErrors = append(email.PartErrors,
				fmt.Errorf("mailparse: message-id: %w", err))
		}
	}

	if email.Subject, err = header.Subject(); err != nil {
		email.PartErrors = append(email.PartErrors,
			fmt.Errorf("mailparse: subject: %w", err))
	}

	if email.Date, err = header.Date(); err != nil {
		email.PartErrors = append(email.PartErrors,
			fmt.Errorf("mailparse: date: %w", err))
	}

	for _, h := range addressHeaders {
		value, err := header.Text(h.key)
		if err != nil || value == "" {
			continue
		}

		email.Addresses = append(email.Addresses,
			parseAddresses(value, h.role)...)
	}

	email.References = collectReferences(header, email.MessageID)
}

// fallbackMessageID derives a stable id for messages without one, so that
// re-fetching the identical payload still deduplicates.
func fallbackMessageID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x@postarchiv.invalid", sum[:16])
}

// parseAddresses splits an address header value into individual entries.
// Malformed entries are skipped one by one instead of voiding the header.
func parseAddresses(value string, role models.Role) []Address {
	entries, err := netmail.ParseAddressList(value)
	if err != nil {
		for _, chunk := range strings.Split(value, ",") {
			entry, err := netmail.ParseAddress(strings.TrimSpace(chunk))
			if err != nil {
				continue
			}

			entries = append(entries, entry)
		}
	}

	addresses := make([]Address, 0, len(entries))

	for _, entry := range entries {
		addresses = append(addresses, Address{
			Name:    entry.Name,
			Address: strings.ToLower(entry.Address),
			Role:    role,
		})
	}

	return addresses
}

func collectReferences(header *mail.Header, self string) []string {
	var (
		references []string
		seen       = make(map[string]bool)
	)

	for _, key := range []string{"In-Reply-To", "References"} {
		ids, err := header.MsgIDList(key)
		if err != nil {
			continue
		}

		for _, id := range ids {
			if id == "" || id == self || seen[id] {
				continue
			}

			seen[id] = true
			references = append(references, id)
		}
	}

	return references
}

func isSpamFlagged(header *mail.Header) bool {
	return strings.EqualFold(header.Get("X-Spam-Flag"), "YES")
}

func parseParts(email *Email, reader *mail.Reader, policy Policy) {
	for {
		part, err := reader.NextPart()

		switch {
		case errors.Is(err, io.EOF):
			return
		case message.IsUnknownCharset(err):
			email.PartErrors = append(email.PartErrors, err)
		case err != nil:
			email.PartErrors = append(email.PartErrors, err)
			return
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			parseInlinePart(email, header, part.Body, policy)
		case *mail.AttachmentHeader:
			parseAttachmentPart(email, header, part.Body, policy)
		}
	}
}

func parseInlinePart(email *Email, header *mail.InlineHeader, body io.Reader, policy Policy) {
	contentType, params, err := header.ContentType()
	if err != nil {
		email.PartErrors = append(email.PartErrors, err)
		return
	}

	content, err := io.ReadAll(body)
	if err != nil {
		email.PartErrors = append(email.PartErrors, err)
		return
	}

	// The first text part of each kind becomes the body. Every other inline
	// leaf (embedded images, further text renditions) is an attachment.
	switch {
	case contentType == "text/plain" && email.TextBody == "":
		email.TextBody = string(content)
	case contentType == "text/html" && email.HTMLBody == "":
		email.HTMLBody = string(content)
	default:
		appendAttachment(email, contentType, inlineFilename(header, params),
			content, policy)
	}
}

// inlineFilename resolves the filename of an inline part from its disposition
// params, falling back to the content type name param.
func inlineFilename(header *mail.InlineHeader, typeParams map[string]string) string {
	if _, params, err := header.ContentDisposition(); err == nil {
		if filename := params["filename"]; filename != "" {
			return filename
		}
	}

	return typeParams["name"]
}

func parseAttachmentPart(
	email *Email,
	header *mail.AttachmentHeader,
	body io.Reader,
	policy Policy,
) {
	contentType, _, err := header.ContentType()
	if err != nil {
		email.PartErrors = append(email.PartErrors, err)
		return
	}

	filename, err := header.Filename()
	if err != nil {
		email.PartErrors = append(email.PartErrors, err)
		return
	}

	content, err := io.ReadAll(body)
	if err != nil {
		email.PartErrors = append(email.PartErrors, err)
		return
	}

	appendAttachment(email, contentType, filename, content, policy)
}

func appendAttachment(
	email *Email,
	contentType string,
	filename string,
	content []byte,
	policy Policy,
) {
	if isDeniedContentType(contentType, policy.AttachmentDenylist) {
		return
	}

	email.Attachments = append(email.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Content:     content,
	})
}

func isDeniedContentType(contentType string, denylist []string) bool {
	maintype, subtype, _ := strings.Cut(contentType, "/")

	for _, entry := range denylist {
		if entry == contentType || entry == maintype || entry == subtype {
			return true
		}
	}

	return false
}
