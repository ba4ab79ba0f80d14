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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fweidner/postarchiv/internal/models"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func multipartMessage() []byte {
	return crlf(
		`Message-Id: <msg-1@example.com>`,
		`Subject: =?utf-8?q?Rechnung_M=C3=A4rz?=`,
		`Date: Fri, 14 Jun 2024 17:30:00 +0000`,
		`From: Alice Example <Alice@Example.com>`,
		`To: bob@example.com, Carol <carol@example.com>`,
		`In-Reply-To: <parent@example.com>`,
		`References: <root@example.com> <parent@example.com>`,
		`MIME-Version: 1.0`,
		`Content-Type: multipart/mixed; boundary="frontier"`,
		``,
		`--frontier`,
		`Content-Type: text/plain; charset=utf-8`,
		``,
		`plain body`,
		`--frontier`,
		`Content-Type: text/html; charset=utf-8`,
		``,
		`<p>html body</p>`,
		`--frontier`,
		`Content-Type: application/pdf`,
		`Content-Disposition: attachment; filename="invoice.pdf"`,
		`Content-Transfer-Encoding: base64`,
		``,
		`JVBERi0xLjQ=`,
		`--frontier`,
		`Content-Type: application/pgp-signature`,
		`Content-Disposition: attachment; filename="signature.asc"`,
		``,
		`fake signature`,
		`--frontier--`,
	)
}

func TestParseMultipart(t *testing.T) {
	email, err := Parse(multipartMessage(), Policy{
		AttachmentDenylist: []string{"application/pgp-signature"},
	})

	require.NoError(t, err)
	require.NotNil(t, email)

	assert.Equal(t, "msg-1@example.com", email.MessageID)
	assert.Equal(t, "Rechnung März", email.Subject)
	assert.Equal(t,
		time.Date(2024, time.June, 14, 17, 30, 0, 0, time.UTC),
		email.Date.UTC())

	assert.Equal(t, "plain body", email.TextBody)
	assert.Equal(t, "<p>html body</p>", email.HTMLBody)
	assert.False(t, email.Spam)
	assert.Empty(t, email.PartErrors)
}

func TestParseCorrespondents(t *testing.T) {
	email, err := Parse(multipartMessage(), Policy{})
	require.NoError(t, err)

	assert.Equal(t, []Address{
		{Name: "Alice Example", Address: "alice@example.com", Role: models.RoleFrom},
		{Name: "", Address: "bob@example.com", Role: models.RoleTo},
		{Name: "Carol", Address: "carol@example.com", Role: models.RoleTo},
	}, email.Addresses)
}

func TestParseReferences(t *testing.T) {
	email, err := Parse(multipartMessage(), Policy{})
	require.NoError(t, err)

	// The parent id appears in both headers but is collected once.
	assert.Equal(t,
		[]string{"parent@example.com", "root@example.com"},
		email.References)
}

func TestParseAttachments(t *testing.T) {
	email, err := Parse(multipartMessage(), Policy{
		AttachmentDenylist: []string{"application/pgp-signature"},
	})
	require.NoError(t, err)

	require.Len(t, email.Attachments, 1)
	attachment := email.Attachments[0]

	assert.Equal(t, "invoice.pdf", attachment.Filename)
	assert.Equal(t, "application/pdf", attachment.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), attachment.Content)
	assert.EqualValues(t, 8, attachment.Size)
}

func TestParseAttachmentDenylistByMaintype(t *testing.T) {
	email, err := Parse(multipartMessage(), Policy{
		AttachmentDenylist: []string{"application"},
	})
	require.NoError(t, err)

	assert.Empty(t, email.Attachments)
}

func relatedMessage() []byte {
	return crlf(
		`Message-Id: <msg-4@example.com>`,
		`Subject: newsletter`,
		`MIME-Version: 1.0`,
		`Content-Type: multipart/related; boundary="frontier"`,
		``,
		`--frontier`,
		`Content-Type: text/html; charset=utf-8`,
		``,
		`<img src="cid:logo">`,
		`--frontier`,
		`Content-Type: image/png`,
		`Content-Disposition: inline; filename="logo.png"`,
		`Content-Transfer-Encoding: base64`,
		``,
		`iVBORw0KGgo=`,
		`--frontier--`,
	)
}

func TestParseInlineImageKeptAsAttachment(t *testing.T) {
	email, err := Parse(relatedMessage(), Policy{})
	require.NoError(t, err)

	assert.Equal(t, `<img src="cid:logo">`, email.HTMLBody)

	require.Len(t, email.Attachments, 1)
	attachment := email.Attachments[0]

	assert.Equal(t, "logo.png", attachment.Filename)
	assert.Equal(t, "image/png", attachment.ContentType)
	assert.EqualValues(t, 8, attachment.Size)
}

func TestParseInlineDenylistApplies(t *testing.T) {
	email, err := Parse(relatedMessage(), Policy{
		AttachmentDenylist: []string{"image"},
	})
	require.NoError(t, err)

	assert.Empty(t, email.Attachments)
}

func TestParseThirdTextPartKeptAsAttachment(t *testing.T) {
	raw := crlf(
		`Message-Id: <msg-5@example.com>`,
		`MIME-Version: 1.0`,
		`Content-Type: multipart/mixed; boundary="frontier"`,
		``,
		`--frontier`,
		`Content-Type: text/plain; charset=utf-8`,
		``,
		`first body`,
		`--frontier`,
		`Content-Type: text/plain; charset=utf-8; name="notes.txt"`,
		``,
		`second text part`,
		`--frontier--`,
	)

	email, err := Parse(raw, Policy{})
	require.NoError(t, err)

	assert.Equal(t, "first body", email.TextBody)

	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "notes.txt", email.Attachments[0].Filename)
	assert.Equal(t, []byte("second text part"), email.Attachments[0].Content)
}

func TestParseSpamDiscarded(t *testing.T) {
	raw := crlf(
		`Message-Id: <spam-1@example.com>`,
		`Subject: you won`,
		`X-Spam-Flag: YES`,
		`Content-Type: text/plain`,
		``,
		`click here`,
	)

	_, err := Parse(raw, Policy{DiscardSpam: true})
	assert.ErrorIs(t, err, ErrSpamDiscarded)

	email, err := Parse(raw, Policy{DiscardSpam: false})
	require.NoError(t, err)
	assert.True(t, email.Spam)
}

func TestParseMissingMessageID(t *testing.T) {
	raw := crlf(
		`Subject: no id`,
		`Content-Type: text/plain`,
		``,
		`body`,
	)

	first, err := Parse(raw, Policy{})
	require.NoError(t, err)
	require.NotEmpty(t, first.MessageID)
	assert.True(t, strings.HasSuffix(first.MessageID, "@postarchiv.invalid"))

	// The fallback id is stable so re-fetching still deduplicates.
	second, err := Parse(raw, Policy{})
	require.NoError(t, err)
	assert.Equal(t, first.MessageID, second.MessageID)
}

func TestParseMalformedAddressesSkipped(t *testing.T) {
	raw := crlf(
		`Message-Id: <msg-2@example.com>`,
		`From: "broken <<<, valid@example.com`,
		`Content-Type: text/plain`,
		``,
		`body`,
	)

	email, err := Parse(raw, Policy{})
	require.NoError(t, err)

	require.Len(t, email.Addresses, 1)
	assert.Equal(t, "valid@example.com", email.Addresses[0].Address)
}

func TestParseSimplePlainText(t *testing.T) {
	raw := crlf(
		`Message-Id: <msg-3@example.com>`,
		`Subject: hello`,
		`Content-Type: text/plain; charset=utf-8`,
		``,
		`just text`,
	)

	email, err := Parse(raw, Policy{})
	require.NoError(t, err)

	assert.Equal(t, "just text\r\n", email.TextBody)
	assert.Empty(t, email.HTMLBody)
	assert.Empty(t, email.Attachments)
}

func TestParseMalformedMime(t *testing.T) {
	raw := crlf(
		`this is not a header line`,
		``,
		`body`,
	)

	_, err := Parse(raw, Policy{})
	assert.ErrorIs(t, err, ErrMalformedMime)
}

func TestPolicyFromViper(t *testing.T) {
	policy := PolicyFromViper()

	assert.False(t, policy.DiscardSpam)
	assert.Contains(t, policy.AttachmentDenylist, "application/pkcs7-signature")
}

func TestIsDeniedContentType(t *testing.T) {
	denylist := []string{"image", "pkcs7-signature", "application/zip"}

	for contentType, denied := range map[string]bool{
		"image/png":                     true,
		"application/pkcs7-signature":   true,
		"application/zip":               true,
		"application/pdf":               false,
		"text/plain":                    false,
	} {
		assert.Equal(t, denied, isDeniedContentType(contentType, denylist),
			"contentType=%q", contentType)
	}
}
