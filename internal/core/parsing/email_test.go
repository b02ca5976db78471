package parsing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartEmail = `From: "Ann Smith" <ann@example.com>
To: bob@example.com, "Carl" <carl@example.com>
Subject: =?UTF-8?Q?Quarterly_report?=
Date: Mon, 02 Jan 2006 15:04:05 +0000
Message-ID: <abc@example.com>
In-Reply-To: <prev@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="XYZ"

--XYZ
Content-Type: text/plain; charset=utf-8

Numbers are up. See https://example.com/report for details.
--XYZ
Content-Type: application/pdf; name="report.pdf"
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

aGVsbG8=
--XYZ--
`

func TestEmailMultipart(t *testing.T) {
	res := NewEmailExtractor().Extract(context.Background(), []byte(multipartEmail), "report.eml", 1000, 200)
	require.True(t, res.Success, res.Error)

	chunks := res.Content.Chunks
	assert.Equal(t, []string{"email_headers", "email_body_0", "email_attachments"}, sources(chunks))
	requireContiguous(t, chunks)

	assert.Equal(t, "Email Headers", chunks[0].Heading)
	assert.Equal(t, "Subject: Quarterly report\nFrom: Ann Smith <ann@example.com>\n"+
		"To: bob@example.com, \"Carl\" <carl@example.com>\nDate: 2006-01-02 15:04:05", chunks[0].Content)

	assert.Equal(t, "Quarterly report", chunks[1].Heading)
	assert.Equal(t, "Numbers are up. See https://example.com/report for details.", chunks[1].Content)

	assert.Equal(t, "Attachments", chunks[2].Heading)
	assert.Equal(t, "Attachments:\n- report.pdf (application/pdf)", chunks[2].Content)

	full := res.Content.FullText
	assert.True(t, strings.HasPrefix(full, "=== EMAIL HEADERS ===\nFrom: Ann Smith <ann@example.com>"))
	assert.Contains(t, full, "=== EMAIL BODY ===\nNumbers are up.")
	assert.Contains(t, full, "=== ATTACHMENTS ===\n- report.pdf (application/pdf, 0.0 KB)")

	assert.Equal(t, []string{"https://example.com/report"}, res.Content.Links)

	meta := res.Metadata
	assert.Equal(t, "Quarterly report", meta.Title)
	assert.Equal(t, "Ann Smith <ann@example.com>", meta.Author)
	require.NotNil(t, meta.CreatedAt)
	assert.Equal(t, 2006, meta.CreatedAt.Year())
	assert.Equal(t, "<abc@example.com>", meta.Custom["message_id"])
	assert.Equal(t, 1, meta.Custom["attachment_count"])
	assert.Equal(t, false, meta.Custom["has_html"])
	assert.Equal(t, "2006-01-02T15:04:05Z", meta.Custom["date"])
	assert.Equal(t, "ann@example.com", meta.Custom["from_email"])
	assert.Equal(t, "<prev@example.com>", meta.Custom["in_reply_to"])
	assert.Equal(t, []string{"bob@example.com", "Carl <carl@example.com>"}, meta.Custom["to_addresses"])
}

func TestEmailHTMLOnlyBody(t *testing.T) {
	raw := "From: ann@example.com\r\n" +
		"Subject: Hello\r\n" +
		"Date: not a date\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"<html><body><p>Hi <a href=3D\"https://x.test/a\">there</a></p><p>Bye</p></body></html>\r\n"

	res := NewEmailExtractor().Extract(context.Background(), []byte(raw), "hello.eml", 1000, 200)
	require.True(t, res.Success, res.Error)

	assert.Equal(t, []string{"email_headers", "email_body_0"}, sources(res.Content.Chunks))
	body := res.Content.Chunks[1]
	assert.Equal(t, "Hi there\nBye", body.Content)
	assert.Equal(t, "Hello", body.Heading)
	assert.Contains(t, res.Content.Chunks[0].Content, "Date: not a date")

	assert.Equal(t, []string{"https://x.test/a"}, res.Content.Links)
	assert.Equal(t, true, res.Metadata.Custom["has_html"])
	assert.Nil(t, res.Metadata.Custom["date"])
	assert.Nil(t, res.Metadata.CreatedAt)
}

func TestEmailWithoutBody(t *testing.T) {
	raw := "From: ann@example.com\nSubject: Empty\n\n"
	res := NewEmailExtractor().Extract(context.Background(), []byte(raw), "empty.eml", 1000, 200)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"email_headers"}, sources(res.Content.Chunks))
	assert.Contains(t, res.Content.FullText, "[No text content]")
}

func TestEmailUnparseable(t *testing.T) {
	res := NewEmailExtractor().Extract(context.Background(), []byte("no header separator"), "bad.eml", 1000, 200)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Failed to parse EML")
}
