package parsing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/markdave123-py/docsift/internal/logging"
)

const emailDateLayout = "2006-01-02 15:04:05"

var (
	emailURLPattern  = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")
	emailHrefPattern = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)
	emailBlockTags   = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "tr": true, "td": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
)

type emailExtractor struct {
	words *mime.WordDecoder
}

// NewEmailExtractor handles RFC 5322 .eml messages. Attachments are listed
// but their content is never extracted.
func NewEmailExtractor() Extractor {
	return &emailExtractor{words: &mime.WordDecoder{CharsetReader: charset.NewReaderLabel}}
}

func (e *emailExtractor) Tags() []FormatTag { return []FormatTag{TagEML} }

type emailHeaders struct {
	subject    string
	from       string
	fromName   string
	fromEmail  string
	to         string
	toList     []*mail.Address
	cc         string
	ccList     []*mail.Address
	bcc        string
	date       *time.Time
	dateRaw    string
	messageID  string
	replyTo    string
	inReplyTo  string
	references string
}

// dateString is the formatted date, or the raw header when it did not parse.
func (h emailHeaders) dateString() string {
	if h.date != nil {
		return h.date.Format(emailDateLayout)
	}
	return h.dateRaw
}

type emailAttachment struct {
	filename    string
	contentType string
	size        int
}

type emailBody struct {
	text        strings.Builder
	html        strings.Builder
	attachments []emailAttachment
}

func (e *emailExtractor) Extract(ctx context.Context, data []byte, filename string, size, overlap int) *ParserResult {
	logger := logging.FromContext(ctx)
	meta := newMetadata(data, filename, TagEML)

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return failed(ErrExtraction, "Failed to parse EML: %v", err)
	}
	headers := e.readHeaders(msg.Header)

	body := &emailBody{}
	if err := e.walkPart(ctx, textproto.MIMEHeader(msg.Header), msg.Body, body); err != nil {
		logger.Warn("email body could not be fully read", zap.String("filename", filename), zap.Error(err))
	}
	bodyText := strings.TrimSpace(body.text.String())
	bodyHTML := strings.TrimSpace(body.html.String())
	if bodyText == "" && bodyHTML != "" {
		bodyText, _ = htmlToText(bodyHTML, emailBlockTags)
	}

	full := buildEmailText(headers, bodyText, body.attachments)
	content := &DocumentContent{
		FullText: full,
		Chunks:   emailChunks(headers, bodyText, body.attachments, size, overlap),
		Links:    emailLinks(bodyText, bodyHTML),
	}

	meta.Title = headers.subject
	meta.Author = headers.from
	meta.CreatedAt = headers.date
	meta.WordCount = intPtr(wordCount(full))
	meta.Custom["message_id"] = headers.messageID
	meta.Custom["to"] = headers.to
	meta.Custom["cc"] = headers.cc
	meta.Custom["attachment_count"] = len(body.attachments)
	meta.Custom["has_html"] = bodyHTML != ""
	if headers.date != nil {
		meta.Custom["date"] = headers.date.Format(time.RFC3339)
	} else {
		meta.Custom["date"] = nil
	}
	if headers.fromEmail != "" {
		meta.Custom["from_email"] = headers.fromEmail
		meta.Custom["from_name"] = headers.fromName
	}
	if len(headers.toList) > 0 {
		meta.Custom["to_addresses"] = addressStrings(headers.toList)
	}
	if len(headers.ccList) > 0 {
		meta.Custom["cc_addresses"] = addressStrings(headers.ccList)
	}
	for key, value := range map[string]string{
		"bcc":         headers.bcc,
		"reply_to":    headers.replyTo,
		"in_reply_to": headers.inReplyTo,
		"references":  headers.references,
	} {
		if value != "" {
			meta.Custom[key] = value
		}
	}

	return succeeded(meta, content, nil)
}

func (e *emailExtractor) decodeHeader(v string) string {
	if out, err := e.words.DecodeHeader(v); err == nil {
		v = out
	}
	return strings.TrimSpace(v)
}

func (e *emailExtractor) readHeaders(h mail.Header) emailHeaders {
	parser := mail.AddressParser{WordDecoder: e.words}
	out := emailHeaders{
		subject:    e.decodeHeader(h.Get("Subject")),
		to:         e.decodeHeader(h.Get("To")),
		cc:         e.decodeHeader(h.Get("Cc")),
		bcc:        e.decodeHeader(h.Get("Bcc")),
		messageID:  strings.TrimSpace(h.Get("Message-ID")),
		replyTo:    e.decodeHeader(h.Get("Reply-To")),
		inReplyTo:  strings.TrimSpace(h.Get("In-Reply-To")),
		references: strings.TrimSpace(h.Get("References")),
	}

	if raw := h.Get("From"); raw != "" {
		if addr, err := parser.Parse(raw); err == nil {
			out.fromName, out.fromEmail = addr.Name, addr.Address
			out.from = formatAddress(addr)
		} else {
			out.from = e.decodeHeader(raw)
		}
	}
	if raw := h.Get("To"); raw != "" {
		out.toList, _ = parser.ParseList(raw)
	}
	if raw := h.Get("Cc"); raw != "" {
		out.ccList, _ = parser.ParseList(raw)
	}
	if raw := h.Get("Date"); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			out.date = &t
		} else {
			out.dateRaw = raw
		}
	}
	return out
}

func formatAddress(a *mail.Address) string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}

func addressStrings(list []*mail.Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, formatAddress(a))
	}
	return out
}

// walkPart collects text and html bodies and attachment descriptions,
// descending into nested multipart containers.
func (e *emailExtractor) walkPart(ctx context.Context, header textproto.MIMEHeader, r io.Reader, body *emailBody) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read multipart: %w", err)
			}
			if err := e.walkPart(ctx, part.Header, part, body); err != nil {
				return err
			}
		}
	}

	payload, err := io.ReadAll(transferDecoder(header.Get("Content-Transfer-Encoding"), r))
	if err != nil {
		return fmt.Errorf("read %s part: %w", mediaType, err)
	}

	disposition, dparams, _ := mime.ParseMediaType(header.Get("Content-Disposition"))
	name := e.decodeHeader(dparams["filename"])
	if name == "" {
		name = e.decodeHeader(params["name"])
	}
	if name != "" {
		body.attachments = append(body.attachments, emailAttachment{filename: name, contentType: mediaType, size: len(payload)})
	}
	if disposition == "attachment" {
		return nil
	}

	switch mediaType {
	case "text/plain":
		body.text.WriteString(decodeCharset(ctx, params["charset"], payload))
	case "text/html":
		body.html.WriteString(decodeCharset(ctx, params["charset"], payload))
	}
	return nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, &base64Cleaner{r: r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// base64Cleaner drops the line breaks that MIME wraps base64 bodies with.
type base64Cleaner struct {
	r io.Reader
}

func (c *base64Cleaner) Read(p []byte) (int, error) {
	for {
		n, err := c.r.Read(p)
		kept := 0
		for _, b := range p[:n] {
			if b == '\r' || b == '\n' || b == ' ' || b == '\t' {
				continue
			}
			p[kept] = b
			kept++
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}

func decodeCharset(ctx context.Context, label string, payload []byte) string {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "us-ascii") {
		return strings.ToValidUTF8(string(payload), "�")
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(payload))
	if err != nil {
		logging.FromContext(ctx).Debug("unknown email charset", zap.String("charset", label))
		return strings.ToValidUTF8(string(payload), "�")
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "�")
	}
	return string(out)
}

func buildEmailText(h emailHeaders, bodyText string, attachments []emailAttachment) string {
	parts := []string{"=== EMAIL HEADERS ==="}
	if h.from != "" {
		parts = append(parts, "From: "+h.from)
	}
	if h.to != "" {
		parts = append(parts, "To: "+h.to)
	}
	if h.cc != "" {
		parts = append(parts, "CC: "+h.cc)
	}
	if d := h.dateString(); d != "" {
		parts = append(parts, "Date: "+d)
	}
	if h.subject != "" {
		parts = append(parts, "Subject: "+h.subject)
	}

	parts = append(parts, "", "=== EMAIL BODY ===")
	if bodyText != "" {
		parts = append(parts, bodyText)
	} else {
		parts = append(parts, "[No text content]")
	}

	if len(attachments) > 0 {
		parts = append(parts, "", "=== ATTACHMENTS ===")
		for _, a := range attachments {
			parts = append(parts, fmt.Sprintf("- %s (%s, %.1f KB)", a.filename, a.contentType, float64(a.size)/1024))
		}
	}
	return strings.Join(parts, "\n")
}

// emailChunks emits the header summary, then the body, then the attachment
// summary. Indexes are assigned later by Reindex.
func emailChunks(h emailHeaders, bodyText string, attachments []emailAttachment, size, overlap int) []TextChunk {
	var chunks []TextChunk

	var lines []string
	if h.subject != "" {
		lines = append(lines, "Subject: "+h.subject)
	}
	if h.from != "" {
		lines = append(lines, "From: "+h.from)
	}
	if h.to != "" {
		lines = append(lines, "To: "+h.to)
	}
	if d := h.dateString(); d != "" {
		lines = append(lines, "Date: "+d)
	}
	if len(lines) > 0 {
		chunks = append(chunks, TextChunk{Content: strings.Join(lines, "\n"), Source: "email_headers", Heading: "Email Headers"})
	}

	if bodyText != "" {
		for _, c := range ChunkText(bodyText, "email_body", size, overlap) {
			c.Heading = h.subject
			chunks = append(chunks, c)
		}
	}

	if len(attachments) > 0 {
		items := make([]string, 0, len(attachments))
		for _, a := range attachments {
			items = append(items, fmt.Sprintf("- %s (%s)", a.filename, a.contentType))
		}
		chunks = append(chunks, TextChunk{
			Content: "Attachments:\n" + strings.Join(items, "\n"),
			Source:  "email_attachments",
			Heading: "Attachments",
		})
	}
	return chunks
}

func emailLinks(bodyText, bodyHTML string) []string {
	links := emailURLPattern.FindAllString(bodyText, -1)
	for _, m := range emailHrefPattern.FindAllStringSubmatch(bodyHTML, -1) {
		if strings.HasPrefix(m[1], "http://") || strings.HasPrefix(m[1], "https://") {
			links = append(links, m[1])
		}
	}
	return links
}
