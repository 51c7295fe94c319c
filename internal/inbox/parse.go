package inbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ParsedMessage is the readable part of a raw RFC 822 message.
type ParsedMessage struct {
	From    string
	Subject string
	Text    string
}

// ParseMessage extracts the sender and a plain-text body, preferring
// text/plain parts and converting HTML otherwise. Quoted history below the
// reply is dropped.
func ParseMessage(raw []byte) (ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("inbox: read message: %w", err)
	}
	defer mr.Close()

	var out ParsedMessage
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		out.From = from[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		out.Subject = subject
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("inbox: read part: %w", err)
		}
		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return out, fmt.Errorf("inbox: read body: %w", err)
		}
		switch contentType {
		case "text/plain":
			if plain == "" {
				plain = string(body)
			}
		case "text/html":
			if html == "" {
				html = string(body)
			}
		}
	}

	text := plain
	if strings.TrimSpace(text) == "" && html != "" {
		text = HTMLToText(html)
	}
	out.Text = StripQuotedReply(text)
	return out, nil
}

// HTMLToText flattens an HTML body into paragraphs of plain text.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("blockquote, .gmail_quote").Remove()

	var lines []string
	doc.Find("p, div, li, h1, h2, h3, td").Each(func(_ int, sel *goquery.Selection) {
		if sel.Find("p, div, li, td").Length() > 0 {
			return
		}
		for _, line := range strings.Split(sel.Text(), "\n") {
			if line = strings.Join(strings.Fields(line), " "); line != "" {
				lines = append(lines, line)
			}
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(lines, "\n")
}

var quoteHeader = regexp.MustCompile(`(?i)^(on .{4,200} wrote:|-+\s*original message\s*-+|from:\s.+)$`)

// StripQuotedReply cuts the quoted thread that mail clients append.
func StripQuotedReply(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if quoteHeader.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
