package utils

import (
	"errors"
	"fmt"
	"io"
	"strings"

	// registers the legacy charsets used by older mail clients
	_ "github.com/emersion/go-message/charset"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

// ParsedMessage is the part of an RFC 5322 message used for triage
type ParsedMessage struct {
	From    string
	Subject string
	Text    string
}

// ParseMessage extracts the sender, subject and readable body text.
// text/plain parts are preferred; HTML parts are reduced to their text when
// no plain part exists. A message cut short mid-body yields whatever text
// was read before the cut.
func ParseMessage(r io.Reader) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedMessage{
		From:    formatSender(mr.Header),
		Subject: decodedSubject(mr.Header),
	}

	var plain, rich strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			// truncated body: keep what was read so far
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if len(body) == 0 && readErr != nil {
			continue
		}

		switch {
		case contentType == "" || strings.HasPrefix(contentType, "text/plain"):
			plain.Write(body)
			plain.WriteString("\n")
		case strings.HasPrefix(contentType, "text/html"):
			rich.WriteString(HTMLToText(string(body)))
			rich.WriteString("\n")
		}
	}

	if plain.Len() > 0 {
		parsed.Text = plain.String()
	} else {
		parsed.Text = rich.String()
	}
	return parsed, nil
}

// HTMLToText returns the visible text of an HTML fragment
func HTMLToText(fragment string) string {
	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); isHiddenElement(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); isHiddenElement(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(tokenizer.Text())
				sb.WriteString(" ")
			}
		}
	}
}

func isHiddenElement(name []byte) bool {
	switch string(name) {
	case "script", "style", "head", "title":
		return true
	}
	return false
}

// formatSender renders the first From address as "Name <addr>", or the bare
// address when there is no display name
func formatSender(h mail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("From"))
	}
	return FormatAddress(addrs[0].Name, addrs[0].Address)
}

// FormatAddress renders a mailbox the way mail clients display it
func FormatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return name + " <" + addr + ">"
}

func decodedSubject(h mail.Header) string {
	subject, err := h.Subject()
	if err != nil {
		return h.Get("Subject")
	}
	return subject
}
