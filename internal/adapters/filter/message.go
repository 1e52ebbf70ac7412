package filter

import (
	"fmt"
	"io"

	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/utils"
)

// SummaryFromMessage builds the triage summary of a raw RFC 5322 message
// the same way the IMAP gateway does for fetched bodies
func SummaryFromMessage(r io.Reader, textProcessor *utils.TextProcessor) (*core.Summary, error) {
	parsed, err := utils.ParseMessage(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	return &core.Summary{
		Sender:  parsed.From,
		Subject: parsed.Subject,
		Excerpt: textProcessor.Excerpt(parsed.Text, utils.SnippetRunes),
	}, nil
}
