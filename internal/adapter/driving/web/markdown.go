package web

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/tradeconfirm/internal/templates"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// sampleVars fills every placeholder the bundled templates use.
var sampleVars = map[string]string{
	"bot_name":                  "TradeBot",
	"subreddit_name":            "examplesub",
	"comment_author":            "Alice",
	"parent_author":             "Bob",
	"old_comment_flair":         "Trades: 4",
	"new_comment_flair":         "Trades: 5",
	"old_parent_flair":          "unknown",
	"new_parent_flair":          "Trades: 1",
	"month_name":                "March",
	"year":                      "2026",
	"previous_month_submission": "https://www.reddit.com/r/examplesub/comments/abc123",
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// PreviewTemplate renders a message template with sample values and returns
// sanitized HTML plus the placeholders no sample covers.
func PreviewTemplate(text string) (string, []string) {
	rendered, missing := templates.Render(text, sampleVars)
	return RenderMarkdown(rendered), missing
}
