package enrich

import (
	"strings"

	"golang.org/x/net/html"
)

// CleanText strips HTML markup from comment bodies. HN serves comment
// text as an HTML fragment, with paragraphs as <p> and links as <a>;
// the tokenizer resolves entities while extracting the text nodes.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tok.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Tag boundaries become spaces so "<p>a</p><p>b</p>" keeps
			// its word break.
			b.WriteByte(' ')
		}
	}
}
