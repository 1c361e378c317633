package content

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/integreat/contentapi/internal/store"
)

const (
	// EmptyContent is returned for bodies that consist of nothing but blank paragraphs.
	EmptyContent = ""
	// EmptyPlaceholder marks a published page that is blank on purpose.
	EmptyPlaceholder = "empty"

	excerptLineBreak = " "
	excerptWords     = 55
)

var (
	emptyParagraphs = regexp.MustCompile(`(?i)^(?:<p>(?:\s|&nbsp;|<br\s*/?\s*>)*</p>|\s|&nbsp;|<br\s*/?\s*>)*$`)
	paragraphBreaks = regexp.MustCompile(`\n\s*\n`)
	blockStart      = regexp.MustCompile(`(?i)^<(?:p|div|h[1-6]|ul|ol|li|table|thead|tbody|tr|td|th|blockquote|pre|figure|figcaption|section|article|aside|header|footer|hr|address|dl|dd|dt|form|iframe)[\s/>]`)

	excerptCleanup = strings.NewReplacer("</p>", excerptLineBreak, "\r\n", excerptLineBreak, "\n", excerptLineBreak, "\r", "", "<p>", "")
)

// IsEmptyContent reports whether body holds only blank paragraphs, whitespace, &nbsp; and line breaks.
func IsEmptyContent(body string) bool {
	return emptyParagraphs.MatchString(body)
}

// Autop wraps double-newline separated text blocks in paragraphs and turns remaining single
// newlines into <br />. Blocks that already start with a block-level element are left alone.
func Autop(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	if strings.TrimSpace(body) == "" {
		return ""
	}

	var b strings.Builder
	for _, chunk := range paragraphBreaks.Split(body, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if blockStart.MatchString(chunk) {
			b.WriteString(chunk)
		} else {
			b.WriteString("<p>")
			b.WriteString(strings.ReplaceAll(chunk, "\n", "<br />\n"))
			b.WriteString("</p>")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ProjectContent renders the content field of row.
func ProjectContent(row store.ContentRow, publishedChildren int) string {
	if row.Status == store.StatusTrash {
		return ""
	}
	body := row.Content
	if body == "" && publishedChildren == 0 {
		body = EmptyPlaceholder
	}
	return Autop(body)
}

// ProjectExcerpt renders the excerpt field of row given its projected content.
func ProjectExcerpt(row store.ContentRow, content string) string {
	if row.Status == store.StatusTrash {
		return ""
	}
	if IsEmptyContent(content) {
		return EmptyContent
	}
	excerpt := row.Excerpt
	if excerpt == "" {
		excerpt = Summarize(content, excerptWords)
	}
	return strings.TrimSpace(excerptCleanup.Replace(excerpt))
}

// Summarize extracts the text of an HTML body, separating blocks by a single space and keeping
// at most maxWords words.
func Summarize(body string, maxWords int) string {
	if IsEmptyContent(body) {
		return ""
	}
	html := excerptCleanup.Replace(body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	words := strings.Fields(doc.Text())
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
