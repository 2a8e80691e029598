package publisher

import (
	"fmt"
	"html"
	"strings"

	"github.com/lueurxax/crypto-autopost/internal/db"
)

const (
	// MessageLengthLimit is the Telegram message size cap.
	MessageLengthLimit = 4096

	maxHashtags     = 3
	truncationMark  = "..."
	defaultHeadline = "Новости криптовалют"
)

// Post is the assembled, send-ready rendering of a processed item.
type Post struct {
	Text              string
	HeadlineUsed      string
	ContainsAffiliate bool
	AffiliateName     string
}

// AssemblePost builds the final message: headline, body, author remark,
// optional affiliate block with disclosure, and up to three hashtags,
// truncated to the platform limit.
func AssemblePost(item *db.ProcessedItem, affiliate *AffiliateLink) Post {
	headline := item.HeadlineShort
	if headline == "" {
		headline = item.HeadlineLong
	}

	if headline == "" {
		headline = defaultHeadline
	}

	body := item.RewrittenText
	if body == "" {
		body = item.TranslatedText
	}

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(headline))
	b.WriteString("</b>\n\n")
	b.WriteString(html.EscapeString(body))

	if item.AuthorNote != "" {
		b.WriteString("\n\n💬 ")
		b.WriteString(html.EscapeString(item.AuthorNote))
	}

	if affiliate != nil {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(affiliate.Text))
		b.WriteString(": ")
		b.WriteString(affiliate.URL)
		b.WriteString("\n\n⚠️ ")
		b.WriteString(DisclosureText)
	}

	if tags := hashtags(item.Tags); tags != "" {
		b.WriteString("\n\n")
		b.WriteString(tags)
	}

	post := Post{
		Text:         Truncate(b.String(), MessageLengthLimit),
		HeadlineUsed: headline,
	}

	if affiliate != nil {
		post.ContainsAffiliate = true
		post.AffiliateName = affiliate.Name
	}

	return post
}

func hashtags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	if len(tags) > maxHashtags {
		tags = tags[:maxHashtags]
	}

	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}

		parts = append(parts, fmt.Sprintf("#%s", strings.ReplaceAll(tag, " ", "_")))
	}

	return strings.Join(parts, " ")
}

// Truncate cuts text to at most limit characters, ending with an
// ellipsis mark when anything was dropped.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit-len(truncationMark)]) + truncationMark
}
