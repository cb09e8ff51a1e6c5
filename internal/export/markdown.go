package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"chatmark/internal/domain"
)

// MarkdownExporter writes one section per chat with its messages in order.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(chats []domain.Chat, w io.Writer) error {
	doc := NewDocument(chats)
	for i, c := range doc.Chats {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "**Site:** %s  \n", c.SiteName)
		if c.URL != "" {
			_, _ = fmt.Fprintf(w, "**URL:** <%s>  \n", c.URL)
		}
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", c.LastUpdated.Format(time.RFC3339))
		_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(c.Messages))

		for _, m := range c.Messages {
			_, _ = fmt.Fprintf(w, "%d. **%s:** %s\n", m.Index+1, m.Role, escapeMarkdown(m.Excerpt))
		}
		if i < len(doc.Chats)-1 {
			_, _ = fmt.Fprint(w, "\n---\n\n")
		}
	}
	return nil
}

// escapeMarkdown keeps an excerpt on one line and neutralizes emphasis markers.
func escapeMarkdown(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := strings.NewReplacer("**", `\*\*`, "__", `\_\_`, "`", "\\`")
	return r.Replace(text)
}

func (e *MarkdownExporter) Extension() string { return "md" }
