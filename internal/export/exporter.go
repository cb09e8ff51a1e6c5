// Package export writes stored chats to files in several formats.
package export

import (
	"fmt"
	"io"
	"time"

	"chatmark/internal/domain"
)

// Exporter writes a set of chats in one format.
type Exporter interface {
	Export(chats []domain.Chat, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}

// Document is the serialized form shared by the JSON and YAML exporters.
type Document struct {
	Chats []ChatRecord `json:"chats" yaml:"chats"`
}

type ChatRecord struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	SiteName    string          `json:"siteName" yaml:"siteName"`
	URL         string          `json:"url" yaml:"url"`
	ThemeColor  string          `json:"themeColor" yaml:"themeColor"`
	FirstSeen   time.Time       `json:"firstSeen" yaml:"firstSeen"`
	LastUpdated time.Time       `json:"lastUpdated" yaml:"lastUpdated"`
	Messages    []MessageRecord `json:"messages" yaml:"messages"`
}

type MessageRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Index      int       `json:"index" yaml:"index"`
	Role       string    `json:"role" yaml:"role"`
	Excerpt    string    `json:"excerpt" yaml:"excerpt"`
	Color      string    `json:"color,omitempty" yaml:"color,omitempty"`
	CapturedAt time.Time `json:"capturedAt" yaml:"capturedAt"`
}

// NewDocument converts chats, keeping their order and sorting messages by ordinal.
func NewDocument(chats []domain.Chat) Document {
	doc := Document{Chats: make([]ChatRecord, 0, len(chats))}
	for _, c := range chats {
		rec := ChatRecord{
			ID:          c.ID,
			Title:       c.Title,
			SiteName:    c.SiteName,
			URL:         c.URL,
			ThemeColor:  c.ThemeColor,
			FirstSeen:   c.FirstSeen.Time().UTC(),
			LastUpdated: c.LastUpdated.Time().UTC(),
			Messages:    make([]MessageRecord, 0, len(c.Messages)),
		}
		for _, m := range domain.SortByOrdinal(c.Messages) {
			rec.Messages = append(rec.Messages, MessageRecord{
				ID:         m.ID,
				Index:      m.Ordinal,
				Role:       string(m.Role),
				Excerpt:    m.Excerpt,
				Color:      m.Color,
				CapturedAt: m.CapturedAt.Time().UTC(),
			})
		}
		doc.Chats = append(doc.Chats, rec)
	}
	return doc
}
