package export

import (
	"encoding/json"
	"io"

	"chatmark/internal/domain"
)

// JSONExporter writes an indented JSON document.
type JSONExporter struct{}

func (e *JSONExporter) Export(chats []domain.Chat, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(chats))
}

func (e *JSONExporter) Extension() string { return "json" }
