package export

import (
	"io"

	"chatmark/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the document as YAML.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(chats []domain.Chat, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(NewDocument(chats))
}

func (e *YAMLExporter) Extension() string { return "yaml" }
