// Package index builds and serves the document index: a bleve inverted
// index that also stores document text, plus optional vector collections.
package index

import (
	"fmt"
	"strings"

	"github.com/ricesearch/rice-letor/internal/query"
)

// Document is one indexed record.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DocumentFromRecord parses a raw record in the query-record format.
// The text is taken from textField (default "text").
func DocumentFromRecord(rec query.Record, textField string) (*Document, error) {
	fields, err := query.Parse(rec)
	if err != nil {
		return nil, err
	}
	return &Document{ID: fields.ID(), Text: fields.Text(textField)}, nil
}

// ValidateDocument checks that a document can be indexed.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("document has no id")
	}
	return nil
}
