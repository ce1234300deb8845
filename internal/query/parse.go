package query

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

const recordTag = "DOC"

// Parse parses a raw record of the form
//
//	<DOC>
//	<DOCNO>id</DOCNO>
//	<field>value</field>
//	</DOC>
//
// into its field map. A missing or empty DOCNO is a parse error.
func Parse(rec Record) (Fields, error) {
	dec := xml.NewDecoder(strings.NewReader(string(rec)))

	fields := make(Fields)
	depth := 0
	var cur string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.ParseError("malformed query record", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if t.Name.Local != recordTag {
					return nil, apperrors.ParseError("unexpected root element <"+t.Name.Local+">", nil)
				}
			case 2:
				cur = t.Name.Local
				text.Reset()
			default:
				return nil, apperrors.ParseError("nested element <"+t.Name.Local+"> in field "+cur, nil)
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				if _, dup := fields[cur]; dup {
					return nil, apperrors.ParseError("duplicate field "+cur, nil)
				}
				fields[cur] = strings.TrimSpace(text.String())
			}
			depth--
		}
	}

	if strings.TrimSpace(fields.ID()) == "" {
		return nil, apperrors.ParseError("no query ID: "+FieldID+" field is missing", nil)
	}

	return fields, nil
}
