package query

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

const twoRecords = `<DOC>
<DOCNO>q1</DOCNO>
<text>what is a cat</text>
</DOC>

<DOC>
<DOCNO>q2</DOCNO>
<text>dogs &amp; cats</text>
<text_unlemm>dogs and cats</text_unlemm>
</DOC>
`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Fields
		wantErr bool
	}{
		{
			name: "basic record",
			raw:  "<DOC>\n<DOCNO>q1</DOCNO>\n<text> hello world </text>\n</DOC>\n",
			want: Fields{"DOCNO": "q1", "text": "hello world"},
		},
		{
			name: "escaped entities",
			raw:  "<DOC><DOCNO>q2</DOCNO><text>a &lt; b</text></DOC>",
			want: Fields{"DOCNO": "q2", "text": "a < b"},
		},
		{
			name:    "missing id",
			raw:     "<DOC>\n<text>hello</text>\n</DOC>\n",
			wantErr: true,
		},
		{
			name:    "unclosed record",
			raw:     "<DOC>\n<DOCNO>q1</DOCNO>\n",
			wantErr: true,
		},
		{
			name:    "wrong root",
			raw:     "<QUERY><DOCNO>q1</DOCNO></QUERY>",
			wantErr: true,
		},
		{
			name:    "duplicate field",
			raw:     "<DOC><DOCNO>q1</DOCNO><DOCNO>q2</DOCNO></DOC>",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(Record(tt.raw))
			if tt.wantErr {
				if !apperrors.HasCode(err, apperrors.CodeParse) {
					t.Errorf("Parse() error = %v, want PARSE_ERROR", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(twoRecords))
	zw.Close()

	var zs bytes.Buffer
	enc, err := zstd.NewWriter(&zs)
	if err != nil {
		t.Fatalf("zstd.NewWriter() error = %v", err)
	}
	enc.Write([]byte(twoRecords))
	enc.Close()

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"plain", "queries.txt", []byte(twoRecords)},
		{"gzip", "queries.txt.gz", gz.Bytes()},
		{"zstd", "queries.txt.zst", zs.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data)

			recs, err := Load(context.Background(), path, 0, logger.Discard())
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(recs) != 2 {
				t.Fatalf("Load() returned %d records, want 2", len(recs))
			}

			f, err := Parse(recs[1])
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if f.ID() != "q2" || f.Text("") != "dogs & cats" || f["text_unlemm"] != "dogs and cats" {
				t.Errorf("Parse() = %v", f)
			}
		})
	}
}

func TestLoadMaxQueries(t *testing.T) {
	path := writeFile(t, "queries.txt", []byte(twoRecords))

	recs, err := Load(context.Background(), path, 1, logger.Discard())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("Load() returned %d records, want 1", len(recs))
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.txt"), 0, logger.Discard())
		if !apperrors.IsConfig(err) {
			t.Errorf("Load() error = %v, want config error", err)
		}
	})

	t.Run("unterminated record", func(t *testing.T) {
		path := writeFile(t, "q.txt", []byte("<DOC>\n<DOCNO>q1</DOCNO>\n"))
		_, err := Load(context.Background(), path, 0, logger.Discard())
		if !apperrors.HasCode(err, apperrors.CodeParse) {
			t.Errorf("Load() error = %v, want PARSE_ERROR", err)
		}
	})

	t.Run("garbage between records", func(t *testing.T) {
		path := writeFile(t, "q.txt", []byte(strings.Replace(twoRecords, "\n\n", "\njunk\n", 1)))
		_, err := Load(context.Background(), path, 0, logger.Discard())
		if !apperrors.HasCode(err, apperrors.CodeParse) {
			t.Errorf("Load() error = %v, want PARSE_ERROR", err)
		}
	})
}

func TestTerms(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"What is the Capital of France?", []string{"capital", "france"}},
		{"a b c", []string{}},
		{"cats, cats & dogs", []string{"cats", "cats", "dogs"}},
	}

	for _, tt := range tests {
		got := Terms(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Terms(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}

	if got := UniqueTerms("cats, cats & dogs"); !reflect.DeepEqual(got, []string{"cats", "dogs"}) {
		t.Errorf("UniqueTerms() = %v", got)
	}
}

func TestFieldsText(t *testing.T) {
	f := Fields{FieldID: "q1", FieldText: "cats", "title": "pets"}
	tests := []struct {
		name string
		want string
	}{
		{"", "cats"},
		{FieldText, "cats"},
		{"title", "pets"},
		{"body", ""},
	}
	for _, tt := range tests {
		if got := f.Text(tt.name); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
