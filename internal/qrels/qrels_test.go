package qrels

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "qrels.txt", `# judgments
q1 0 d1 2
q1 0 d2 0
q1 0 d3 1

q2 0 d9 3
q1 0 d2 1
`)

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if q.QueryCount() != 2 {
		t.Errorf("QueryCount() = %d, want 2", q.QueryCount())
	}

	tests := []struct {
		qid, doc   string
		wantGrade  int
		wantJudged bool
	}{
		{"q1", "d1", 2, true},
		{"q1", "d2", 1, true},
		{"q1", "unknown", 0, false},
		{"q3", "d1", 0, false},
	}
	for _, tt := range tests {
		g, ok := q.Label(tt.qid, tt.doc)
		if g != tt.wantGrade || ok != tt.wantJudged {
			t.Errorf("Label(%s, %s) = %d, %v; want %d, %v", tt.qid, tt.doc, g, ok, tt.wantGrade, tt.wantJudged)
		}
	}

	if !q.Relevant("q1", "d1", 2) || q.Relevant("q1", "d3", 2) || q.Relevant("q1", "zz", 0) {
		t.Error("Relevant() thresholds are wrong")
	}
	if got := q.Grades("q1"); !reflect.DeepEqual(got, []int{2, 1, 1}) {
		t.Errorf("Grades(q1) = %v", got)
	}
	if q.NumRelevant("q1", 1) != 3 || q.NumRelevant("q1", 2) != 1 || q.NumRelevant("none", 1) != 0 {
		t.Error("NumRelevant() counts are wrong")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); !apperrors.IsConfig(err) {
		t.Errorf("Load(missing) error = %v, want config error", err)
	}
	for name, content := range map[string]string{
		"fields.txt": "q1 0 d1\n",
		"grade.txt":  "q1 0 d1 high\n",
	} {
		if _, err := Load(writeFile(t, name, content)); !apperrors.HasCode(err, apperrors.CodeParse) {
			t.Errorf("Load(%s) error = %v, want parse error", name, err)
		}
	}
}

func TestIsRelevant(t *testing.T) {
	if IsRelevant(5, false, 1) {
		t.Error("unjudged documents are never relevant")
	}
	if !IsRelevant(1, true, 1) || IsRelevant(0, true, 1) {
		t.Error("IsRelevant() threshold is wrong")
	}
}
