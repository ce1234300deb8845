// Package qrels reads TREC relevance judgments.
package qrels

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/query"
)

// Qrels maps query ids to judged documents and their grades. Read-only after load.
type Qrels struct {
	labels map[string]map[string]int
}

// New builds judgments from an in-memory map.
func New(labels map[string]map[string]int) *Qrels {
	if labels == nil {
		labels = make(map[string]map[string]int)
	}
	return &Qrels{labels: labels}
}

// Load reads "qid iter docid grade" lines. Compressed files are supported.
func Load(path string) (*Qrels, error) {
	rc, err := query.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "opening qrel file", err)
	}
	defer rc.Close()

	q := New(nil)
	scanner := bufio.NewScanner(rc)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 4 {
			return nil, apperrors.ParseError(fmt.Sprintf("%s:%d: expected 4 fields, got %d", path, lineNum, len(parts)), nil)
		}
		grade, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, apperrors.ParseError(fmt.Sprintf("%s:%d: invalid grade '%s'", path, lineNum, parts[3]), err)
		}
		q.add(parts[0], parts[2], grade)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "reading qrel file", err)
	}
	return q, nil
}

func (q *Qrels) add(qid, docID string, grade int) {
	m, ok := q.labels[qid]
	if !ok {
		m = make(map[string]int)
		q.labels[qid] = m
	}
	m[docID] = grade
}

// Label returns the grade of docID for qid and whether it was judged.
func (q *Qrels) Label(qid, docID string) (int, bool) {
	g, ok := q.labels[qid][docID]
	return g, ok
}

// IsRelevant reports whether a judged grade reaches minGrade.
func IsRelevant(grade int, judged bool, minGrade int) bool {
	return judged && grade >= minGrade
}

// Relevant reports whether docID is relevant for qid under minGrade.
func (q *Qrels) Relevant(qid, docID string, minGrade int) bool {
	g, ok := q.Label(qid, docID)
	return IsRelevant(g, ok, minGrade)
}

// Grades returns the judged grades of qid, highest first.
func (q *Qrels) Grades(qid string) []int {
	grades := make([]int, 0, len(q.labels[qid]))
	for _, g := range q.labels[qid] {
		grades = append(grades, g)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(grades)))
	return grades
}

// NumRelevant returns the number of documents of qid relevant under minGrade.
func (q *Qrels) NumRelevant(qid string, minGrade int) int {
	n := 0
	for _, g := range q.labels[qid] {
		if g >= minGrade {
			n++
		}
	}
	return n
}

// QueryCount returns the number of judged queries.
func (q *Qrels) QueryCount() int {
	return len(q.labels)
}
