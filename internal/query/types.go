// Package query loads and parses the query batch.
package query

// Field names with special meaning.
const (
	// FieldID holds the mandatory unique query identifier.
	FieldID = "DOCNO"

	// FieldText is the default text field searched by the providers.
	FieldText = "text"
)

// Record is one raw query record as read from the batch file.
// Records are parsed inside the workers.
type Record string

// Fields maps field names to values. Keys are unique.
type Fields map[string]string

// ID returns the query identifier.
func (f Fields) ID() string {
	return f[FieldID]
}

// Text returns the value of the named field, or of FieldText when name is empty.
// A missing field yields "".
func (f Fields) Text(name string) string {
	if name == "" {
		name = FieldText
	}
	return f[name]
}
