package hash

import (
	"regexp"
	"testing"
)

func TestSHA256String(t *testing.T) {
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := SHA256String("hello"); got != want {
		t.Errorf("SHA256String(hello) = %s, want %s", got, want)
	}
}

func TestSHA256Short(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{8, 8},
		{16, 16},
		{100, 64},
	}
	for _, tt := range tests {
		if got := SHA256Short([]byte("q1|doc"), tt.n); len(got) != tt.want {
			t.Errorf("len(SHA256Short(n=%d)) = %d, want %d", tt.n, len(got), tt.want)
		}
	}
}

func TestPointUUID(t *testing.T) {
	uuid := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	a := PointUUID("clueweb09-en0000-00-00000")
	if !uuid.MatchString(a) {
		t.Errorf("PointUUID() = %q, not UUID-shaped", a)
	}
	if b := PointUUID("clueweb09-en0000-00-00000"); a != b {
		t.Errorf("PointUUID() not deterministic: %s != %s", a, b)
	}
	if c := PointUUID("clueweb09-en0000-00-00001"); a == c {
		t.Error("different documents share a point id")
	}
}
