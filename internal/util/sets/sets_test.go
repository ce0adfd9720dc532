package sets

import "testing"

func TestSet(t *testing.T) {
	s := New(".c", ".h")
	if !s.Has(".c") || s.Has(".s") {
		t.Fatalf("unexpected membership: %v", s)
	}
	if !s.Add(".s") {
		t.Fatalf("adding a new key should report true")
	}
	if s.Add(".s") {
		t.Fatalf("adding an existing key should report false")
	}
	s.Delete(".c")
	if s.Has(".c") || len(s) != 2 {
		t.Fatalf("delete failed: %v", s)
	}
}
