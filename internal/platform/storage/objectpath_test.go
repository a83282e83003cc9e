package storage

import "testing"

func TestObjectPathComposesKindAndID(t *testing.T) {
	path, err := ObjectPath("documents", "01J8ZC6KQ8W3T9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "assets/documents/01J8ZC6KQ8W3T9"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestObjectPathTrimsSegments(t *testing.T) {
	path, err := ObjectPath(" documents ", " asset123 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "assets/documents/asset123" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestObjectPathRejectsInvalidSegments(t *testing.T) {
	if _, err := ObjectPath("", "asset123"); err == nil {
		t.Fatalf("expected error for blank kind")
	}
	if _, err := ObjectPath("../bad", "asset123"); err == nil {
		t.Fatalf("expected error for traversal in kind")
	}
	if _, err := ObjectPath("documents", "a/b"); err == nil {
		t.Fatalf("expected error for separator in asset id")
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName("  form16.pdf  ", "document"); got != "form16.pdf" {
		t.Fatalf("expected trimmed name, got %s", got)
	}
	if got := SanitizeFileName("", "document"); got != "document" {
		t.Fatalf("expected fallback for blank name, got %s", got)
	}
	if got := SanitizeFileName("../../etc/passwd", "document"); got != "document" {
		t.Fatalf("expected fallback for traversal, got %s", got)
	}
	if got := SanitizeFileName("sub/dir.pdf", "document"); got != "document" {
		t.Fatalf("expected fallback for separator, got %s", got)
	}
}
