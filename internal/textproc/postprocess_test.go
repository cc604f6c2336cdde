package textproc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyCapitalizesAndTrims(t *testing.T) {
	p := NewPostProcessor(nil)
	if got := p.Apply("  hello there  "); got != "Hello there" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestApplyCorrectionsWordBoundary(t *testing.T) {
	p := NewPostProcessor(map[string]string{"jon": "John"})
	if got := p.Apply("jon met jonathan"); got != "John met jonathan" {
		t.Fatalf("expected boundary-safe replacement, got %q", got)
	}
}

func TestApplyEmpty(t *testing.T) {
	p := NewPostProcessor(map[string]string{"uh": ""})
	if got := p.Apply("   "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
	if got := p.Apply("uh"); got != "" {
		t.Fatalf("expected correction to empty, got %q", got)
	}
}

func TestApplyUnicodeFirstLetter(t *testing.T) {
	p := NewPostProcessor(nil)
	if got := p.Apply("éteins la lumière"); got != "Éteins la lumière" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.json")
	if _, err := Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected seed file created: %v", err)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.json")
	if err := os.WriteFile(path, []byte(`{"teh": "the"}`), 0o644); err != nil {
		t.Fatalf("write corrections: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Apply("teh cat"); got != "The cat" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.json")
	if err := os.WriteFile(path, []byte(`[1,2]`), 0o644); err != nil {
		t.Fatalf("write corrections: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-object corrections file")
	}
}
