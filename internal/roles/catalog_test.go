package roles

import "testing"

func TestResolveExactMatch(t *testing.T) {
	r := Resolve("coder")
	if r.Key != "coder" {
		t.Fatalf("expected coder, got %s", r.Key)
	}
	if !r.Critical {
		t.Fatalf("expected coder to be critical")
	}
}

func TestResolveFuzzyMatch(t *testing.T) {
	r := Resolve("the fact checker specialist")
	if r.Key != "fact_checker" {
		t.Fatalf("expected fuzzy match to fact_checker, got %s", r.Key)
	}
}

func TestResolveFallsBackToResearcher(t *testing.T) {
	r := Resolve("totally-unknown-role-xyz")
	if r.Key != defaultRole {
		t.Fatalf("expected fallback to %s, got %s", defaultRole, r.Key)
	}
}

func TestResolveEmptyHint(t *testing.T) {
	r := Resolve("")
	if r.Key != defaultRole {
		t.Fatalf("expected fallback to %s for empty hint, got %s", defaultRole, r.Key)
	}
}

func TestCatalogHasNoEmptyKeys(t *testing.T) {
	for key, r := range Catalog {
		if r.Key != key {
			t.Fatalf("catalog entry %q has mismatched Key %q", key, r.Key)
		}
		if r.SystemPrompt == "" {
			t.Fatalf("role %q missing system prompt", key)
		}
	}
}
