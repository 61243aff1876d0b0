package dispatch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes([]byte(`
operations:
  create: [POST, new-contract]
  approve: [PUT]
`))
	if err != nil {
		t.Fatalf("ParseRoutes: %v", err)
	}
	cases := map[string]Operation{"create": OpCreate, "post": OpCreate, "New-Contract": OpCreate, "approve": OpApprove, "PUT": OpApprove}
	for in, want := range cases {
		if got, ok := routes.Resolve(in); !ok || got != want {
			t.Fatalf("Resolve(%q) = %s, %v", in, got, ok)
		}
	}
	if _, ok := routes.Resolve("patch"); ok {
		t.Fatalf("unexpected alias")
	}
}

func TestParseRoutesRejectsBadTables(t *testing.T) {
	bad := []string{
		`operations: {}`,
		`operations: {delete: [DELETE]}`,
		"operations:\n  create: [GO]\n  approve: [GO]\n",
		`operations: [`,
	}
	for _, doc := range bad {
		if _, err := ParseRoutes([]byte(doc)); err == nil {
			t.Fatalf("expected error for %q", doc)
		}
	}
}

func TestLoadRoutesAndAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	if err := os.WriteFile(path, []byte("operations:\n  approve: [sign]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	routes, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("LoadRoutes: %v", err)
	}
	if op, ok := routes.Resolve("sign"); !ok || op != OpApprove {
		t.Fatalf("sign not routed to approve")
	}
	extended, err := routes.WithAliases(map[string]string{"open": "create"})
	if err != nil {
		t.Fatalf("WithAliases: %v", err)
	}
	if op, ok := extended.Resolve("OPEN"); !ok || op != OpCreate {
		t.Fatalf("open not routed to create")
	}
	if _, ok := routes.Resolve("open"); ok {
		t.Fatalf("WithAliases mutated the receiver")
	}
	if _, err := routes.WithAliases(map[string]string{"sign": "create"}); err == nil {
		t.Fatalf("expected clash error")
	}
}
