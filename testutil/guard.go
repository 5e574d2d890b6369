// Package testutil provides testing helpers that keep the browser-side
// packages free of server-only dependencies.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// serverOnly lists import path fragments that must never reach the wasm
// widget build.
var serverOnly = []string{
	"foodpantry/internal/adapters/",
	"foodpantry/internal/blob",
	"foodpantry/internal/catalog",
	"foodpantry/internal/infra/",
	"foodpantry/internal/ledger",
	"foodpantry/internal/metrics",
	"foodpantry/internal/publish",
	"foodpantry/internal/storage",
	"github.com/aws/",
	"github.com/fsnotify/",
	"github.com/jackc/",
	"github.com/prometheus/",
	"modernc.org/sqlite",
}

// ServerOnlyImport reports whether path belongs to the dataset service,
// the publisher or their storage drivers.
func ServerOnlyImport(path string) bool {
	for _, frag := range serverOnly {
		if strings.HasPrefix(path, frag) {
			return true
		}
	}
	return false
}

// AssertNoDirectImports scans all non-test .go files in dir (typically "." from within the package)
// and fails if any import path satisfies the forbidden predicate. It does not follow build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		fileAst, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
