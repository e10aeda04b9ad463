package domain

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// allowedExternal lists the only non-standard imports the entity layer may use.
var allowedExternal = map[string]struct{}{
	"github.com/twpayne/go-geom": {},
}

func TestDomainImportsStayPure(t *testing.T) {
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	fset := token.NewFileSet()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(".", name), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, spec := range file.Imports {
			path, _ := strconv.Unquote(spec.Path.Value)
			if strings.Contains(path, "/internal/") || strings.HasPrefix(path, "crimestats/") {
				t.Errorf("%s: domain must not import module packages: %s", name, path)
				continue
			}
			first := strings.SplitN(path, "/", 2)[0]
			if !strings.Contains(first, ".") {
				continue
			}
			if _, ok := allowedExternal[path]; !ok {
				t.Errorf("%s: unexpected external import %s", name, path)
			}
		}
	}
}
