package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()
	corePkgOnce.Do(func() {
		cfg := &packages.Config{
			Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedCompiledGoFiles | packages.NeedFiles,
		}
		pkgs, err := packages.Load(cfg, "crimestats/internal/core")
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == "crimestats/internal/core" {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not found in load results")
	})
	if corePkgErr != nil {
		t.Fatalf("core package load: %v", corePkgErr)
	}
	return corePkg
}

// TestAliasesOnlyMirrorPublicTypes keeps internal/core from aliasing anything
// but the stable pkg/domain and pkg/viewapi types.
func TestAliasesOnlyMirrorPublicTypes(t *testing.T) {
	pkg := loadCorePackage(t)
	var offending []string
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Assign.IsValid() {
					continue
				}
				if sel, ok := ts.Type.(*ast.SelectorExpr); ok {
					if ident, ok := sel.X.(*ast.Ident); ok && (ident.Name == "domain" || ident.Name == "viewapi") {
						continue
					}
				}
				pos := pkg.Fset.Position(ts.Pos())
				offending = append(offending, fmt.Sprintf("%s:%d type %s", filepath.Base(pos.Filename), pos.Line, ts.Name.Name))
			}
		}
	}
	if len(offending) > 0 {
		t.Fatalf("aliases in internal/core must point at pkg/domain or pkg/viewapi:\n%s", strings.Join(offending, "\n"))
	}
}

func TestServiceStructContract(t *testing.T) {
	pkg := loadCorePackage(t)
	obj := pkg.Types.Scope().Lookup("Service")
	if obj == nil {
		t.Fatalf("Service type not found")
	}
	st, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		t.Fatalf("Service is not a struct")
	}
	qualifier := func(p *types.Package) string { return p.Path() }
	fields := make(map[string]string, st.NumFields())
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		fields[f.Name()] = types.TypeString(f.Type(), qualifier)
	}
	required := map[string]string{
		"dataset": "*crimestats/internal/core.Dataset",
		"views":   "map[string]crimestats/internal/core.ViewTemplate",
		"metrics": "crimestats/internal/core.MetricsRecorder",
		"tracer":  "crimestats/internal/core.Tracer",
		"now":     "func() time.Time",
		"mu":      "sync.RWMutex",
	}
	for name, want := range required {
		if got := fields[name]; got != want {
			t.Fatalf("Service.%s: want %s, got %q", name, want, got)
		}
	}
}

// TestInstallPluginBindsViews checks that InstallPlugin binds every template
// to the dataset before exposing it.
func TestInstallPluginBindsViews(t *testing.T) {
	pkg := loadCorePackage(t)
	var install *ast.FuncDecl
	for _, file := range pkg.Syntax {
		if filepath.Base(pkg.Fset.Position(file.Pos()).Filename) != "service.go" {
			continue
		}
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == "InstallPlugin" {
				install = fn
			}
		}
	}
	if install == nil || install.Body == nil {
		t.Fatalf("InstallPlugin not found in service.go")
	}
	bound := false
	ast.Inspect(install.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if sel, ok := call.Fun.(*ast.SelectorExpr); ok && sel.Sel.Name == "bind" {
			bound = true
		}
		return true
	})
	if !bound {
		t.Fatalf("InstallPlugin no longer binds view templates")
	}
}
