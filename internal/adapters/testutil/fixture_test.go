package testutil

import (
	"testing"

	"crimestats/internal/core"
)

func TestNewService(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	plugins := svc.RegisteredPlugins()
	if len(plugins) != 1 || plugins[0].Name == "" || plugins[0].Version == "" {
		t.Fatalf("unexpected plugins %+v", plugins)
	}
	if _, ok := svc.ResolveViewTemplate(core.ViewSlug("map")); !ok {
		t.Fatalf("map view not installed")
	}
	ds := svc.Dataset()
	if got := len(ds.Records()); got != 6 {
		t.Fatalf("expected 6 records, got %d", got)
	}
	if names := ds.BoundaryNames(); len(names) != 2 {
		t.Fatalf("expected 2 boundaries, got %v", names)
	}
}
