package fs

import (
	"testing"

	"github.com/spf13/afero"
)

func TestFactoryProduction(t *testing.T) {
	factory := NewDefaultFactory()

	prod := factory.Production()
	if prod == nil {
		t.Fatal("Production() returned nil")
	}
	if _, ok := prod.(*afero.OsFs); !ok {
		t.Errorf("Production() returned %T, want *afero.OsFs", prod)
	}
}

func TestFactoryMemory(t *testing.T) {
	factory := NewDefaultFactory()

	mem := factory.Memory()
	if mem == nil {
		t.Fatal("Memory() returned nil")
	}

	// Memory filesystems must be writable and isolated.
	if err := afero.WriteFile(mem, "/probe.txt", []byte("x"), 0644); err != nil {
		t.Fatalf("write to memory fs failed: %v", err)
	}

	other := factory.Memory()
	exists, err := afero.Exists(other, "/probe.txt")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("memory filesystems must not share state")
	}
}
