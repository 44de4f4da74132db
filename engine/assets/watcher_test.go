package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseShaderFileName(t *testing.T) {
	tests := []struct {
		path  string
		name  string
		stage string
		ok    bool
	}{
		{"shaders/BasePassRenderer.Mesh.frag.spv", "BasePassRenderer.Mesh", "frag", true},
		{"PreRenderer.vert.spv", "PreRenderer", "vert", true},
		{"shaders/readme.txt", "", "", false},
		{"shaders/frag.spv", "", "", false},
		{"shaders/.frag.spv", "", "", false},
	}
	for _, tt := range tests {
		name, stage, ok := ParseShaderFileName(tt.path)
		if name != tt.name || stage != tt.stage || ok != tt.ok {
			t.Errorf("ParseShaderFileName(%q) = %q, %q, %v", tt.path, name, stage, ok)
		}
	}
}

func TestShaderWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 8)
	w, err := NewShaderWatcher(dir, func(name, stage string) {
		changed <- name + "." + stage
	})
	if err != nil {
		t.Fatalf("NewShaderWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Slate.frag.spv"), []byte{3, 2, 35, 7}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case got := <-changed:
		if got != "Slate.frag" {
			t.Fatalf("changed shader = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Fatalf("Start after Close succeeded")
	}
}

func TestLoadMaterialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.material")
	data := "# base pass\nname = BasePassRenderer.Mesh.Default\ntask = BasePassRenderer.Mesh\nmesh = BasePassRenderer.Mesh\nfrag = BasePassRenderer.Mesh\nbogus = 1\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadMaterialConfig(path)
	if err != nil {
		t.Fatalf("LoadMaterialConfig: %v", err)
	}
	if cfg.Name != "BasePassRenderer.Mesh.Default" || len(cfg.Stages) != 3 || cfg.Stages["frag"] != "BasePassRenderer.Mesh" {
		t.Fatalf("config = %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("name = Empty\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadMaterialConfig(path); err == nil {
		t.Fatalf("material without stages accepted")
	}
}
