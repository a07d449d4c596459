package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/achilleasa/framebatch/engine"
)

func TestDestinationPath(t *testing.T) {
	type spec struct {
		dir    string
		prefix string
		frame  int
		exp    string
	}

	specs := []spec{
		{"images", "water", 0, "images/water_0000.png"},
		{"images", "water", 7, "images/water_0007.png"},
		{"out", "wave", 499, "out/wave_0499.png"},
		{"out", "wave", 12345, "out/wave_12345.png"},
	}

	for specIndex, s := range specs {
		if got := DestinationPath(s.dir, s.prefix, s.frame); got != filepath.FromSlash(s.exp) {
			t.Errorf("[spec %d] expected %s; got %s", specIndex, s.exp, got)
		}
	}
}

func TestRelocate(t *testing.T) {
	workDir := t.TempDir()
	outDir := t.TempDir()

	src := filepath.Join(workDir, "normal.png")
	if err := os.WriteFile(src, []byte("frame 3"), 0644); err != nil {
		t.Fatal(err)
	}

	if Exists(outDir, "water", 3) {
		t.Fatal("expected destination to be missing before relocation")
	}

	dest, err := Relocate(src, outDir, "water", 3)
	if err != nil {
		t.Fatal(err)
	}
	if dest != filepath.Join(outDir, "water_0003.png") {
		t.Fatalf("unexpected destination %s", dest)
	}
	if !Exists(outDir, "water", 3) {
		t.Fatal("expected destination to exist after relocation")
	}
	if _, err = os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected source to be moved; stat returned %v", err)
	}

	// Rendering the same frame again replaces its output
	if err = os.WriteFile(src, []byte("frame 3 again"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err = Relocate(src, outDir, "water", 3); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "frame 3 again" {
		t.Fatalf("expected replaced contents; got %q", data)
	}
}

func TestRelocateErrors(t *testing.T) {
	workDir := t.TempDir()
	src := filepath.Join(workDir, "normal.png")

	_, err := Relocate(src, workDir, "water", 0)
	if !errors.Is(err, ErrNoArtifact) || engine.KindOf(err) != engine.KindIO {
		t.Fatalf("expected an IOError wrapping ErrNoArtifact; got %v", err)
	}

	if err = os.WriteFile(src, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Relocate(src, filepath.Join(workDir, "images"), "water", 0)
	if !errors.Is(err, os.ErrNotExist) || engine.KindOf(err) != engine.KindIO {
		t.Fatalf("expected an IOError for a missing destination directory; got %v", err)
	}

	_, err = Relocate(src, src, "water", 0)
	if !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory; got %v", err)
	}

	// Failed relocations leave the artifact in place
	if _, err = os.Stat(src); err != nil {
		t.Fatalf("expected artifact to be kept; got %v", err)
	}
}

func TestMoveAcrossDevices(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "normal.png")
	dest := filepath.Join(dir, "water_0001.png")
	if err := os.WriteFile(src, []byte("pixels"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := moveAcrossDevices(src, dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "pixels" {
		t.Fatalf("expected copied contents; got %q (%v)", data, err)
	}
	if _, err = os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected source to be removed")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected no temporary files to be left behind; got %d entries", len(entries))
	}
}
