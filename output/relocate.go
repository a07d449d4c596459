// Package output moves the artifacts written by the rendering engine into
// their per-frame destination.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/achilleasa/framebatch/engine"
)

var (
	ErrNoArtifact   = errors.New("output: engine artifact not found")
	ErrNotDirectory = errors.New("output: destination is not a directory")
)

// Get the destination path for a frame: <dir>/<prefix>_<frame>.png with the
// frame index zero-padded to four digits.
func DestinationPath(dir, prefix string, frame int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%04d.png", prefix, frame))
}

// Check whether the destination for a frame already exists.
func Exists(dir, prefix string, frame int) bool {
	info, err := os.Stat(DestinationPath(dir, prefix, frame))
	return err == nil && info.Mode().IsRegular()
}

// Move the engine artifact to the destination for a frame and return the
// destination path. An existing destination is replaced.
func Relocate(sourcePath, dir, prefix string, frame int) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrNoArtifact
		}
		return "", engine.IOError("relocate output", sourcePath, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", engine.IOError("relocate output", dir, err)
	}
	if !info.IsDir() {
		return "", engine.IOError("relocate output", dir, ErrNotDirectory)
	}

	dest := DestinationPath(dir, prefix, frame)
	err = os.Rename(sourcePath, dest)
	if errors.Is(err, syscall.EXDEV) {
		err = moveAcrossDevices(sourcePath, dest)
	}
	if err != nil {
		return "", engine.IOError("relocate output", dest, err)
	}
	return dest, nil
}

func moveAcrossDevices(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".relocate-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, in)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if err = os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	return os.Remove(src)
}
