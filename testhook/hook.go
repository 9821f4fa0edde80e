// Package testhook provides small helpers shared by tests, mostly around
// temporary files that clean up after themselves.
package testhook

import (
	"os"
	"testing"
)

// TempDir creates a temp directory that is automatically deleted when
// the test completes.
func TempDir(tb testing.TB, pattern string) (string, error) {
	path, err := os.MkdirTemp("", pattern)
	if err == nil {
		tb.Cleanup(func() {
			os.RemoveAll(path)
		})
	}
	return path, err
}

// TempDirInDir is TempDir with a specified parent directory instead of
// the default TMPDIR.
func TempDirInDir(tb testing.TB, dir string, pattern string) (string, error) {
	path, err := os.MkdirTemp(dir, pattern)
	if err == nil {
		tb.Cleanup(func() {
			os.RemoveAll(path)
		})
	}
	return path, err
}
