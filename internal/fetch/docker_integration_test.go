//go:build integration

package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDocker_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	d, err := NewDocker(ctx, "alpine:latest", `sh -c "echo BUILD SUCCESS > {{.Dir}}/result.txt"`)
	if err != nil {
		t.Fatalf("NewDocker() error = %v", err)
	}
	defer d.Close()

	dir := t.TempDir()
	if err := d.Fetch(ctx, Request{Dependency: "build", Artifact: "result-build-1", Dir: dir}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	if err != nil {
		t.Fatalf("result file not written: %v", err)
	}
	if string(content) != "BUILD SUCCESS\n" {
		t.Errorf("content = %q", content)
	}

	failing, err := NewDocker(ctx, "alpine:latest", "false")
	if err != nil {
		t.Fatalf("NewDocker() error = %v", err)
	}
	defer failing.Close()

	if err := failing.Fetch(ctx, Request{Dir: dir}); err == nil {
		t.Error("Fetch() expected error for failing command")
	}
}
