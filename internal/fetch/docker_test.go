package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeDocker struct {
	mu        sync.Mutex
	hasImage  bool
	pulled    bool
	exitCode  int64
	logs      string
	created   *container.Config
	host      *container.HostConfig
	removed   []string
	createErr error
}

func (f *fakeDocker) ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error) {
	if f.hasImage {
		return image.InspectResponse{}, nil
	}
	return image.InspectResponse{}, errors.New("No such image")
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.pulled = true
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.created = config
	f.host = hostConfig
	return container.CreateResponse{ID: "c1"}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return nil
}

func (f *fakeDocker) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	statusCh <- container.WaitResponse{StatusCode: f.exitCode}
	return statusCh, errCh
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.logs))
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeDocker) Close() error { return nil }

func newTestDocker(t *testing.T, api *fakeDocker) *Docker {
	t.Helper()
	command, err := NewCommand("gh run download --name {{.Artifact}} --dir {{.Dir}} --repo {{.Repository}}")
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	return newDocker(api, "ghcr.io/cli/cli:latest", command)
}

func TestDocker_FetchSuccess(t *testing.T) {
	t.Setenv("GH_TOKEN", "ghs_test")
	api := &fakeDocker{hasImage: true}
	d := newTestDocker(t, api)
	dir := t.TempDir()

	err := d.Fetch(context.Background(), Request{Artifact: "result-build-1", Dir: dir, Repository: "acme/app"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if api.pulled {
		t.Error("image should not be pulled when present")
	}
	if got := strings.Join(api.created.Entrypoint, " "); got != "gh" {
		t.Errorf("Entrypoint = %q, want gh", got)
	}
	wantCmd := "run download --name result-build-1 --dir " + dir + " --repo acme/app"
	if got := strings.Join(api.created.Cmd, " "); got != wantCmd {
		t.Errorf("Cmd = %q, want %q", got, wantCmd)
	}
	if len(api.host.Mounts) != 1 || api.host.Mounts[0].Source != dir || api.host.Mounts[0].Target != dir {
		t.Errorf("Mounts = %+v, want bind of %s", api.host.Mounts, dir)
	}
	if !strings.Contains(strings.Join(api.created.Env, ","), "GH_TOKEN=ghs_test") {
		t.Error("GH_TOKEN should be passed through to the container")
	}
	if len(api.removed) != 1 || api.removed[0] != "c1" {
		t.Errorf("removed = %v, want [c1]", api.removed)
	}
}

func TestDocker_FetchPullsMissingImage(t *testing.T) {
	t.Parallel()
	api := &fakeDocker{}
	d := newTestDocker(t, api)

	if err := d.Fetch(context.Background(), Request{Artifact: "a", Dir: t.TempDir()}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !api.pulled {
		t.Error("missing image should be pulled")
	}
}

func TestDocker_FetchNonZeroExit(t *testing.T) {
	t.Parallel()
	api := &fakeDocker{hasImage: true, exitCode: 1, logs: "no artifact matches any of the names provided\n"}
	d := newTestDocker(t, api)

	err := d.Fetch(context.Background(), Request{Artifact: "a", Dir: t.TempDir()})
	if err == nil {
		t.Fatal("Fetch() expected error for non-zero exit")
	}
	if IsPermanent(err) {
		t.Error("non-zero exit should be retryable")
	}
	if !strings.Contains(err.Error(), "no artifact matches") {
		t.Errorf("error should include container output: %v", err)
	}
	if len(api.removed) != 1 {
		t.Error("container should be removed after a failed attempt")
	}
}

func TestDocker_FetchCreateError(t *testing.T) {
	t.Parallel()
	api := &fakeDocker{hasImage: true, createErr: errors.New("daemon busy")}
	d := newTestDocker(t, api)

	err := d.Fetch(context.Background(), Request{Artifact: "a", Dir: t.TempDir()})
	if err == nil || IsPermanent(err) {
		t.Errorf("Fetch() = %v, want retryable error", err)
	}
	if len(api.removed) != 0 {
		t.Error("nothing to remove when create fails")
	}
}
