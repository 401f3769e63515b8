package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the subset of the Docker Engine client the fetcher uses.
type dockerAPI interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

const removeTimeout = 30 * time.Second

// passthroughEnv are host variables forwarded into the tooling container.
var passthroughEnv = []string{"GH_TOKEN", "GITHUB_TOKEN", "GH_HOST", "GH_ENTERPRISE_TOKEN"}

// Docker runs the download command inside a tooling container, for runners
// that have a Docker daemon but not the CI provider's CLI.
type Docker struct {
	client  dockerAPI
	image   string
	command *Command
	labels  map[string]string
}

// NewDocker connects to the Docker daemon from the environment (DOCKER_HOST etc.).
func NewDocker(ctx context.Context, imageName, commandTemplate string) (*Docker, error) {
	command, err := NewCommand(commandTemplate)
	if err != nil {
		return nil, err
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("docker daemon not reachable: %w", err)
	}

	return newDocker(dockerClient, imageName, command), nil
}

func newDocker(api dockerAPI, imageName string, command *Command) *Docker {
	return &Docker{
		client:  api,
		image:   imageName,
		command: command,
		labels:  map[string]string{"managed-by": "depwait"},
	}
}

// Fetch runs the rendered command in a fresh container with req.Dir
// bind-mounted at the same absolute path. Exit code 0 is success.
func (d *Docker) Fetch(ctx context.Context, req Request) error {
	dir, err := filepath.Abs(req.Dir)
	if err != nil {
		return Permanent(fmt.Errorf("failed to resolve download dir: %w", err))
	}
	req.Dir = dir

	argv, err := d.command.Argv(req)
	if err != nil {
		return Permanent(err)
	}

	if err := d.pullImageIfNeeded(ctx); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", d.image, err)
	}

	containerID, err := d.createContainer(ctx, req, argv)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer d.removeContainer(containerID)

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	exitCode, err := d.waitForExit(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed waiting for container: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("download command exited with code %d; output=%s", exitCode, d.containerOutput(ctx, containerID))
	}

	slog.Debug("Container download succeeded", "artifact", req.Artifact, "image", d.image)
	return nil
}

func (d *Docker) createContainer(ctx context.Context, req Request, argv []string) (string, error) {
	env := req.Env()
	for _, key := range passthroughEnv {
		if value := os.Getenv(key); value != "" {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
	}

	containerConfig := &container.Config{
		Image:      d.image,
		Entrypoint: argv[:1],
		Cmd:        argv[1:],
		Env:        env,
		WorkingDir: req.Dir,
		User:       fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Labels:     d.labels,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: req.Dir,
				Target: req.Dir,
			},
		},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *Docker) pullImageIfNeeded(ctx context.Context) error {
	_, err := d.client.ImageInspect(ctx, d.image)
	if err == nil {
		return nil
	}

	reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *Docker) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// containerOutput returns the tail of the container's combined output.
func (d *Docker) containerOutput(ctx context.Context, containerID string) string {
	logs, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return ""
	}
	defer logs.Close()

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, logs); err != nil {
		return ""
	}

	var output tailBuffer
	if _, err := stdcopy.StdCopy(&output, &output, bytes.NewReader(raw.Bytes())); err != nil {
		// Not multiplexed (TTY container); use the raw stream.
		return strings.TrimSpace(raw.String())
	}
	return output.String()
}

// removeContainer uses a fresh context so cleanup still runs after the
// attempt's context has been cancelled.
func (d *Docker) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("Failed to remove download container", "containerId", containerID, "error", err)
	}
}

// Close releases the Docker client.
func (d *Docker) Close() error {
	return d.client.Close()
}
