package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

const (
	containerWorkDir = "/workspace"
	defaultPidsLimit = 256
)

// DockerRunner runs each block in a fresh container with the working directory bind-mounted.
type DockerRunner struct {
	client *client.Client
	config Config
}

// NewDockerRunner creates a new Docker-based runner.
func NewDockerRunner(config Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	return &DockerRunner{
		client: cli,
		config: config,
	}, nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// RunCmd runs name with args in a container whose working directory is dir.
// On timeout the container is killed and the logs written so far are returned.
func (r *DockerRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	timeout = r.config.timeout(timeout)

	img := GetDockerImage(name, r.config)
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image %s: %w", img, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	memory, err := parseMemory(r.config.Memory)
	if err != nil {
		return Result{}, err
	}
	pids := int64(defaultPidsLimit)

	containerConfig := &container.Config{
		Image:      img,
		Cmd:        append([]string{name}, args...),
		WorkingDir: containerWorkDir,
		// Same uid/gid as the host user, so files written to the bind mount stay ours
		User:            fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Env:             append([]string{"HOME=/tmp", "PYTHONUNBUFFERED=1"}, r.config.Env...),
		NetworkDisabled: !r.config.Network,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: absDir,
				Target: containerWorkDir,
			},
		},
		Resources: container.Resources{
			Memory:    memory,
			NanoCPUs:  parseCPU(r.config.CPU),
			PidsLimit: &pids,
			Ulimits: []*units.Ulimit{
				{
					Name: "nofile",
					Soft: 1024,
					Hard: 1024,
				},
			},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,nosuid,size=100m",
		},
	}

	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResp.ID

	// Removed here rather than with AutoRemove so logs stay readable after a kill.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var res Result
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		killCancel()
		res.Code = -1
		res.TimedOut = ctx.Err() == nil
	case err := <-errCh:
		if err != nil && execCtx.Err() == nil {
			return Result{}, fmt.Errorf("container wait error: %w", err)
		}
		res.Code = -1
		res.TimedOut = ctx.Err() == nil
	case status := <-statusCh:
		res.Code = int(status.StatusCode)
	}

	logCtx, logCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer logCancel()
	stdout, stderr, err := r.readLogs(logCtx, containerID)
	if err != nil && !res.TimedOut {
		return res, err
	}
	res.Stdout, res.Stderr = stdout, stderr

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

// readLogs demultiplexes the container's stdout and stderr.
func (r *DockerRunner) readLogs(ctx context.Context, containerID string) (string, string, error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("failed to demultiplex container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// ensureImage checks if the image exists locally, and pulls it if not.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// the pull only completes once its progress stream is drained
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// parseMemory parses a memory limit such as "1g" or "512m" into bytes.
func parseMemory(memStr string) (int64, error) {
	memStr = strings.TrimSpace(memStr)
	if memStr == "" {
		return 1024 * 1024 * 1024, nil
	}
	n, err := units.RAMInBytes(memStr)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", memStr, err)
	}
	return n, nil
}

// parseCPU parses a CPU count such as "2" or "1.5" into NanoCPUs.
func parseCPU(cpuStr string) int64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(cpuStr), 64)
	if err != nil || value <= 0 {
		value = 2
	}
	return int64(value * 1e9)
}
