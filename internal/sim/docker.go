package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const containerWorkDir = "/work"

// DockerExecutor runs every command in a throw-away container with the
// working directory bind-mounted at /work, so Verilator does not have to be
// installed on the host.
type DockerExecutor struct {
	cli      *client.Client
	imageRef string
	user     string
	logger   *slog.Logger
}

func NewDockerExecutor(imageRef string, logger *slog.Logger) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerExecutor{cli: cli, imageRef: imageRef, user: hostUser(), logger: logger}, nil
}

func (d *DockerExecutor) Close() error {
	return d.cli.Close()
}

func (d *DockerExecutor) Exec(ctx context.Context, dir string, cmd Command) (ExecResult, error) {
	cfg, host, err := d.containerSpec(dir, cmd)
	if err != nil {
		return ExecResult{}, err
	}

	id, err := d.create(ctx, cfg, host)
	if err != nil {
		return ExecResult{}, err
	}
	defer func() {
		if err := d.cli.ContainerRemove(context.WithoutCancel(ctx), id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			d.logger.Warn("remove toolchain container", "container_id", id, "error", err)
		}
	}()

	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return ExecResult{}, fmt.Errorf("start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return ExecResult{}, fmt.Errorf("wait for container: %w", err)
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return ExecResult{}, fmt.Errorf("wait for container: %s", st.Error.Message)
		}
		exitCode = st.StatusCode
	}

	logs, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return ExecResult{}, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return ExecResult{}, fmt.Errorf("demux container logs: %w", err)
	}
	return ExecResult{ExitCode: int(exitCode), Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (d *DockerExecutor) containerSpec(dir string, cmd Command) (*container.Config, *container.HostConfig, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve work dir: %w", err)
	}
	cfg := &container.Config{
		Image:      d.imageRef,
		Entrypoint: []string{cmd.Name},
		Cmd:        cmd.Args,
		WorkingDir: containerWorkDir,
		User:       d.user,
	}
	host := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: abs,
			Target: containerWorkDir,
		}},
	}
	return cfg, host, nil
}

// create pulls the image once when the daemon does not have it yet.
func (d *DockerExecutor) create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err == nil {
		return resp.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("create container: %w", err)
	}

	d.logger.Info("pulling toolchain image", "image", d.imageRef)
	rc, pullErr := d.cli.ImagePull(ctx, d.imageRef, image.PullOptions{})
	if pullErr != nil {
		return "", fmt.Errorf("pull image %s: %w", d.imageRef, errors.Join(err, pullErr))
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()

	resp, err = d.cli.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

// hostUser keeps files written into the bind mount owned by the caller.
func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return strconv.Itoa(os.Getuid()) + ":" + strconv.Itoa(os.Getgid())
}
