package deployer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerEngine implements Engine against a single Docker daemon with one
// long-lived client.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the daemon at host, or the SDK's environment
// defaults when host is empty.
func NewDockerEngine(host string) (*DockerEngine, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

func (d *DockerEngine) Close() error {
	return d.cli.Close()
}

// Ping verifies the daemon is reachable.
func (d *DockerEngine) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

// EnsureNetwork creates the bridge network all managed containers attach to,
// if it does not exist yet.
func (d *DockerEngine) EnsureNetwork(ctx context.Context, name string) error {
	existing, err := d.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range existing {
		if n.Name == name {
			return nil
		}
	}

	if _, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

// IsNotFound reports whether err means the container is gone on the daemon
// side.
func IsNotFound(err error) bool {
	return client.IsErrNotFound(err)
}

func (d *DockerEngine) PullImage(ctx context.Context, img string, progress func(PullProgress)) error {
	reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()

	// The pull stream is a sequence of JSON messages, one per line.
	type pullMessage struct {
		Status         string `json:"status"`
		ID             string `json:"id"`
		ProgressDetail struct {
			Current int64 `json:"current"`
			Total   int64 `json:"total"`
		} `json:"progressDetail"`
		Error string `json:"error"`
	}

	dec := json.NewDecoder(reader)
	for {
		var msg pullMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read pull stream for %s: %w", img, err)
		}
		if msg.Error != "" {
			return fmt.Errorf("pull image %s: %s", img, msg.Error)
		}
		if progress != nil {
			progress(PullProgress{
				Status:  msg.Status,
				Layer:   msg.ID,
				Current: msg.ProgressDetail.Current,
				Total:   msg.ProgressDetail.Total,
			})
		}
	}
}

func (d *DockerEngine) CreateContainer(ctx context.Context, opts ContainerOpts) (string, error) {
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, pm := range opts.Ports {
		proto := pm.Proto
		if proto == "" {
			proto = "tcp"
		}
		cp := nat.Port(strconv.Itoa(pm.Container) + "/" + proto)
		exposedPorts[cp] = struct{}{}
		portBindings[cp] = []nat.PortBinding{
			{HostPort: strconv.Itoa(pm.Host)},
		}
	}

	config := &container.Config{
		Image:        opts.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       opts.Labels,
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        opts.Binds,
		Resources: container.Resources{
			Memory: opts.MemoryMB * 1024 * 1024,
		},
	}
	if opts.RestartPolicy != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(opts.RestartPolicy),
		}
	}

	var networkConfig *network.NetworkingConfig
	if opts.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				opts.Network: {},
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", opts.Name, err)
	}
	return resp.ID, nil
}

func (d *DockerEngine) StartContainer(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", containerID, err)
	}
	return nil
}

func (d *DockerEngine) StopContainer(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", containerID, err)
	}
	return nil
}

func (d *DockerEngine) RestartContainer(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerRestart(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("restart container %s: %w", containerID, err)
	}
	return nil
}

func (d *DockerEngine) RemoveContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}

// RemoveVolume deletes a named volume. Anonymous volumes go away with their
// container; named data volumes need this explicit removal.
func (d *DockerEngine) RemoveVolume(ctx context.Context, name string) error {
	if err := d.cli.VolumeRemove(ctx, name, true); err != nil {
		return fmt.Errorf("remove volume %s: %w", name, err)
	}
	return nil
}

func (d *DockerEngine) InspectContainer(ctx context.Context, containerID string) (*ContainerStatus, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	return &ContainerStatus{
		ID:      info.ID,
		Name:    info.Name,
		State:   info.State.Status,
		Running: info.State.Running,
	}, nil
}

func (d *DockerEngine) ContainerStats(ctx context.Context, containerID string) (*ContainerStats, error) {
	resp, err := d.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("stats for container %s: %w", containerID, err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats for container %s: %w", containerID, err)
	}

	out := &ContainerStats{
		OnlineCPUs:  stats.CPUStats.OnlineCPUs,
		MemoryUsage: stats.MemoryStats.Usage,
		MemoryLimit: stats.MemoryStats.Limit,
	}
	if stats.CPUStats.CPUUsage.TotalUsage >= stats.PreCPUStats.CPUUsage.TotalUsage {
		out.CPUDelta = stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage
	}
	if stats.CPUStats.SystemUsage >= stats.PreCPUStats.SystemUsage {
		out.SystemCPUDelta = stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage
	}
	return out, nil
}

func (d *DockerEngine) ExecInContainer(ctx context.Context, containerID string, cmd []string) (*ExecResult, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := d.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return nil, fmt.Errorf("exec create in %s: %w", containerID, err)
	}

	resp, err := d.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach in %s: %w", containerID, err)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return nil, fmt.Errorf("exec read output in %s: %w", containerID, err)
	}

	inspectResp, err := d.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect in %s: %w", containerID, err)
	}

	return &ExecResult{
		ExitCode: inspectResp.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// StreamExec starts cmd and returns its merged output as a live stream.
// Closing the reader tears the exec connection down.
func (d *DockerEngine) StreamExec(ctx context.Context, containerID string, cmd []string) (io.ReadCloser, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := d.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return nil, fmt.Errorf("exec create in %s: %w", containerID, err)
	}

	resp, err := d.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach in %s: %w", containerID, err)
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, resp.Reader)
		pw.CloseWithError(err)
	}()

	return &execStream{r: pr, close: resp.Close}, nil
}

type execStream struct {
	r     *io.PipeReader
	close func()
}

func (s *execStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *execStream) Close() error {
	s.close()
	return s.r.Close()
}

func (d *DockerEngine) ContainerLogs(ctx context.Context, containerID string, tail int) (string, error) {
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("logs for container %s: %w", containerID, err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", fmt.Errorf("read logs for container %s: %w", containerID, err)
	}
	return out.String(), nil
}

func (d *DockerEngine) CopyFromContainer(ctx context.Context, containerID, path string) (io.ReadCloser, error) {
	rc, _, err := d.cli.CopyFromContainer(ctx, containerID, path)
	if err != nil {
		return nil, fmt.Errorf("copy %s from container %s: %w", path, containerID, err)
	}
	return rc, nil
}

func (d *DockerEngine) CopyToContainer(ctx context.Context, containerID, path string, content io.Reader) error {
	err := d.cli.CopyToContainer(ctx, containerID, path, content, container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("copy to %s in container %s: %w", path, containerID, err)
	}
	return nil
}
