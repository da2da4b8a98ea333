package deployer

import (
	"context"
	"io"
)

// PortMapping publishes one container port on the host.
type PortMapping struct {
	Host      int
	Container int
	Proto     string // "tcp" or "udp"; empty means tcp
}

// ContainerOpts holds the options for creating a container. Containers are
// created stopped; starting is a separate lifecycle step.
type ContainerOpts struct {
	Name          string
	Image         string
	Env           map[string]string
	Ports         []PortMapping
	Binds         []string // "volume:/path" mounts; named volumes are created on demand
	MemoryMB      int64
	Network       string
	RestartPolicy string
	Labels        map[string]string
}

// PullProgress is one progress message from an image pull.
type PullProgress struct {
	Status  string
	Layer   string
	Current int64
	Total   int64
}

// ContainerStatus holds the observed state of a container.
type ContainerStatus struct {
	ID      string
	Name    string
	State   string // running, exited, created, etc.
	Running bool
}

// ContainerStats is a one-shot resource usage sample. CPU values are deltas
// between the runtime's two most recent readings.
type ContainerStats struct {
	CPUDelta       uint64
	SystemCPUDelta uint64
	OnlineCPUs     uint32
	MemoryUsage    uint64
	MemoryLimit    uint64
}

// ExecResult holds the result of a buffered in-container command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Engine defines the container runtime operations the control plane needs.
type Engine interface {
	PullImage(ctx context.Context, image string, progress func(PullProgress)) error
	CreateContainer(ctx context.Context, opts ContainerOpts) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	RestartContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
	RemoveVolume(ctx context.Context, name string) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerStatus, error)
	ContainerStats(ctx context.Context, containerID string) (*ContainerStats, error)
	ExecInContainer(ctx context.Context, containerID string, cmd []string) (*ExecResult, error)
	StreamExec(ctx context.Context, containerID string, cmd []string) (io.ReadCloser, error)
	ContainerLogs(ctx context.Context, containerID string, tail int) (string, error)
	CopyFromContainer(ctx context.Context, containerID, path string) (io.ReadCloser, error)
	CopyToContainer(ctx context.Context, containerID, path string, content io.Reader) error
}
