package core

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/hub"
	"github.com/craftyard/craftyard/internal/model"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

// ---------- Mock Rows ----------

// mockRows implements pgx.Rows for testing.
// It iterates through a list of scan functions, one per row.
type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

// newEmptyMockRows returns a mockRows that yields zero rows.
func newEmptyMockRows() *mockRows {
	return &mockRows{}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

// ---------- Mock Engine ----------

// mockEngine implements deployer.Engine for testing.
type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) PullImage(ctx context.Context, image string, progress func(deployer.PullProgress)) error {
	args := m.Called(ctx, image, progress)
	return args.Error(0)
}

func (m *mockEngine) CreateContainer(ctx context.Context, opts deployer.ContainerOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) StartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *mockEngine) StopContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *mockEngine) RestartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *mockEngine) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *mockEngine) RemoveVolume(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockEngine) InspectContainer(ctx context.Context, containerID string) (*deployer.ContainerStatus, error) {
	args := m.Called(ctx, containerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployer.ContainerStatus), args.Error(1)
}

func (m *mockEngine) ContainerStats(ctx context.Context, containerID string) (*deployer.ContainerStats, error) {
	args := m.Called(ctx, containerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployer.ContainerStats), args.Error(1)
}

func (m *mockEngine) ExecInContainer(ctx context.Context, containerID string, cmd []string) (*deployer.ExecResult, error) {
	args := m.Called(ctx, containerID, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployer.ExecResult), args.Error(1)
}

func (m *mockEngine) StreamExec(ctx context.Context, containerID string, cmd []string) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockEngine) ContainerLogs(ctx context.Context, containerID string, tail int) (string, error) {
	args := m.Called(ctx, containerID, tail)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) CopyFromContainer(ctx context.Context, containerID, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockEngine) CopyToContainer(ctx context.Context, containerID, path string, content io.Reader) error {
	args := m.Called(ctx, containerID, path, content)
	return args.Error(0)
}

// notFoundError mimics the daemon's missing-container errors, which the
// docker client recognizes by the NotFound marker method.
type notFoundError struct{ msg string }

func (e notFoundError) Error() string { return e.msg }
func (notFoundError) NotFound()       {}

// ---------- Hub helpers ----------

// nopSource satisfies hub.LogSource for tests that never stream.
type nopSource struct{}

func (nopSource) StreamExec(ctx context.Context, containerID string, cmd []string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (nopSource) ContainerLogs(ctx context.Context, containerID string, tail int) (string, error) {
	return "", nil
}

func newTestHub() *hub.Hub {
	return hub.New(nopSource{}, zerolog.Nop())
}

// recordingConn captures events published to a hub channel.
type recordingConn struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *recordingConn) Send(ctx context.Context, event model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *recordingConn) received() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Event(nil), c.events...)
}

// ---------- Config ----------

func testConfig() config.Config {
	return config.Config{
		DockerNetwork:            "craftyard",
		ServerImage:              "itzg/minecraft-server:latest",
		ConnectHost:              "127.0.0.1",
		GamePortStart:            25565,
		GamePortEnd:              25664,
		RconPortStart:            35565,
		RconPortEnd:              35664,
		QueryPortStart:           45565,
		QueryPortEnd:             45664,
		MaxServers:               10,
		DefaultMemoryMB:          2048,
		RconTimeoutSeconds:       5,
		QueryTimeoutSeconds:      5,
		ReconcileIntervalSeconds: 30,
	}
}
