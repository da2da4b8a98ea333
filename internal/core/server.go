package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/craftyard/craftyard/internal/catalog"
	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/hub"
	"github.com/craftyard/craftyard/internal/model"
	"github.com/craftyard/craftyard/internal/platform"
	"github.com/craftyard/craftyard/internal/query"
)

const (
	containerNamePrefix = "craftyard_"
	gameContainerPort   = 25565
	rconPasswordLength  = 32
	minMemoryMB         = 512

	pgUniqueViolation = "23505"

	// allocRetries bounds re-allocation after losing a port uniqueness race
	// to a concurrent provision.
	allocRetries = 3
)

// ProvisionParams describes a server to create. Zero ports mean "allocate
// from the configured range"; explicit ports must be free and in range.
type ProvisionParams struct {
	Name        string
	Description string
	Flavor      string
	Version     string
	MemoryMB    int
	GamePort    int
	RconPort    int
	QueryPort   int
}

// UpdateParams carries the mutable fields of a stopped server. Nil means
// leave unchanged.
type UpdateParams struct {
	Name        *string
	Description *string
	MemoryMB    *int
}

// ServerService owns the server lifecycle: provisioning, start/stop/restart,
// updates, deletion and telemetry. All container work goes through the
// runtime engine; every status transition is persisted first and broadcast
// to the hub's default channel.
type ServerService struct {
	db      DB
	engine  deployer.Engine
	hub     *hub.Hub
	cfg     config.Config
	logger  zerolog.Logger
	locks   *instanceLocks
	allocMu sync.Mutex

	// queryStat is swapped out in tests.
	queryStat func(ctx context.Context, addr string) (*query.FullStat, error)
}

func NewServerService(db DB, engine deployer.Engine, h *hub.Hub, cfg config.Config, logger zerolog.Logger) *ServerService {
	qc := query.NewClient(time.Duration(cfg.QueryTimeoutSeconds) * time.Second)
	return &ServerService{
		db:        db,
		engine:    engine,
		hub:       h,
		cfg:       cfg,
		logger:    logger.With().Str("component", "server-service").Logger(),
		locks:     newInstanceLocks(),
		queryStat: qc.FullStat,
	}
}

func volumeName(serverID string) string {
	return "craftyard_data_" + serverID
}

// Provision creates a server end to end: allocate ports, insert the record,
// pull the image, create the container. The call is synchronous; when it
// returns the record is either stopped with a container attached, or gone.
func (s *ServerService) Provision(ctx context.Context, params ProvisionParams) (*model.ServerInstance, error) {
	flavor, ok := catalog.Lookup(params.Flavor)
	if !ok {
		return nil, fmt.Errorf("%w: unknown flavor %q", ErrValidation, params.Flavor)
	}
	if params.Version == "" {
		params.Version = "latest"
	}
	if params.MemoryMB == 0 {
		params.MemoryMB = s.cfg.DefaultMemoryMB
	}
	if params.MemoryMB < minMemoryMB {
		return nil, fmt.Errorf("%w: memory must be at least %d MB", ErrValidation, minMemoryMB)
	}

	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM servers`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count servers: %w", err)
	}
	if count >= s.cfg.MaxServers {
		return nil, fmt.Errorf("%w: host is at its limit of %d servers", ErrResourceExhausted, s.cfg.MaxServers)
	}

	inst, err := s.insertAllocated(ctx, params)
	if err != nil {
		return nil, err
	}

	// The record exists now. Any failure past this point rolls it back so a
	// failed provision leaves nothing behind.
	if err := s.materialize(ctx, inst, flavor); err != nil {
		s.rollbackProvision(ctx, inst, err)
		return nil, fmt.Errorf("provision server %s: %w: %w", inst.Name, ErrRuntime, err)
	}

	s.logger.Info().
		Str("server_id", inst.ID).
		Str("name", inst.Name).
		Int("game_port", inst.GamePort).
		Msg("provisioned server")
	return inst, nil
}

// insertAllocated picks free ports and inserts the record as downloading.
// Auto-allocated port collisions with concurrent provisions retry; explicit
// port and name collisions surface as conflicts.
func (s *ServerService) insertAllocated(ctx context.Context, params ProvisionParams) (*model.ServerInstance, error) {
	for attempt := 0; ; attempt++ {
		inst, err := s.tryInsert(ctx, params)
		if err == nil {
			return inst, nil
		}

		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
			return nil, err
		}
		switch pgErr.ConstraintName {
		case "servers_name_key", "servers_container_name_key":
			return nil, fmt.Errorf("%w: server name %q is taken", ErrConflict, params.Name)
		case "servers_game_port_key":
			if params.GamePort != 0 {
				return nil, fmt.Errorf("%w: game port %d is taken", ErrConflict, params.GamePort)
			}
		case "servers_rcon_port_key":
			if params.RconPort != 0 {
				return nil, fmt.Errorf("%w: rcon port %d is taken", ErrConflict, params.RconPort)
			}
		case "servers_query_port_key":
			if params.QueryPort != 0 {
				return nil, fmt.Errorf("%w: query port %d is taken", ErrConflict, params.QueryPort)
			}
		}
		if attempt >= allocRetries {
			return nil, fmt.Errorf("allocate ports: %w", err)
		}
	}
}

func (s *ServerService) tryInsert(ctx context.Context, params ProvisionParams) (*model.ServerInstance, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	rows, err := s.db.Query(ctx, `SELECT game_port, rcon_port, query_port FROM servers`)
	if err != nil {
		return nil, fmt.Errorf("list allocated ports: %w", err)
	}
	defer rows.Close()

	usedGame := map[int]struct{}{}
	usedRcon := map[int]struct{}{}
	usedQuery := map[int]struct{}{}
	for rows.Next() {
		var g, r, q int
		if err := rows.Scan(&g, &r, &q); err != nil {
			return nil, fmt.Errorf("scan allocated ports: %w", err)
		}
		usedGame[g] = struct{}{}
		usedRcon[r] = struct{}{}
		usedQuery[q] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocated ports: %w", err)
	}

	gamePort, err := pickPort(params.GamePort, PortRange{Start: s.cfg.GamePortStart, End: s.cfg.GamePortEnd}, usedGame, "game")
	if err != nil {
		return nil, err
	}
	rconPort, err := pickPort(params.RconPort, PortRange{Start: s.cfg.RconPortStart, End: s.cfg.RconPortEnd}, usedRcon, "rcon")
	if err != nil {
		return nil, err
	}
	queryPort, err := pickPort(params.QueryPort, PortRange{Start: s.cfg.QueryPortStart, End: s.cfg.QueryPortEnd}, usedQuery, "query")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inst := &model.ServerInstance{
		ID:            platform.NewID(),
		Name:          params.Name,
		Description:   params.Description,
		Flavor:        params.Flavor,
		Version:       params.Version,
		GamePort:      gamePort,
		RconPort:      rconPort,
		QueryPort:     queryPort,
		RconPassword:  platform.NewSecret(rconPasswordLength),
		MemoryMB:      params.MemoryMB,
		ContainerName: containerNamePrefix + params.Name,
		Status:        model.StatusDownloading,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO servers (id, name, description, flavor, version, game_port, rcon_port, query_port, rcon_password, memory_mb, container_name, status, has_been_started, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inst.ID, inst.Name, inst.Description, inst.Flavor, inst.Version,
		inst.GamePort, inst.RconPort, inst.QueryPort, inst.RconPassword, inst.MemoryMB,
		inst.ContainerName, inst.Status, inst.HasBeenStarted, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert server: %w", err)
	}
	return inst, nil
}

// pickPort resolves one port: a requested port is validated against range
// and current use, zero falls through to first-fit allocation.
func pickPort(requested int, r PortRange, used map[int]struct{}, kind string) (int, error) {
	if requested != 0 {
		if !r.Contains(requested) {
			return 0, fmt.Errorf("%w: %s port %d outside range %d-%d", ErrValidation, kind, requested, r.Start, r.End)
		}
		if _, taken := used[requested]; taken {
			return 0, fmt.Errorf("%w: %s port %d is taken", ErrConflict, kind, requested)
		}
		return requested, nil
	}
	port, err := FreePort(r, used)
	if err != nil {
		return 0, fmt.Errorf("allocate %s port: %w", kind, err)
	}
	return port, nil
}

// materialize pulls the image and creates the container for a freshly
// inserted record, walking it downloading -> initializing -> stopped.
func (s *ServerService) materialize(ctx context.Context, inst *model.ServerInstance, flavor catalog.Flavor) error {
	s.broadcastStatus(inst.ID, model.StatusDownloading)

	err := s.engine.PullImage(ctx, s.cfg.ServerImage, func(p deployer.PullProgress) {
		s.hub.Publish(inst.ID, model.ChannelDefault, model.Event{
			Type:     model.EventDownloadProgress,
			ServerID: inst.ID,
			Message:  p.Status,
			Layer:    p.Layer,
			Current:  p.Current,
			Total:    p.Total,
		})
	})
	if err != nil {
		return fmt.Errorf("pull %s: %w", s.cfg.ServerImage, err)
	}

	if err := s.setStatus(ctx, inst.ID, model.StatusInitializing); err != nil {
		return err
	}
	inst.Status = model.StatusInitializing

	containerID, err := s.engine.CreateContainer(ctx, s.containerOpts(inst, flavor))
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	inst.ContainerID = &containerID

	_, err = s.db.Exec(ctx,
		`UPDATE servers SET container_id = $1, status = $2, updated_at = now() WHERE id = $3`,
		containerID, model.StatusStopped, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("record container id: %w", err)
	}
	inst.Status = model.StatusStopped
	s.broadcastStatus(inst.ID, model.StatusStopped)
	return nil
}

// rollbackProvision undoes a partial provision. It runs on a detached
// context so a cancelled request still cleans up fully.
func (s *ServerService) rollbackProvision(ctx context.Context, inst *model.ServerInstance, cause error) {
	ctx = context.WithoutCancel(ctx)

	if inst.ContainerID != nil {
		if err := s.engine.RemoveContainer(ctx, *inst.ContainerID); err != nil && !deployer.IsNotFound(err) {
			s.logger.Warn().Err(err).Str("server_id", inst.ID).Msg("rollback: remove container failed")
		}
		if err := s.engine.RemoveVolume(ctx, volumeName(inst.ID)); err != nil {
			s.logger.Warn().Err(err).Str("server_id", inst.ID).Msg("rollback: remove data volume failed")
		}
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM servers WHERE id = $1`, inst.ID); err != nil {
		s.logger.Error().Err(err).Str("server_id", inst.ID).Msg("rollback: delete server record failed")
	}
	s.hub.Publish(inst.ID, model.ChannelDefault, model.Event{
		Type:     model.EventError,
		ServerID: inst.ID,
		Message:  "provisioning failed: " + cause.Error(),
	})
}

func (s *ServerService) containerOpts(inst *model.ServerInstance, flavor catalog.Flavor) deployer.ContainerOpts {
	return deployer.ContainerOpts{
		Name:  inst.ContainerName,
		Image: s.cfg.ServerImage,
		Env: map[string]string{
			"EULA":          "TRUE",
			"TYPE":          flavor.ImageType,
			"VERSION":       inst.Version,
			"MEMORY":        fmt.Sprintf("%dM", inst.MemoryMB),
			"ENABLE_RCON":   "TRUE",
			"RCON_PORT":     strconv.Itoa(inst.RconPort),
			"RCON_PASSWORD": inst.RconPassword,
			"ENABLE_QUERY":  "TRUE",
			"QUERY_PORT":    strconv.Itoa(inst.QueryPort),
			"SERVER_PORT":   strconv.Itoa(gameContainerPort),
			"ONLINE_MODE":   "TRUE",
		},
		Ports: []deployer.PortMapping{
			{Host: inst.GamePort, Container: gameContainerPort, Proto: "tcp"},
			{Host: inst.RconPort, Container: inst.RconPort, Proto: "tcp"},
			{Host: inst.QueryPort, Container: inst.QueryPort, Proto: "udp"},
		},
		Binds:         []string{volumeName(inst.ID) + ":/data"},
		MemoryMB:      int64(inst.MemoryMB),
		Network:       s.cfg.DockerNetwork,
		RestartPolicy: "unless-stopped",
		Labels: map[string]string{
			"craftyard.managed":     "true",
			"craftyard.server.id":   inst.ID,
			"craftyard.server.name": inst.Name,
		},
	}
}

const serverColumns = `id, name, description, flavor, version, game_port, rcon_port, query_port, rcon_password, memory_mb, container_id, container_name, status, has_been_started, created_at, updated_at, last_started_at, last_stopped_at`

func scanServer(row pgx.Row) (*model.ServerInstance, error) {
	var inst model.ServerInstance
	err := row.Scan(&inst.ID, &inst.Name, &inst.Description, &inst.Flavor, &inst.Version,
		&inst.GamePort, &inst.RconPort, &inst.QueryPort, &inst.RconPassword, &inst.MemoryMB,
		&inst.ContainerID, &inst.ContainerName, &inst.Status, &inst.HasBeenStarted,
		&inst.CreatedAt, &inst.UpdatedAt, &inst.LastStartedAt, &inst.LastStoppedAt)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// Get retrieves a server by id.
func (s *ServerService) Get(ctx context.Context, id string) (*model.ServerInstance, error) {
	inst, err := scanServer(s.db.QueryRow(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: server %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get server %s: %w", id, err)
	}
	return inst, nil
}

// List retrieves all servers ordered by name.
func (s *ServerService) List(ctx context.Context) ([]model.ServerInstance, error) {
	rows, err := s.db.Query(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return collectServers(rows)
}

// ListByIDs retrieves the servers whose ids are in the given set, ordered by
// name. An empty set yields an empty list.
func (s *ServerService) ListByIDs(ctx context.Context, ids []string) ([]model.ServerInstance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return collectServers(rows)
}

func collectServers(rows pgx.Rows) ([]model.ServerInstance, error) {
	defer rows.Close()

	var servers []model.ServerInstance
	for rows.Next() {
		inst, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	return servers, nil
}

// Start brings a stopped server up.
func (s *ServerService) Start(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	inst, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if inst.Status == model.StatusRunning {
		return fmt.Errorf("%w: server %s is already running", ErrConflict, inst.Name)
	}
	if inst.ContainerID == nil {
		return fmt.Errorf("%w: server %s has no container", ErrConflict, inst.Name)
	}

	if err := s.setStatus(ctx, id, model.StatusStarting); err != nil {
		return err
	}
	if err := s.engine.StartContainer(ctx, *inst.ContainerID); err != nil {
		s.failStatus(ctx, id, "start container: "+err.Error())
		return fmt.Errorf("start server %s: %w: %w", inst.Name, ErrRuntime, err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE servers SET status = $1, has_been_started = TRUE, last_started_at = now(), updated_at = now() WHERE id = $2`,
		model.StatusRunning, id,
	)
	if err != nil {
		return fmt.Errorf("record server %s start: %w", id, err)
	}
	s.broadcastStatus(id, model.StatusRunning)
	return nil
}

// Stop brings a running server down.
func (s *ServerService) Stop(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	inst, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if inst.Status == model.StatusStopped {
		return fmt.Errorf("%w: server %s is already stopped", ErrConflict, inst.Name)
	}
	if inst.ContainerID == nil {
		return fmt.Errorf("%w: server %s has no container", ErrConflict, inst.Name)
	}

	if err := s.setStatus(ctx, id, model.StatusStopping); err != nil {
		return err
	}
	if err := s.engine.StopContainer(ctx, *inst.ContainerID); err != nil {
		s.failStatus(ctx, id, "stop container: "+err.Error())
		return fmt.Errorf("stop server %s: %w: %w", inst.Name, ErrRuntime, err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE servers SET status = $1, last_stopped_at = now(), updated_at = now() WHERE id = $2`,
		model.StatusStopped, id,
	)
	if err != nil {
		return fmt.Errorf("record server %s stop: %w", id, err)
	}
	s.broadcastStatus(id, model.StatusStopped)
	return nil
}

// Restart bounces a server's container regardless of current state.
func (s *ServerService) Restart(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	inst, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if inst.ContainerID == nil {
		return fmt.Errorf("%w: server %s has no container", ErrConflict, inst.Name)
	}

	if err := s.setStatus(ctx, id, model.StatusStarting); err != nil {
		return err
	}
	if err := s.engine.RestartContainer(ctx, *inst.ContainerID); err != nil {
		s.failStatus(ctx, id, "restart container: "+err.Error())
		return fmt.Errorf("restart server %s: %w: %w", inst.Name, ErrRuntime, err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE servers SET status = $1, has_been_started = TRUE, last_started_at = now(), updated_at = now() WHERE id = $2`,
		model.StatusRunning, id,
	)
	if err != nil {
		return fmt.Errorf("record server %s restart: %w", id, err)
	}
	s.broadcastStatus(id, model.StatusRunning)
	return nil
}

// Update edits name, description or memory of a stopped server. Name and
// memory changes replace the container; the data volume carries the world
// across.
func (s *ServerService) Update(ctx context.Context, id string, params UpdateParams) (*model.ServerInstance, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inst, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != model.StatusStopped {
		return nil, fmt.Errorf("%w: server %s must be stopped to update", ErrConflict, inst.Name)
	}

	name := inst.Name
	if params.Name != nil {
		name = *params.Name
	}
	description := inst.Description
	if params.Description != nil {
		description = *params.Description
	}
	memory := inst.MemoryMB
	if params.MemoryMB != nil {
		memory = *params.MemoryMB
	}
	if memory < minMemoryMB {
		return nil, fmt.Errorf("%w: memory must be at least %d MB", ErrValidation, minMemoryMB)
	}

	containerName := containerNamePrefix + name
	_, err = s.db.Exec(ctx,
		`UPDATE servers SET name = $1, description = $2, memory_mb = $3, container_name = $4, updated_at = now() WHERE id = $5`,
		name, description, memory, containerName, id,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: server name %q is taken", ErrConflict, name)
		}
		return nil, fmt.Errorf("update server %s: %w", id, err)
	}

	if inst.ContainerID != nil && (name != inst.Name || memory != inst.MemoryMB) {
		if err := s.replaceContainer(ctx, inst, name, containerName, memory); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// replaceContainer swaps a stopped server's container for one with the
// updated name and memory limit.
func (s *ServerService) replaceContainer(ctx context.Context, inst *model.ServerInstance, name, containerName string, memory int) error {
	flavor, _ := catalog.Lookup(inst.Flavor)

	if err := s.engine.RemoveContainer(ctx, *inst.ContainerID); err != nil && !deployer.IsNotFound(err) {
		return fmt.Errorf("replace container for %s: %w: %w", inst.Name, ErrRuntime, err)
	}

	next := *inst
	next.Name = name
	next.ContainerName = containerName
	next.MemoryMB = memory
	containerID, err := s.engine.CreateContainer(ctx, s.containerOpts(&next, flavor))
	if err != nil {
		// The old container is already gone; park the record in error
		// instead of pretending it still exists.
		cleanupCtx := context.WithoutCancel(ctx)
		if _, dbErr := s.db.Exec(cleanupCtx, `UPDATE servers SET container_id = NULL, updated_at = now() WHERE id = $1`, inst.ID); dbErr != nil {
			s.logger.Error().Err(dbErr).Str("server_id", inst.ID).Msg("clear container id failed")
		}
		s.failStatus(ctx, inst.ID, "recreate container: "+err.Error())
		return fmt.Errorf("recreate container for %s: %w: %w", name, ErrRuntime, err)
	}

	if _, err := s.db.Exec(ctx, `UPDATE servers SET container_id = $1, updated_at = now() WHERE id = $2`, containerID, inst.ID); err != nil {
		return fmt.Errorf("record new container id: %w", err)
	}
	return nil
}

// Delete removes a server, its container and its data volume. Container and
// volume removal is best effort; the record always goes.
func (s *ServerService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	inst, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if inst.ContainerID != nil {
		if err := s.engine.RemoveContainer(ctx, *inst.ContainerID); err != nil && !deployer.IsNotFound(err) {
			s.logger.Warn().Err(err).Str("server_id", id).Msg("remove container failed")
		}
		if err := s.engine.RemoveVolume(ctx, volumeName(id)); err != nil {
			s.logger.Warn().Err(err).Str("server_id", id).Msg("remove data volume failed")
		}
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete server %s: %w", id, err)
	}
	s.logger.Info().Str("server_id", id).Str("name", inst.Name).Msg("deleted server")
	return nil
}

// Stats assembles a live telemetry snapshot. Both sources are advisory:
// a server that is not running reports zeros, and either source failing
// degrades its fields to defaults.
func (s *ServerService) Stats(ctx context.Context, id string) (*model.ServerStats, error) {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &model.ServerStats{ServerID: id, Status: inst.Status}
	if inst.Status != model.StatusRunning || inst.ContainerID == nil {
		return stats, nil
	}

	var (
		usage   *deployer.ContainerStats
		players *query.FullStat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.engine.ContainerStats(gctx, *inst.ContainerID)
		if err != nil {
			s.logger.Warn().Err(err).Str("server_id", id).Msg("container stats unavailable")
			return nil
		}
		usage = res
		return nil
	})
	g.Go(func() error {
		res, err := s.queryStat(gctx, fmt.Sprintf("%s:%d", s.cfg.ConnectHost, inst.QueryPort))
		if err != nil {
			s.logger.Debug().Err(err).Str("server_id", id).Msg("query stat unavailable")
			return nil
		}
		players = res
		return nil
	})
	_ = g.Wait()

	if usage != nil {
		if usage.SystemCPUDelta > 0 {
			cpus := usage.OnlineCPUs
			if cpus == 0 {
				cpus = 1
			}
			stats.CPUPercent = float64(usage.CPUDelta) / float64(usage.SystemCPUDelta) * float64(cpus) * 100
		}
		stats.MemoryUsedMB = float64(usage.MemoryUsage) / (1024 * 1024)
		stats.MemoryLimitMB = float64(usage.MemoryLimit) / (1024 * 1024)
	}
	if players != nil {
		stats.OnlinePlayers = players.OnlinePlayers
		stats.MaxPlayers = players.MaxPlayers
		stats.Players = players.Players
	}
	return stats, nil
}

func (s *ServerService) setStatus(ctx context.Context, id, status string) error {
	if _, err := s.db.Exec(ctx, `UPDATE servers SET status = $1, updated_at = now() WHERE id = $2`, status, id); err != nil {
		return fmt.Errorf("set server %s status to %s: %w", id, status, err)
	}
	s.broadcastStatus(id, status)
	return nil
}

// failStatus parks a server in error state after a runtime failure. Runs on
// a detached context; the caller returns the original error.
func (s *ServerService) failStatus(ctx context.Context, id, message string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.db.Exec(ctx, `UPDATE servers SET status = $1, updated_at = now() WHERE id = $2`, model.StatusError, id); err != nil {
		s.logger.Error().Err(err).Str("server_id", id).Msg("record error status failed")
	}
	s.broadcastStatus(id, model.StatusError)
	s.hub.Publish(id, model.ChannelDefault, model.Event{
		Type:     model.EventError,
		ServerID: id,
		Message:  message,
	})
}

func (s *ServerService) broadcastStatus(id, status string) {
	s.hub.Publish(id, model.ChannelDefault, model.Event{
		Type:     model.EventStatusUpdate,
		ServerID: id,
		Status:   status,
	})
}
