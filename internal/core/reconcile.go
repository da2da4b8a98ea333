package core

import (
	"context"
	"fmt"
	mathrand "math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/hub"
	"github.com/craftyard/craftyard/internal/model"
)

var (
	reconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craftyard_reconcile_runs_total",
		Help: "Completed reconcile sweeps",
	})
	reconcileDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craftyard_reconcile_drift_total",
		Help: "Status corrections applied, by transition",
	}, []string{"transition"})
)

// Reconciler periodically compares recorded server status against observed
// container state and repairs drift: a crashed container flips its record
// to stopped, an externally started one flips it to running. Transitional
// statuses are left alone; the operation owning them will settle the record.
type Reconciler struct {
	db       DB
	engine   deployer.Engine
	hub      *hub.Hub
	logger   zerolog.Logger
	interval time.Duration
	locks    *instanceLocks
}

func NewReconciler(db DB, engine deployer.Engine, h *hub.Hub, servers *ServerService, logger zerolog.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		db:       db,
		engine:   engine,
		hub:      h,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		interval: interval,
		locks:    servers.locks,
	}
}

// Run blocks until ctx is cancelled. A random initial delay keeps restarts
// of several processes from sweeping in lockstep.
func (r *Reconciler) Run(ctx context.Context) {
	jitter := time.Duration(mathrand.Int64N(int64(r.interval)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.reconcileOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("reconcile sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, container_id, status FROM servers WHERE container_id IS NOT NULL AND status = ANY($1)`,
		[]string{model.StatusRunning, model.StatusStopped, model.StatusError},
	)
	if err != nil {
		return fmt.Errorf("list servers for reconcile: %w", err)
	}

	type item struct {
		id          string
		containerID string
		status      string
	}
	var items []item
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.id, &it.containerID, &it.status); err != nil {
			rows.Close()
			return fmt.Errorf("scan server: %w", err)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate servers: %w", err)
	}

	for _, it := range items {
		r.reconcileServer(ctx, it.id, it.containerID, it.status)
	}
	reconcileRuns.Inc()
	return nil
}

func (r *Reconciler) reconcileServer(ctx context.Context, id, containerID, recorded string) {
	unlock := r.locks.Lock(id)
	defer unlock()

	status, err := r.engine.InspectContainer(ctx, containerID)
	if err != nil {
		if deployer.IsNotFound(err) {
			r.applyDrift(ctx, id, recorded, model.StatusError, "container missing")
		} else {
			r.logger.Warn().Err(err).Str("server_id", id).Msg("inspect container failed")
		}
		return
	}

	switch {
	case status.Running && recorded != model.StatusRunning:
		r.applyDrift(ctx, id, recorded, model.StatusRunning, "container running")
	case !status.Running && recorded == model.StatusRunning:
		r.applyDrift(ctx, id, recorded, model.StatusStopped, "container "+status.State)
	}
}

func (r *Reconciler) applyDrift(ctx context.Context, id, from, to, reason string) {
	if from == to {
		return
	}

	var err error
	switch to {
	case model.StatusRunning:
		_, err = r.db.Exec(ctx,
			`UPDATE servers SET status = $1, has_been_started = TRUE, last_started_at = now(), updated_at = now() WHERE id = $2`,
			to, id,
		)
	case model.StatusStopped:
		_, err = r.db.Exec(ctx,
			`UPDATE servers SET status = $1, last_stopped_at = now(), updated_at = now() WHERE id = $2`,
			to, id,
		)
	default:
		_, err = r.db.Exec(ctx,
			`UPDATE servers SET status = $1, updated_at = now() WHERE id = $2`,
			to, id,
		)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("server_id", id).Msg("apply drift correction failed")
		return
	}

	reconcileDrift.WithLabelValues(from + "->" + to).Inc()
	r.logger.Info().
		Str("server_id", id).
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Msg("corrected status drift")
	r.hub.Publish(id, model.ChannelDefault, model.Event{
		Type:     model.EventStatusUpdate,
		ServerID: id,
		Status:   to,
	})
}
