package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/model"
	"github.com/craftyard/craftyard/internal/rcon"
)

// rconSession is the slice of the RCON client the console service uses.
type rconSession interface {
	Execute(ctx context.Context, command string) (string, error)
	OnlinePlayers(ctx context.Context) (model.PlayerList, error)
	Say(ctx context.Context, message string) error
	StopServer(ctx context.Context) error
	Close() error
}

// ConsoleService proxies operator commands to a server's RCON port. Every
// call dials a fresh session; RCON sessions are cheap and the server drops
// idle ones anyway.
type ConsoleService struct {
	db     DB
	cfg    config.Config
	logger zerolog.Logger

	// dial is swapped out in tests.
	dial func(ctx context.Context, addr, password string, timeout time.Duration) (rconSession, error)
}

func NewConsoleService(db DB, cfg config.Config, logger zerolog.Logger) *ConsoleService {
	return &ConsoleService{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "console-service").Logger(),
		dial: func(ctx context.Context, addr, password string, timeout time.Duration) (rconSession, error) {
			return rcon.Dial(ctx, addr, password, timeout)
		},
	}
}

// connect looks the server up and opens an authenticated RCON session to it.
func (s *ConsoleService) connect(ctx context.Context, serverID string) (rconSession, error) {
	var name, status, password string
	var port int
	err := s.db.QueryRow(ctx,
		`SELECT name, status, rcon_port, rcon_password FROM servers WHERE id = $1`, serverID,
	).Scan(&name, &status, &port, &password)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: server %s", ErrNotFound, serverID)
		}
		return nil, fmt.Errorf("get server %s: %w", serverID, err)
	}
	if status != model.StatusRunning {
		return nil, fmt.Errorf("%w: server %s is not running", ErrConflict, name)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.ConnectHost, port)
	timeout := time.Duration(s.cfg.RconTimeoutSeconds) * time.Second
	sess, err := s.dial(ctx, addr, password, timeout)
	if err != nil {
		return nil, fmt.Errorf("rcon connect to %s: %w: %w", name, ErrProtocol, err)
	}
	return sess, nil
}

// Execute runs a raw console command and returns the server's response.
// Unlike the derived helpers below, failures here always surface.
func (s *ConsoleService) Execute(ctx context.Context, serverID, command string) (string, error) {
	sess, err := s.connect(ctx, serverID)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	out, err := sess.Execute(ctx, command)
	if err != nil {
		return "", fmt.Errorf("execute command: %w: %w", ErrProtocol, err)
	}
	return out, nil
}

// Players returns the online roster. Player lists are advisory; anything
// short of the server being unknown degrades to an empty list.
func (s *ConsoleService) Players(ctx context.Context, serverID string) (model.PlayerList, error) {
	sess, err := s.connect(ctx, serverID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.PlayerList{}, err
		}
		s.logger.Debug().Err(err).Str("server_id", serverID).Msg("player list unavailable")
		return model.PlayerList{}, nil
	}
	defer sess.Close()

	list, err := sess.OnlinePlayers(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Str("server_id", serverID).Msg("player list unavailable")
		return model.PlayerList{}, nil
	}
	return list, nil
}

// Say broadcasts a chat message to everyone online. Returns whether the
// message went out.
func (s *ConsoleService) Say(ctx context.Context, serverID, message string) (bool, error) {
	sess, err := s.connect(ctx, serverID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		s.logger.Warn().Err(err).Str("server_id", serverID).Msg("say failed")
		return false, nil
	}
	defer sess.Close()

	if err := sess.Say(ctx, message); err != nil {
		s.logger.Warn().Err(err).Str("server_id", serverID).Msg("say failed")
		return false, nil
	}
	return true, nil
}

// StopGracefully issues the in-game stop command, letting the server save
// the world and exit on its own. The container's exit is picked up by the
// status reconciler. Returns whether the command was delivered.
func (s *ConsoleService) StopGracefully(ctx context.Context, serverID string) (bool, error) {
	sess, err := s.connect(ctx, serverID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		s.logger.Warn().Err(err).Str("server_id", serverID).Msg("graceful stop failed")
		return false, nil
	}
	defer sess.Close()

	if err := sess.StopServer(ctx); err != nil {
		s.logger.Warn().Err(err).Str("server_id", serverID).Msg("graceful stop failed")
		return false, nil
	}
	return true, nil
}
