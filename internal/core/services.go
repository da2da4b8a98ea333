package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/hub"
)

// Services bundles the domain services so wiring stays in one place.
type Services struct {
	Server     *ServerService
	Console    *ConsoleService
	Permission *PermissionService
	User       *UserService
	APIKey     *APIKeyService
	Backup     *BackupService
	Reconciler *Reconciler
}

// NewServices wires the services against one database, one container
// runtime and one broadcast hub. store may be nil when the deployment has
// no object storage; backups then report unavailable.
func NewServices(db DB, engine deployer.Engine, h *hub.Hub, store BackupStore, cfg config.Config, logger zerolog.Logger) *Services {
	servers := NewServerService(db, engine, h, cfg, logger)
	return &Services{
		Server:     servers,
		Console:    NewConsoleService(db, cfg, logger),
		Permission: NewPermissionService(db),
		User:       NewUserService(db),
		APIKey:     NewAPIKeyService(db),
		Backup:     NewBackupService(db, engine, store, logger),
		Reconciler: NewReconciler(db, engine, h, servers, logger, time.Duration(cfg.ReconcileIntervalSeconds)*time.Second),
	}
}
