package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string

	// DockerHost overrides the runtime endpoint; empty means the SDK's
	// environment defaults (DOCKER_HOST et al.) apply.
	DockerHost    string
	DockerNetwork string
	ServerImage   string

	// ConnectHost is the address RCON and query clients dial together with
	// an instance's published host ports.
	ConnectHost string

	GamePortStart  int
	GamePortEnd    int
	RconPortStart  int
	RconPortEnd    int
	QueryPortStart int
	QueryPortEnd   int

	MaxServers      int
	DefaultMemoryMB int

	RconTimeoutSeconds       int
	QueryTimeoutSeconds      int
	ReconcileIntervalSeconds int

	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3BackupBucket string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		DockerHost:    getEnv("DOCKER_HOST", ""),
		DockerNetwork: getEnv("DOCKER_NETWORK", "craftyard"),
		ServerImage:   getEnv("SERVER_IMAGE", "itzg/minecraft-server:latest"),

		ConnectHost: getEnv("CONNECT_HOST", "127.0.0.1"),

		GamePortStart:  getEnvInt("GAME_PORT_START", 25565),
		GamePortEnd:    getEnvInt("GAME_PORT_END", 25664),
		RconPortStart:  getEnvInt("RCON_PORT_START", 35565),
		RconPortEnd:    getEnvInt("RCON_PORT_END", 35664),
		QueryPortStart: getEnvInt("QUERY_PORT_START", 45565),
		QueryPortEnd:   getEnvInt("QUERY_PORT_END", 45664),

		MaxServers:      getEnvInt("MAX_SERVERS", 10),
		DefaultMemoryMB: getEnvInt("DEFAULT_MEMORY_MB", 2048),

		RconTimeoutSeconds:       getEnvInt("RCON_TIMEOUT_SECONDS", 5),
		QueryTimeoutSeconds:      getEnvInt("QUERY_TIMEOUT_SECONDS", 5),
		ReconcileIntervalSeconds: getEnvInt("RECONCILE_INTERVAL_SECONDS", 30),

		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3BackupBucket: getEnv("S3_BACKUP_BUCKET", "craftyard-backups"),
	}

	return cfg, nil
}

// Validate checks that required settings are present and the port ranges can
// actually host the configured fleet.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.HTTPListenAddr == "" {
		missing = append(missing, "HTTP_LISTEN_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.MaxServers <= 0 {
		return fmt.Errorf("MAX_SERVERS must be positive, got %d", c.MaxServers)
	}

	ranges := []struct {
		name       string
		start, end int
	}{
		{"game", c.GamePortStart, c.GamePortEnd},
		{"rcon", c.RconPortStart, c.RconPortEnd},
		{"query", c.QueryPortStart, c.QueryPortEnd},
	}
	for _, r := range ranges {
		if r.start <= 0 || r.start > r.end || r.end > 65535 {
			return fmt.Errorf("invalid %s port range %d-%d", r.name, r.start, r.end)
		}
		if r.end-r.start+1 < c.MaxServers {
			return fmt.Errorf("%s port range %d-%d holds fewer ports than MAX_SERVERS=%d", r.name, r.start, r.end, c.MaxServers)
		}
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].start <= ranges[j].end && ranges[j].start <= ranges[i].end {
				return fmt.Errorf("%s and %s port ranges overlap", ranges[i].name, ranges[j].name)
			}
		}
	}

	// Partial object store settings are a misconfiguration; all or nothing.
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3BackupBucket == "") {
		return fmt.Errorf("S3_ENDPOINT is set but S3_ACCESS_KEY, S3_SECRET_KEY or S3_BACKUP_BUCKET is missing")
	}

	return nil
}

// BackupsEnabled reports whether an object store is configured.
func (c *Config) BackupsEnabled() bool {
	return c.S3Endpoint != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
