package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/craftyard/craftyard/internal/model"
	"github.com/craftyard/craftyard/internal/platform"
)

const rawKeyPrefix = "cyd_"

// APIKeyService mints and resolves API keys. Only the sha256 hash of a key
// is ever stored.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// Issue generates a key for a user, stores the hash, and returns the model
// along with the raw key string. The raw key must be shown exactly once.
func (s *APIKeyService) Issue(ctx context.Context, userID, name string) (*model.APIKey, string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := rawKeyPrefix + hex.EncodeToString(rawBytes)

	return s.issueWithKey(ctx, userID, name, rawKey)
}

// IssueWithRawKey stores a key with a caller-provided raw value. Used for
// well-known dev keys where the raw value must be deterministic.
func (s *APIKeyService) IssueWithRawKey(ctx context.Context, userID, name, rawKey string) (*model.APIKey, error) {
	key, _, err := s.issueWithKey(ctx, userID, name, rawKey)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *APIKeyService) issueWithKey(ctx context.Context, userID, name, rawKey string) (*model.APIKey, string, error) {
	hash := sha256.Sum256([]byte(rawKey))

	key := &model.APIKey{
		ID:        platform.NewID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   hex.EncodeToString(hash[:]),
		KeyPrefix: rawKey[:min(len(rawKey), 12)],
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING created_at`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix,
	).Scan(&key.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, "", fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}

	return key, rawKey, nil
}

// Authenticate resolves a raw key to its user. Revoked and unknown keys
// fail identically.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*model.User, error) {
	hash := sha256.Sum256([]byte(rawKey))

	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT u.id, u.name, u.role, u.created_at, u.updated_at
		 FROM api_keys k
		 JOIN users u ON u.id = k.user_id
		 WHERE k.key_hash = $1 AND k.revoked_at IS NULL`,
		hex.EncodeToString(hash[:]),
	).Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invalid api key", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("authenticate api key: %w", err)
	}
	return &u, nil
}

// ListByUser retrieves a user's keys, newest first.
func (s *APIKeyService) ListByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, name, key_prefix, created_at, revoked_at
		 FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys for user %s: %w", userID, err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes a key by setting revoked_at.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: api key %s not found or already revoked", ErrNotFound, id)
	}
	return nil
}
