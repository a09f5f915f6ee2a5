package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/wafgate/internal/model"
	"github.com/edvin/wafgate/internal/platform"
)

// APIKeyService manages tenant API keys.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// Create generates a new API key for the tenant, stores the hash, and returns
// the model along with the raw key string. The raw key must be shown to the
// caller exactly once.
func (s *APIKeyService) Create(ctx context.Context, tenantID, name string) (*model.APIKey, string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := "wg_" + hex.EncodeToString(rawBytes)

	return s.createWithKey(ctx, tenantID, name, rawKey)
}

// CreateWithRawKey stores an API key with a caller-provided raw key value.
// Used for well-known dev/test keys where the raw value must be deterministic.
func (s *APIKeyService) CreateWithRawKey(ctx context.Context, tenantID, name, rawKey string) (*model.APIKey, error) {
	key, _, err := s.createWithKey(ctx, tenantID, name, rawKey)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *APIKeyService) createWithKey(ctx context.Context, tenantID, name, rawKey string) (*model.APIKey, string, error) {
	id := platform.NewID()

	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, created_at) VALUES ($1, $2, $3, $4, now())`,
		id, tenantID, name, keyHash,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}

	key := &model.APIKey{
		ID:       id,
		TenantID: tenantID,
		Name:     name,
		KeyHash:  keyHash,
	}
	err = s.db.QueryRow(ctx, "SELECT created_at FROM api_keys WHERE id = $1", id).Scan(&key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("get api key created_at: %w", err)
	}

	return key, rawKey, nil
}

// TenantForKey resolves a raw key to its tenant. Revoked or unknown keys
// return NotFoundError.
func (s *APIKeyService) TenantForKey(ctx context.Context, rawKey string) (string, error) {
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	var tenantID string
	err := s.db.QueryRow(ctx,
		"SELECT tenant_id FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", keyHash,
	).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &NotFoundError{Resource: "api key"}
	}
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	return tenantID, nil
}

// List retrieves the tenant's API keys, newest first.
func (s *APIKeyService) List(ctx context.Context, tenantID string) ([]model.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, created_at, revoked_at FROM api_keys
		 WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes an API key by setting revoked_at.
func (s *APIKeyService) Revoke(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL",
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "api key"}
	}
	return nil
}
