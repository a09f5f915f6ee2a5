package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyService_Create(t *testing.T) {
	db := &mockDB{}
	svc := NewAPIKeyService(db)
	ctx := context.Background()

	now := time.Now()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(&mockRow{
		scanFunc: func(dest ...any) error {
			*(dest[0].(*time.Time)) = now
			return nil
		},
	})

	key, rawKey, err := svc.Create(ctx, "tenant-1", "ci key")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawKey, "wg_"))
	assert.Len(t, rawKey, 3+64)

	hash := sha256.Sum256([]byte(rawKey))
	assert.Equal(t, hex.EncodeToString(hash[:]), key.KeyHash)
	assert.Equal(t, "tenant-1", key.TenantID)
	assert.Equal(t, now, key.CreatedAt)
	db.AssertExpectations(t)
}

func TestAPIKeyService_TenantForKey(t *testing.T) {
	db := &mockDB{}
	svc := NewAPIKeyService(db)
	ctx := context.Background()

	rawKey := "wg_deadbeef"
	hash := sha256.Sum256([]byte(rawKey))
	expectedHash := hex.EncodeToString(hash[:])

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{expectedHash}).Return(&mockRow{
		scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = "tenant-1"
			return nil
		},
	})

	tenantID, err := svc.TenantForKey(ctx, rawKey)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
	db.AssertExpectations(t)
}

func TestAPIKeyService_TenantForKey_UnknownKey(t *testing.T) {
	db := &mockDB{}
	svc := NewAPIKeyService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(&mockRow{
		scanFunc: func(dest ...any) error { return pgx.ErrNoRows },
	})

	_, err := svc.TenantForKey(ctx, "wg_bogus")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestAPIKeyService_List(t *testing.T) {
	db := &mockDB{}
	svc := NewAPIKeyService(db)
	ctx := context.Background()

	now := time.Now()
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "key-1"
		*(dest[1].(*string)) = "tenant-1"
		*(dest[2].(*string)) = "ci key"
		*(dest[3].(*time.Time)) = now
		*(dest[4].(**time.Time)) = nil
		return nil
	}), nil)

	keys, err := svc.List(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ci key", keys[0].Name)
	assert.Nil(t, keys[0].RevokedAt)
}

func TestAPIKeyService_Revoke(t *testing.T) {
	db := &mockDB{}
	svc := NewAPIKeyService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.Revoke(ctx, "tenant-1", "key-1")
	require.NoError(t, err)
}

func TestAPIKeyService_Revoke_AlreadyRevoked(t *testing.T) {
	db := &mockDB{}
	svc := NewAPIKeyService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := svc.Revoke(ctx, "tenant-1", "key-1")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
