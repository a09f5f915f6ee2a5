package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/wafgate/internal/keymutex"
	"github.com/edvin/wafgate/internal/metrics"
	"github.com/edvin/wafgate/internal/model"
	"github.com/edvin/wafgate/internal/platform"
)

// DomainService manages the tenant's single routed domain and its routing
// artifact, sharing the per-tenant mutex with rule mutations.
type DomainService struct {
	db     DB
	engine Engine
	mutex  *keymutex.KeyMutex
	logger zerolog.Logger
}

func NewDomainService(db DB, engine Engine, mutex *keymutex.KeyMutex, logger zerolog.Logger) *DomainService {
	return &DomainService{
		db:     db,
		engine: engine,
		mutex:  mutex,
		logger: logger.With().Str("service", "domain").Logger(),
	}
}

// UpdateDomainParams carries a validated update request; nil fields are left
// untouched.
type UpdateDomainParams struct {
	OriginIP *string
	Status   *string
}

// Create registers the tenant's domain, provisions a default rule artifact
// plus the routing artifact, and enables the domain once the engine accepts
// the configuration. Any failure tears the whole provisioning down: the row
// is rolled back and both artifacts are removed.
func (s *DomainService) Create(ctx context.Context, tenantID, domainName, originIP string) (*model.Domain, error) {
	release, err := s.mutex.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("acquire tenant mutex: %w", err)
	}
	defer release()

	var count int
	if err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM domains WHERE tenant_id = $1", tenantID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("count tenant domains: %w", err)
	}
	if count >= 1 {
		return nil, &ConflictError{Reason: "each tenant can register only one domain"}
	}

	var existingID string
	err = s.db.QueryRow(ctx,
		"SELECT id FROM domains WHERE domain = $1", domainName,
	).Scan(&existingID)
	if err == nil {
		return nil, &ConflictError{Reason: "domain already registered"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check domain uniqueness: %w", err)
	}

	now := time.Now()
	domain := &model.Domain{
		ID:        platform.NewID(),
		TenantID:  tenantID,
		Domain:    domainName,
		OriginIP:  originIP,
		Status:    model.DomainStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	teardown := func(cause error) error {
		var cleanup *multierror.Error
		if err := s.engine.RemoveServerConfig(tenantID); err != nil {
			cleanup = multierror.Append(cleanup, err)
		}
		if err := s.engine.RemoveRulesFile(tenantID); err != nil {
			cleanup = multierror.Append(cleanup, err)
		}
		if err := cleanup.ErrorOrNil(); err != nil {
			s.logger.Error().Err(err).AnErr("cause", cause).
				Str("tenant", tenantID).Msg("artifact teardown failed after domain provisioning error")
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error().Err(rbErr).Str("tenant", tenantID).Msg("transaction rollback failed")
		}
		return cause
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO domains (id, tenant_id, domain, origin_ip, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		domain.ID, domain.TenantID, domain.Domain, domain.OriginIP, domain.Status,
		domain.CreatedAt, domain.UpdatedAt,
	)
	if err != nil {
		return nil, teardown(fmt.Errorf("insert domain: %w", err))
	}

	// The server block references the tenant's rules file, so the rules file
	// must exist before the engine validates the routing artifact.
	if err := s.engine.WriteDefaultRulesFile(tenantID); err != nil {
		return nil, teardown(&ConfigurationError{Cause: err})
	}
	if err := s.engine.WriteServerConfig(domain); err != nil {
		return nil, teardown(&ConfigurationError{Cause: err})
	}

	if !s.engine.ValidateAndReload(ctx) {
		metrics.ConfigSyncs.WithLabelValues("domain", "rejected").Inc()
		return nil, teardown(&ConfigurationError{Cause: errors.New("engine rejected the domain configuration")})
	}

	domain.Status = model.DomainStatusEnabled
	domain.UpdatedAt = time.Now()
	_, err = tx.Exec(ctx,
		"UPDATE domains SET status = $1, updated_at = $2 WHERE id = $3",
		domain.Status, domain.UpdatedAt, domain.ID,
	)
	if err != nil {
		return nil, teardown(fmt.Errorf("enable domain: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, teardown(fmt.Errorf("commit transaction: %w", err))
	}
	metrics.ConfigSyncs.WithLabelValues("domain", "applied").Inc()
	return domain, nil
}

func (s *DomainService) List(ctx context.Context, tenantID string) ([]model.Domain, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, domain, origin_ip, status, created_at, updated_at
		 FROM domains WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list domains for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var domains []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Domain, &d.OriginIP, &d.Status,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return domains, nil
}

func (s *DomainService) GetByID(ctx context.Context, tenantID, id string) (*model.Domain, error) {
	var d model.Domain
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, domain, origin_ip, status, created_at, updated_at
		 FROM domains WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&d.ID, &d.TenantID, &d.Domain, &d.OriginIP, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "domain"}
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", id, err)
	}
	return &d, nil
}

// Update changes origin IP and/or status. Only an origin IP change touches
// the routing artifact; when the engine rejects it, the previous artifact is
// regenerated from the unchanged entity and a compensating reload runs
// best-effort before the error surfaces.
func (s *DomainService) Update(ctx context.Context, tenantID, id string, params UpdateDomainParams) (*model.Domain, error) {
	release, err := s.mutex.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("acquire tenant mutex: %w", err)
	}
	defer release()

	domain, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	previous := *domain

	if params.OriginIP != nil {
		domain.OriginIP = *params.OriginIP
	}
	if params.Status != nil {
		domain.Status = *params.Status
	}

	originChanged := domain.OriginIP != previous.OriginIP
	if originChanged {
		domain.Status = model.DomainStatusEnabled
	}
	domain.UpdatedAt = time.Now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	fail := func(cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error().Err(rbErr).Str("tenant", tenantID).Msg("transaction rollback failed")
		}
		return cause
	}

	_, err = tx.Exec(ctx,
		`UPDATE domains SET origin_ip = $1, status = $2, updated_at = $3 WHERE id = $4 AND tenant_id = $5`,
		domain.OriginIP, domain.Status, domain.UpdatedAt, domain.ID, domain.TenantID,
	)
	if err != nil {
		return nil, fail(fmt.Errorf("update domain: %w", err))
	}

	if originChanged {
		if err := s.engine.WriteServerConfig(domain); err != nil {
			return nil, fail(&ConfigurationError{Cause: err})
		}
		if !s.engine.ValidateAndReload(ctx) {
			// Compensate: regenerate the previous routing artifact and try to
			// bring the engine back to the pre-update configuration. Failures
			// here are logged only; the caller sees the original rejection.
			if compErr := s.engine.WriteServerConfig(&previous); compErr != nil {
				s.logger.Error().Err(compErr).Str("tenant", tenantID).
					Msg("compensating server config write failed")
			} else if !s.engine.ValidateAndReload(ctx) {
				s.logger.Error().Str("tenant", tenantID).
					Msg("compensating reload failed; engine may be running a stale configuration")
			}
			return nil, fail(&ConfigurationError{Cause: errors.New("engine rejected the updated domain configuration")})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fail(fmt.Errorf("commit transaction: %w", err))
	}
	return domain, nil
}

// Delete removes the domain row and both tenant artifacts, then reloads the
// engine best-effort so the edge stops serving the domain.
func (s *DomainService) Delete(ctx context.Context, tenantID, id string) error {
	release, err := s.mutex.Acquire(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("acquire tenant mutex: %w", err)
	}
	defer release()

	if _, err := s.GetByID(ctx, tenantID, id); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	fail := func(cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error().Err(rbErr).Str("tenant", tenantID).Msg("transaction rollback failed")
		}
		return cause
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM domains WHERE id = $1 AND tenant_id = $2", id, tenantID,
	); err != nil {
		return fail(fmt.Errorf("delete domain: %w", err))
	}

	if err := s.engine.RemoveServerConfig(tenantID); err != nil {
		return fail(&ConfigurationError{Cause: err})
	}
	if err := s.engine.RemoveRulesFile(tenantID); err != nil {
		return fail(&ConfigurationError{Cause: err})
	}

	if !s.engine.ValidateAndReload(ctx) {
		s.logger.Warn().Str("tenant", tenantID).
			Msg("reload after domain removal failed; engine keeps the previous configuration until the next reload")
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Status reports the domain's lifecycle state with a human-readable message.
func (s *DomainService) Status(ctx context.Context, tenantID, id string) (string, string, error) {
	domain, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return "", "", err
	}

	var message string
	switch domain.Status {
	case model.DomainStatusEnabled:
		message = "Domain is active and receiving traffic"
	case model.DomainStatusPending:
		message = "Domain configuration is being processed"
	case model.DomainStatusDisabled:
		message = "Domain is disabled and not receiving traffic"
	}
	return domain.Status, message, nil
}
