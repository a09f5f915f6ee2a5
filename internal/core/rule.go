package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/wafgate/internal/keymutex"
	"github.com/edvin/wafgate/internal/metrics"
	"github.com/edvin/wafgate/internal/model"
	"github.com/edvin/wafgate/internal/platform"
	"github.com/edvin/wafgate/internal/ruleid"
)

// RuleService owns the rule mutation pipeline: serialize per tenant, mutate
// inside a transaction, rewrite the tenant's rule artifact, ask the engine to
// validate and reload, then commit or restore-and-rollback.
type RuleService struct {
	db     DB
	engine Engine
	mutex  *keymutex.KeyMutex
	logger zerolog.Logger
}

func NewRuleService(db DB, engine Engine, mutex *keymutex.KeyMutex, logger zerolog.Logger) *RuleService {
	return &RuleService{
		db:     db,
		engine: engine,
		mutex:  mutex,
		logger: logger.With().Str("service", "rule").Logger(),
	}
}

// CreateRuleParams carries a validated create request.
type CreateRuleParams struct {
	Name        string
	Description *string
	Content     string
	IsActive    *bool
}

// UpdateRuleParams carries a validated update request; nil fields are left
// untouched.
type UpdateRuleParams struct {
	Name        *string
	Description *string
	Content     *string
	IsActive    *bool
}

func (s *RuleService) List(ctx context.Context, tenantID string) ([]model.Rule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, content, is_active, rule_type, created_at, updated_at
		 FROM rules WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rules for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &r.Content,
			&r.IsActive, &r.RuleType, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// Create allocates an id inside the tenant's block when the submitted content
// does not already carry a valid one, persists the rule, and syncs the rule
// artifact through the engine.
func (s *RuleService) Create(ctx context.Context, tenantID string, params CreateRuleParams) (*model.Rule, error) {
	content := strings.TrimSpace(params.Content)
	if !ruleid.IsDirective(content) {
		return nil, &ValidationError{Reason: "content is not a ModSecurity directive: SecRule or SecAction required"}
	}

	release, err := s.mutex.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("acquire tenant mutex: %w", err)
	}
	defer release()

	content, err = s.ensureRuleID(ctx, tenantID, content, "")
	if err != nil {
		return nil, err
	}

	isActive := true
	if params.IsActive != nil {
		isActive = *params.IsActive
	}
	now := time.Now()
	rule := &model.Rule{
		ID:          platform.NewID(),
		TenantID:    tenantID,
		Name:        params.Name,
		Description: params.Description,
		Content:     content,
		IsActive:    isActive,
		RuleType:    model.RuleTypeCustom,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.runPipeline(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO rules (id, tenant_id, name, description, content, is_active, rule_type, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rule.ID, rule.TenantID, rule.Name, rule.Description, rule.Content,
			rule.IsActive, rule.RuleType, rule.CreatedAt, rule.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Update applies the requested field changes, re-validating and re-allocating
// the embedded id when new content arrives without a usable one, then syncs
// the rule artifact.
func (s *RuleService) Update(ctx context.Context, tenantID, id string, params UpdateRuleParams) (*model.Rule, error) {
	if params.Content != nil && !ruleid.IsDirective(strings.TrimSpace(*params.Content)) {
		return nil, &ValidationError{Reason: "content is not a ModSecurity directive: SecRule or SecAction required"}
	}

	release, err := s.mutex.Acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("acquire tenant mutex: %w", err)
	}
	defer release()

	rule, err := s.getByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if params.Content != nil {
		content, err := s.ensureRuleID(ctx, tenantID, strings.TrimSpace(*params.Content), rule.ID)
		if err != nil {
			return nil, err
		}
		rule.Content = content
	}
	if params.Name != nil {
		rule.Name = *params.Name
	}
	if params.Description != nil {
		rule.Description = params.Description
	}
	if params.IsActive != nil {
		rule.IsActive = *params.IsActive
	}
	rule.UpdatedAt = time.Now()

	err = s.runPipeline(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE rules SET name = $1, description = $2, content = $3, is_active = $4, updated_at = $5
			 WHERE id = $6 AND tenant_id = $7`,
			rule.Name, rule.Description, rule.Content, rule.IsActive, rule.UpdatedAt,
			rule.ID, rule.TenantID,
		)
		if err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes the rule and syncs the artifact. Deleting an unknown rule is
// a no-op so the operation stays idempotent.
func (s *RuleService) Delete(ctx context.Context, tenantID, id string) error {
	release, err := s.mutex.Acquire(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("acquire tenant mutex: %w", err)
	}
	defer release()

	if _, err := s.getByID(ctx, tenantID, id); err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}

	return s.runPipeline(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"DELETE FROM rules WHERE id = $1 AND tenant_id = $2", id, tenantID,
		)
		if err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		return nil
	})
}

func (s *RuleService) getByID(ctx context.Context, tenantID, id string) (*model.Rule, error) {
	var r model.Rule
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, content, is_active, rule_type, created_at, updated_at
		 FROM rules WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &r.Content,
		&r.IsActive, &r.RuleType, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "rule"}
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return &r, nil
}

// ensureRuleID returns content guaranteed to carry an id inside the tenant's
// block. A valid embedded id is kept as submitted; otherwise the lowest free
// slot is allocated. excludeRuleID leaves the rule being updated out of the
// used-id scan so it can keep its own id.
func (s *RuleService) ensureRuleID(ctx context.Context, tenantID, content, excludeRuleID string) (string, error) {
	minID, maxID := ruleid.ComputeBlock(tenantID)

	if id, ok := ruleid.ExtractID(content); ok && ruleid.InBlock(id, minID, maxID) {
		return content, nil
	}

	existing, err := s.List(ctx, tenantID)
	if err != nil {
		return "", err
	}
	contents := make([]string, 0, len(existing))
	for _, r := range existing {
		if r.ID == excludeRuleID {
			continue
		}
		contents = append(contents, r.Content)
	}

	nextID, ok := ruleid.NextFreeID(contents, minID, maxID)
	if !ok {
		return "", &ResourceExhaustedError{Reason: "no free rule ids left in the tenant's block"}
	}
	return ruleid.InjectID(content, nextID), nil
}

// runPipeline executes one rule mutation end to end: transaction, entity
// mutation, artifact rewrite from the in-transaction active rule set, engine
// validation, then commit. Any failure after the artifact write restores the
// previous artifact before rolling back; restore failures are logged and
// never mask the original error.
func (s *RuleService) runPipeline(ctx context.Context, tenantID string, mutate func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	materialized := false
	fail := func(cause error) error {
		if materialized {
			if restoreErr := s.engine.RestoreRulesFile(tenantID); restoreErr != nil {
				s.logger.Error().Err(restoreErr).AnErr("cause", cause).
					Str("tenant", tenantID).Msg("rule artifact restore failed after pipeline error")
			}
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error().Err(rbErr).Str("tenant", tenantID).Msg("transaction rollback failed")
		}
		return cause
	}

	if err := mutate(tx); err != nil {
		return fail(err)
	}

	contents, err := activeRuleContents(ctx, tx, tenantID)
	if err != nil {
		return fail(err)
	}

	materialized = true
	if err := s.engine.WriteRulesFile(tenantID, contents); err != nil {
		return fail(&ConfigurationError{Cause: err})
	}

	if !s.engine.ValidateAndReload(ctx) {
		metrics.ConfigSyncs.WithLabelValues("rule", "rejected").Inc()
		return fail(&ConfigurationError{Cause: errors.New("engine rejected the rule set")})
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit transaction: %w", err))
	}
	metrics.ConfigSyncs.WithLabelValues("rule", "applied").Inc()
	return nil
}

// activeRuleContents reads the tenant's active directive contents inside the
// pipeline transaction, creation order ascending, matching the artifact's
// required layout.
func activeRuleContents(ctx context.Context, tx pgx.Tx, tenantID string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT content FROM rules WHERE tenant_id = $1 AND is_active = true ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan rule content: %w", err)
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active rules: %w", err)
	}
	return contents, nil
}
