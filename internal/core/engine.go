package core

import (
	"context"

	"github.com/edvin/wafgate/internal/model"
)

// Engine is the contract to the external reverse-proxy/detection engine:
// artifact materialization plus the validate-then-reload call. Implemented by
// nginx.Manager. Services are the only callers of ValidateAndReload, keeping
// the engine's process-global reload serialized behind the per-tenant mutex
// and the manager's own reload lock.
type Engine interface {
	WriteServerConfig(d *model.Domain) error
	WriteRulesFile(tenantID string, contents []string) error
	WriteDefaultRulesFile(tenantID string) error
	RestoreServerConfig(tenantID string) error
	RestoreRulesFile(tenantID string) error
	RemoveServerConfig(tenantID string) error
	RemoveRulesFile(tenantID string) error
	ValidateAndReload(ctx context.Context) bool
}
