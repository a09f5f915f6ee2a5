package model

import "time"

const (
	DomainStatusPending  = "pending"
	DomainStatusEnabled  = "enabled"
	DomainStatusDisabled = "disabled"
)

// Domain is a tenant's routed domain. Each tenant owns at most one, and the
// domain name is unique across all tenants.
type Domain struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Domain    string    `json:"domain" db:"domain"`
	OriginIP  string    `json:"origin_ip" db:"origin_ip"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
