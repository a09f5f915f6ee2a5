package model

import "time"

const (
	RuleTypeCustom = "custom"
	RuleTypeSystem = "system"
)

// Rule is a tenant-owned ModSecurity directive. Content always carries a
// numeric id inside the tenant's reserved block after a successful write.
type Rule struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Content     string    `json:"content" db:"content"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	RuleType    string    `json:"rule_type" db:"rule_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
