package core

import (
	"github.com/rs/zerolog"

	"github.com/edvin/wafgate/internal/keymutex"
)

type Services struct {
	Rule   *RuleService
	Domain *DomainService
	Log    *LogService
	APIKey *APIKeyService
}

func NewServices(db DB, engine Engine, logger zerolog.Logger) *Services {
	// One keyed mutex shared by rule and domain mutations: both flows edit the
	// same tenant's artifact set and must serialize against each other.
	mutex := keymutex.New()

	return &Services{
		Rule:   NewRuleService(db, engine, mutex, logger),
		Domain: NewDomainService(db, engine, mutex, logger),
		Log:    NewLogService(db, logger),
		APIKey: NewAPIKeyService(db),
	}
}
