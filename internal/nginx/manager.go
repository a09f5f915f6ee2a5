// Package nginx renders and persists the per-tenant configuration artifacts
// consumed by the nginx + ModSecurity edge, and drives its validate-then-reload
// contract. Artifact writes keep a one-deep backup so a failed reload can be
// reverted synchronously.
package nginx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/wafgate/internal/model"
)

// Config holds the filesystem layout and engine invocation settings.
type Config struct {
	// ServerConfigDir receives per-tenant server block files (waf.<tenant>.conf).
	ServerConfigDir string
	// RulesDir receives per-tenant ModSecurity rule files (customer-<tenant>-rules.conf).
	RulesDir string
	// RulesIncludePath is the directory the engine container mounts RulesDir at,
	// referenced from generated server blocks.
	RulesIncludePath string
	// ListenPort for generated server blocks.
	ListenPort string
	// EngineCommand is the command prefix that reaches the engine process,
	// e.g. ["docker", "exec", "waf-nginx"].
	EngineCommand []string
	// ReloadTimeout bounds one validate-then-reload round trip. The engine call
	// happens while a tenant's mutex is held, so it must not run unbounded.
	ReloadTimeout time.Duration
}

// Manager materializes artifacts and talks to the engine. Reload is
// process-global on the engine side, so all validate-then-reload calls are
// serialized through one lock regardless of tenant.
type Manager struct {
	logger   zerolog.Logger
	cfg      Config
	reloadMu sync.Mutex
}

func NewManager(logger zerolog.Logger, cfg Config) *Manager {
	if cfg.ListenPort == "" {
		cfg.ListenPort = "8080"
	}
	if len(cfg.EngineCommand) == 0 {
		cfg.EngineCommand = []string{"docker", "exec", "waf-nginx"}
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = 30 * time.Second
	}
	return &Manager{
		logger: logger.With().Str("component", "nginx-manager").Logger(),
		cfg:    cfg,
	}
}

var serverConfigTmpl = template.Must(template.New("server").Parse(`# WAF configuration for tenant {{.TenantID}}
# Domain: {{.Domain}}

server {
    listen {{.ListenPort}};
    listen [::]:{{.ListenPort}};

    server_name {{.Domain}};

    modsecurity on;
    modsecurity_rules_file {{.RulesFile}};

    add_header X-Frame-Options "SAMEORIGIN" always;
    add_header X-Content-Type-Options "nosniff" always;
    add_header Referrer-Policy "strict-origin-when-cross-origin" always;

    location / {
        proxy_pass http://{{.OriginIP}};

        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header X-Forwarded-Host $host;
        proxy_set_header X-Forwarded-Port $server_port;

        proxy_connect_timeout 60s;
        proxy_send_timeout 60s;
        proxy_read_timeout 60s;

        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }

    location /waf-health {
        access_log off;
        return 200 "OK";
        add_header Content-Type text/plain;
    }
}
`))

// GenerateServerConfig renders the routing artifact for a tenant's domain.
func (m *Manager) GenerateServerConfig(d *model.Domain) string {
	var buf bytes.Buffer
	_ = serverConfigTmpl.Execute(&buf, map[string]string{
		"TenantID":   d.TenantID,
		"Domain":     d.Domain,
		"OriginIP":   d.OriginIP,
		"ListenPort": m.cfg.ListenPort,
		"RulesFile":  filepath.Join(m.cfg.RulesIncludePath, rulesFileName(d.TenantID)),
	})
	return buf.String()
}

// GenerateRulesFile concatenates active directive contents, blank-line
// separated, in the caller-supplied (creation time ascending) order.
func (m *Manager) GenerateRulesFile(contents []string) string {
	return strings.Join(contents, "\n\n") + "\n"
}

// DefaultRulesFile is written when a tenant's domain is provisioned, before
// any custom rules exist, so the server block's include never dangles.
func (m *Manager) DefaultRulesFile(tenantID string) string {
	return fmt.Sprintf(`# ModSecurity custom rules for tenant %s

SecRuleEngine On

# Custom rules are appended below by the control plane.
`, tenantID)
}

func serverConfigName(tenantID string) string { return fmt.Sprintf("waf.%s.conf", tenantID) }
func rulesFileName(tenantID string) string    { return fmt.Sprintf("customer-%s-rules.conf", tenantID) }

func (m *Manager) serverConfigPath(tenantID string) string {
	return filepath.Join(m.cfg.ServerConfigDir, serverConfigName(tenantID))
}

func (m *Manager) rulesFilePath(tenantID string) string {
	return filepath.Join(m.cfg.RulesDir, rulesFileName(tenantID))
}

// WriteServerConfig renders and persists the routing artifact, snapshotting
// the previous version first.
func (m *Manager) WriteServerConfig(d *model.Domain) error {
	if err := writeWithBackup(m.serverConfigPath(d.TenantID), m.GenerateServerConfig(d)); err != nil {
		return fmt.Errorf("write server config for tenant %s: %w", d.TenantID, err)
	}
	m.logger.Info().Str("tenant", d.TenantID).Str("domain", d.Domain).Msg("wrote server config")
	return nil
}

// WriteRulesFile persists the tenant's rule artifact from the given active
// directive contents, snapshotting the previous version first.
func (m *Manager) WriteRulesFile(tenantID string, contents []string) error {
	if err := writeWithBackup(m.rulesFilePath(tenantID), m.GenerateRulesFile(contents)); err != nil {
		return fmt.Errorf("write rules file for tenant %s: %w", tenantID, err)
	}
	m.logger.Info().Str("tenant", tenantID).Int("rules", len(contents)).Msg("wrote rules file")
	return nil
}

// WriteDefaultRulesFile persists the provisioning-time rule artifact.
func (m *Manager) WriteDefaultRulesFile(tenantID string) error {
	if err := writeWithBackup(m.rulesFilePath(tenantID), m.DefaultRulesFile(tenantID)); err != nil {
		return fmt.Errorf("write default rules file for tenant %s: %w", tenantID, err)
	}
	return nil
}

// RestoreServerConfig reverts the routing artifact to its pre-write version.
func (m *Manager) RestoreServerConfig(tenantID string) error {
	if err := restoreBackup(m.serverConfigPath(tenantID)); err != nil {
		return fmt.Errorf("restore server config for tenant %s: %w", tenantID, err)
	}
	return nil
}

// RestoreRulesFile reverts the rule artifact to its pre-write version.
func (m *Manager) RestoreRulesFile(tenantID string) error {
	if err := restoreBackup(m.rulesFilePath(tenantID)); err != nil {
		return fmt.Errorf("restore rules file for tenant %s: %w", tenantID, err)
	}
	return nil
}

// RemoveServerConfig deletes the routing artifact. Absence is not an error.
func (m *Manager) RemoveServerConfig(tenantID string) error {
	if err := removeArtifact(m.serverConfigPath(tenantID)); err != nil {
		return fmt.Errorf("remove server config for tenant %s: %w", tenantID, err)
	}
	return nil
}

// RemoveRulesFile deletes the rule artifact. Absence is not an error.
func (m *Manager) RemoveRulesFile(tenantID string) error {
	if err := removeArtifact(m.rulesFilePath(tenantID)); err != nil {
		return fmt.Errorf("remove rules file for tenant %s: %w", tenantID, err)
	}
	return nil
}

// writeWithBackup snapshots the current artifact (when one exists) right
// before overwriting it. When no previous version exists any stale backup is
// dropped, so a later restore removes the file instead of resurrecting an
// older generation.
func writeWithBackup(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	current, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := os.WriteFile(path+".bak", current, 0o644); err != nil {
			return fmt.Errorf("snapshot previous version: %w", err)
		}
	case os.IsNotExist(err):
		if err := os.Remove(path + ".bak"); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("drop stale backup: %w", err)
		}
	default:
		return err
	}

	return os.WriteFile(path, []byte(content), 0o644)
}

// restoreBackup reverts path to its backup. With no backup present the write
// being reverted was the first one, so the artifact is removed entirely.
func restoreBackup(path string) error {
	backup, err := os.ReadFile(path + ".bak")
	if os.IsNotExist(err) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, backup, 0o644)
}

func removeArtifact(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(path + ".bak"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ValidateAndReload asks the engine to check the full configuration set and,
// only when valid, apply it. The engine's reload spans every tenant's
// artifacts, so calls are serialized process-wide. Engine transport failures
// count as invalid: the caller cannot tell them apart and must roll back
// either way.
func (m *Manager) ValidateAndReload(ctx context.Context) bool {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReloadTimeout)
	defer cancel()

	if out, err := m.execEngine(ctx, "nginx", "-t"); err != nil {
		m.logger.Error().Err(err).Str("output", out).Msg("nginx config validation failed")
		return false
	}

	if out, err := m.execEngine(ctx, "nginx", "-s", "reload"); err != nil {
		m.logger.Error().Err(err).Str("output", out).Msg("nginx reload failed")
		return false
	}

	m.logger.Info().Msg("nginx validated and reloaded")
	return true
}

func (m *Manager) execEngine(ctx context.Context, args ...string) (string, error) {
	full := append(append([]string(nil), m.cfg.EngineCommand...), args...)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w", strings.Join(full, " "), err)
	}
	return string(out), nil
}
