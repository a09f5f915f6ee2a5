package nginx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/wafgate/internal/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := Config{
		ServerConfigDir:  filepath.Join(tmpDir, "nginx-configs"),
		RulesDir:         filepath.Join(tmpDir, "modsecurity-rules"),
		RulesIncludePath: "/etc/modsecurity.d/owasp-crs/rules/users",
	}
	return NewManager(zerolog.Nop(), cfg)
}

func testDomain() *model.Domain {
	return &model.Domain{
		ID:       "dom-1",
		TenantID: "7",
		Domain:   "shop.example.com",
		OriginIP: "192.0.2.10",
		Status:   model.DomainStatusPending,
	}
}

func TestGenerateServerConfig(t *testing.T) {
	mgr := newTestManager(t)
	config := mgr.GenerateServerConfig(testDomain())

	assert.Contains(t, config, "server_name shop.example.com")
	assert.Contains(t, config, "proxy_pass http://192.0.2.10")
	assert.Contains(t, config, "modsecurity on")
	assert.Contains(t, config, "modsecurity_rules_file /etc/modsecurity.d/owasp-crs/rules/users/customer-7-rules.conf")
	assert.Contains(t, config, "listen 8080")
	assert.Contains(t, config, "location /waf-health")
	assert.Contains(t, config, `add_header X-Frame-Options "SAMEORIGIN" always`)
}

func TestGenerateRulesFile(t *testing.T) {
	mgr := newTestManager(t)
	out := mgr.GenerateRulesFile([]string{
		`SecRule A "id:1207000,deny"`,
		`SecRule B "id:1207001,deny"`,
	})
	assert.Equal(t, "SecRule A \"id:1207000,deny\"\n\nSecRule B \"id:1207001,deny\"\n", out)
}

func TestDefaultRulesFile(t *testing.T) {
	mgr := newTestManager(t)
	out := mgr.DefaultRulesFile("7")
	assert.Contains(t, out, "SecRuleEngine On")
	assert.Contains(t, out, "tenant 7")
}

func TestWriteServerConfig_CreatesFile(t *testing.T) {
	mgr := newTestManager(t)
	d := testDomain()

	require.NoError(t, mgr.WriteServerConfig(d))

	data, err := os.ReadFile(mgr.serverConfigPath(d.TenantID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "server_name shop.example.com")
}

func TestWriteRulesFile_BackupAndRestore(t *testing.T) {
	mgr := newTestManager(t)

	require.NoError(t, mgr.WriteRulesFile("7", []string{`SecRule A "id:1207000,deny"`}))
	require.NoError(t, mgr.WriteRulesFile("7", []string{`SecRule B "id:1207001,deny"`}))

	data, err := os.ReadFile(mgr.rulesFilePath("7"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1207001")

	require.NoError(t, mgr.RestoreRulesFile("7"))

	data, err = os.ReadFile(mgr.rulesFilePath("7"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1207000")
	assert.NotContains(t, string(data), "1207001")
}

func TestRestore_FirstWriteRemovesArtifact(t *testing.T) {
	mgr := newTestManager(t)

	require.NoError(t, mgr.WriteRulesFile("7", []string{`SecRule A "id:1207000,deny"`}))
	require.NoError(t, mgr.RestoreRulesFile("7"))

	_, err := os.Stat(mgr.rulesFilePath("7"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestore_NothingToRestoreIsNoop(t *testing.T) {
	mgr := newTestManager(t)
	assert.NoError(t, mgr.RestoreRulesFile("7"))
	assert.NoError(t, mgr.RestoreServerConfig("7"))
}

func TestWrite_DropsStaleBackup(t *testing.T) {
	mgr := newTestManager(t)

	// First generation plus backup, then full removal.
	require.NoError(t, mgr.WriteRulesFile("7", []string{"SecRule A \"id:1207000,deny\""}))
	require.NoError(t, mgr.WriteRulesFile("7", []string{"SecRule B \"id:1207001,deny\""}))
	require.NoError(t, mgr.RemoveRulesFile("7"))

	// A fresh first write must not leave the old generation restorable.
	require.NoError(t, mgr.WriteRulesFile("7", []string{"SecRule C \"id:1207002,deny\""}))
	require.NoError(t, mgr.RestoreRulesFile("7"))

	_, err := os.Stat(mgr.rulesFilePath("7"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemove_Idempotent(t *testing.T) {
	mgr := newTestManager(t)

	require.NoError(t, mgr.WriteServerConfig(testDomain()))
	require.NoError(t, mgr.RemoveServerConfig("7"))
	require.NoError(t, mgr.RemoveServerConfig("7"))

	_, err := os.Stat(mgr.serverConfigPath("7"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateAndReload_CommandSuccess(t *testing.T) {
	mgr := newTestManager(t)
	mgr.cfg.EngineCommand = []string{"true"}

	assert.True(t, mgr.ValidateAndReload(context.Background()))
}

func TestValidateAndReload_CommandFailure(t *testing.T) {
	mgr := newTestManager(t)
	mgr.cfg.EngineCommand = []string{"false"}

	assert.False(t, mgr.ValidateAndReload(context.Background()))
}

func TestValidateAndReload_MissingEngineIsInvalid(t *testing.T) {
	mgr := newTestManager(t)
	mgr.cfg.EngineCommand = []string{"definitely-not-a-binary-xyz"}
	mgr.cfg.ReloadTimeout = time.Second

	assert.False(t, mgr.ValidateAndReload(context.Background()))
}
