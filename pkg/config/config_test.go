package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airinterface/contract-safe/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ADMIN_PRINCIPAL", "")
	t.Setenv("SPONSOR_DAILY_QUOTA", "")
	t.Setenv("SPONSOR_RESET_HOURS", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "operator", cfg.AdminPrincipal)
	assert.Equal(t, "task-controller", cfg.ControllerPrincipal)
	assert.Equal(t, "NATIVE", cfg.NativeAsset)
	assert.Equal(t, int64(1_000_000), cfg.DailyQuota)
	assert.Equal(t, 24*time.Hour, cfg.QuotaResetPeriod)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_PRINCIPAL", "root-operator")
	t.Setenv("NATIVE_ASSET", "USDC")
	t.Setenv("SPONSOR_DAILY_QUOTA", "500")
	t.Setenv("SPONSOR_RESET_HOURS", "6")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "root-operator", cfg.AdminPrincipal)
	assert.Equal(t, "USDC", cfg.NativeAsset)
	assert.Equal(t, int64(500), cfg.DailyQuota)
	assert.Equal(t, 6*time.Hour, cfg.QuotaResetPeriod)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("SPONSOR_DAILY_QUOTA", "not-a-number")

	cfg := config.Load()
	assert.Equal(t, int64(1_000_000), cfg.DailyQuota)
}

func TestLoadSponsorPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: default
allowlisted_ops:
  - task.submitWork
  - task.startWork
daily_quota: 1000
reset_hours: 12
initial_deposit: 50000
`), 0o600))

	policy, err := config.LoadSponsorPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, "default", policy.Name)
	assert.Equal(t, []string{"task.submitWork", "task.startWork"}, policy.AllowlistedOps)
	assert.Equal(t, int64(1000), policy.DailyQuota)
	assert.Equal(t, 12*time.Hour, policy.ResetPeriod())
	assert.Equal(t, int64(50000), policy.InitialDeposit)
}

func TestLoadSponsorPolicy_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := config.LoadSponsorPolicy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: [unclosed"), 0o600))
	_, err = config.LoadSponsorPolicy(bad)
	assert.Error(t, err)

	noQuota := filepath.Join(dir, "no-quota.yaml")
	require.NoError(t, os.WriteFile(noQuota, []byte("name: x\ndaily_quota: 0\n"), 0o600))
	_, err = config.LoadSponsorPolicy(noQuota)
	assert.Error(t, err)
}

func TestSponsorPolicy_ResetPeriodDefault(t *testing.T) {
	p := &config.SponsorPolicy{DailyQuota: 1}
	assert.Equal(t, 24*time.Hour, p.ResetPeriod())
}
