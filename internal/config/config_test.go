package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "observations", cfg.Redis.Channel)
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "@every 30s", cfg.Market.SweepSchedule)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("DATABASE_DSN", "postgres://localhost/market")
	t.Setenv("AUTH_SECRET", "sekrit")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "postgres://localhost/market", cfg.Database.DSN)
	assert.Equal(t, "sekrit", cfg.Auth.Secret)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_LEVEL=debug\n"), 0o644))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

const policyYAML = `
fees:
  protocol_bps: 250
  referrer_bps: 100
  treasury_identity: protocol
multisig:
  threshold: 2
  signers: [s1, s2, s3]
admins: [admin]
minters:
  gold: [issuer-1]
  "*": [root-issuer]
`

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policyYAML), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.EqualValues(t, 250, p.Fees.ProtocolBps)
	assert.Equal(t, "protocol", p.Fees.TreasuryIdentity)
	assert.Equal(t, 2, p.Multisig.Threshold)
	assert.Equal(t, []string{"s1", "s2", "s3"}, p.Multisig.Signers)
	assert.Equal(t, []string{"issuer-1"}, p.Minters["gold"])
	assert.Equal(t, []string{"root-issuer"}, p.Minters["*"])
}

func TestLoadPolicyRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	bad := `
fees:
  treasury_identity: protocol
multisig:
  threshold: 3
  signers: [s1]
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := LoadPolicy(path)
	assert.ErrorContains(t, err, "threshold")
}

func TestLoadPolicyOrDefaultFallsBack(t *testing.T) {
	p, err := LoadPolicyOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "protocol", p.Fees.TreasuryIdentity)
	assert.Equal(t, 1, p.Multisig.Threshold)
}
