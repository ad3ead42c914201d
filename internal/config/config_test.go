package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "morpheus.db", cfg.DBPath)
	require.Equal(t, 3, cfg.Backfill.Hour)
	require.Equal(t, time.Minute, cfg.Backfill.Interval)
	require.Equal(t, 4, cfg.Backfill.Concurrency)
	require.Equal(t, 30, cfg.WS.RateLimit)
	require.Equal(t, 30*24*time.Hour, cfg.Snapshot.Retention)
	require.Equal(t, "us-east-1", cfg.Snapshot.S3.Region)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "morpheus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
db_path: /var/lib/morpheus/ledger.db
backfill:
  hour: 5
  interval: 30s
ws:
  origin_patterns: ["app.example.com"]
snapshot:
  dir: /var/backups/morpheus
  s3:
    bucket: ledger-snapshots
`), 0o644))
	t.Setenv("MORPHEUS_BACKFILL_CONCURRENCY", "8")
	t.Setenv("MORPHEUS_SNAPSHOT_PASSPHRASE", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, "/var/lib/morpheus/ledger.db", cfg.DBPath)
	require.Equal(t, 5, cfg.Backfill.Hour)
	require.Equal(t, 30*time.Second, cfg.Backfill.Interval)
	require.Equal(t, 8, cfg.Backfill.Concurrency)
	require.Equal(t, []string{"app.example.com"}, cfg.WS.OriginPatterns)
	require.Equal(t, "/var/backups/morpheus", cfg.Snapshot.Dir)
	require.Equal(t, "ledger-snapshots", cfg.Snapshot.S3.Bucket)
	require.Equal(t, "hunter2", cfg.Snapshot.Passphrase)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("MORPHEUS_BACKFILL_HOUR", "24")
	_, err := Load("")
	require.ErrorContains(t, err, "backfill.hour")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConversions(t *testing.T) {
	t.Setenv("MORPHEUS_SNAPSHOT_S3_BUCKET", "b")
	t.Setenv("MORPHEUS_SNAPSHOT_PASSPHRASE", "p")
	cfg, err := Load("")
	require.NoError(t, err)

	b := cfg.Backup()
	require.Equal(t, "b", b.S3.Bucket)
	require.Equal(t, "p", b.Passphrase)
	require.Equal(t, 3, cfg.Scheduler().Hour)
	require.Equal(t, 30, cfg.Server().RateLimit)
}
