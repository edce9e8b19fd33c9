package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/replication/fixity"
)

func writeConfig(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "bagger.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, fixity.DefaultTypes(), c.Types())
	assert.Equal(t, DefaultReplicaCache, c.ReplicaCache)
	assert.Equal(t, fixity.DefaultWorkers, c.Workers)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, int64(DefaultAuditRate), c.Audit.Rate)
	assert.Equal(t, DefaultInterval, c.Audit.Interval.Duration)
	assert.Equal(t, DefaultPort, c.Audit.Port)
	assert.Equal(t, "/replica-cache/fixity.ql", c.DatabasePath())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
checksum_types = ["SHA-256", "md5"]
replica_cache = "/tmp/replicas"
workers = 2
log_level = "debug"
sentry_dsn = "https://key@sentry.example.org/1"

[audit]
rate = 0
interval = "72h"
port = "8080"
mysql = "user@tcp(localhost:3306)/fixity"
tokens = "/etc/bagger/tokens"
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, fixity.TypeSet{fixity.SHA256, fixity.MD5}, c.Types())
	assert.Equal(t, "/tmp/replicas", c.ReplicaCache)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "https://key@sentry.example.org/1", c.SentryDSN)
	assert.Equal(t, int64(0), c.Audit.Rate)
	assert.Equal(t, 72*time.Hour, c.Audit.Interval.Duration)
	assert.Equal(t, "8080", c.Audit.Port)
	assert.Equal(t, "user@tcp(localhost:3306)/fixity", c.Audit.MySQL)
	assert.Equal(t, "/etc/bagger/tokens", c.Audit.Tokens)
}

func TestLoadPartial(t *testing.T) {
	path := writeConfig(t, `
replica_cache = "/data/cache"
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/cache", c.ReplicaCache)
	assert.Equal(t, fixity.DefaultTypes(), c.Types())
	assert.Equal(t, int64(DefaultAuditRate), c.Audit.Rate)
	assert.Equal(t, DefaultInterval, c.Audit.Interval.Duration)
}

func TestLoadErrors(t *testing.T) {
	var table = []struct {
		name    string
		content string
	}{
		{"bad type", `checksum_types = ["sha1", "crc32"]`},
		{"bad interval", "[audit]\ninterval = \"soon\""},
		{"bad level", `log_level = "loud"`},
		{"negative rate", "[audit]\nrate = -5"},
		{"bad toml", `workers = `},
	}
	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, row.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, `checksum_types = ["crc32"]`))
	_, ok := errors.Cause(err).(*fixity.InvalidTypeError)
	assert.True(t, ok, "got %v", err)

	_, err = Load("/no/such/bagger.toml")
	assert.Error(t, err)
}

func TestSetTypes(t *testing.T) {
	c := Default()
	require.NoError(t, c.SetTypes([]string{"sha384"}))
	assert.Equal(t, fixity.TypeSet{fixity.SHA384}, c.Types())
	assert.Error(t, c.SetTypes([]string{"nope"}))
	assert.Equal(t, fixity.TypeSet{fixity.SHA384}, c.Types())
}
