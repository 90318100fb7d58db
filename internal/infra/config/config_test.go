package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearStorageEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MONGO_URI", "THREADS_BACKEND", "SCYLLA_HOSTS", "KAFKA_BROKERS", "S3_ENDPOINT", "SESSION_TTL"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsToMemoryStores(t *testing.T) {
	clearStorageEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.ThreadsBackend)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadDefaultsToMongoBackendWhenURISet(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "mongo", cfg.ThreadsBackend)
}

func TestLoadRejectsConflictingBackends(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("THREADS_BACKEND", "memory")

	_, err := Load()
	require.ErrorContains(t, err, "THREADS_BACKEND=memory conflicts with MONGO_URI")
}

func TestLoadRejectsMongoBackendWithoutURI(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("THREADS_BACKEND", "mongo")

	_, err := Load()
	require.ErrorContains(t, err, "MONGO_URI is required")
}

func TestLoadRequiresScyllaHosts(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("THREADS_BACKEND", "scylla")

	_, err := Load()
	require.ErrorContains(t, err, "SCYLLA_HOSTS is required")

	t.Setenv("SCYLLA_HOSTS", "node-a:9042, node-b:9042")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"node-a:9042", "node-b:9042"}, cfg.ScyllaHosts)
}

func TestLoadRejectsBadDurations(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("SESSION_TTL", "not-a-duration")

	_, err := Load()
	require.ErrorContains(t, err, "SESSION_TTL")
}
