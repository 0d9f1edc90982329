package config

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, MessageStoreDefault, cfg.MessageStore)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, gocql.Quorum, cfg.ScyllaConsistency)
	assert.Equal(t, cfg.S3Endpoint, cfg.S3PublicEndpoint)
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":      {},
		"mongo without uri":   {"JWT_SECRET": "s", "STORAGE_DRIVER": "mongo", "KAFKA_BROKERS": "k:9092"},
		"mongo without kafka": {"JWT_SECRET": "s", "STORAGE_DRIVER": "mongo", "MONGO_URI": "mongodb://x"},
		"unknown driver":      {"JWT_SECRET": "s", "STORAGE_DRIVER": "sqlite"},
		"bad backoff":         {"JWT_SECRET": "s", "RETRY_BACKOFF": "1s,soon"},
		"bad bool":            {"JWT_SECRET": "s", "S3_USE_SSL": "maybe"},
		"bad consistency":     {"JWT_SECRET": "s", "SCYLLA_CONSISTENCY": "two"},
		"scylla over memory":  {"JWT_SECRET": "s", "MESSAGE_STORE": "scylla"},
		"bad replication":     {"JWT_SECRET": "s", "SCYLLA_REPLICATION_FACTOR": "zero"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMongo(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORAGE_DRIVER", "Mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.StorageDriver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 1, cfg.ScyllaReplication)
}

func TestLoadScyllaMessages(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "a:9092")
	t.Setenv("MESSAGE_STORE", "scylla")
	t.Setenv("SCYLLA_HOSTS", "s1,s2")
	t.Setenv("SCYLLA_CONSISTENCY", "local_quorum")
	t.Setenv("SCYLLA_REPLICATION_FACTOR", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, cfg.ScyllaHosts)
	assert.Equal(t, gocql.LocalQuorum, cfg.ScyllaConsistency)
	assert.Equal(t, 3, cfg.ScyllaReplication)
}
