package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("MONGO_URI", "mongodb://localhost:27017/chat")

	cfg, err := New()
	req.NoError(err)

	req.Equal("4000", cfg.HTTP.Port)
	req.Equal("mongodb://localhost:27017/chat", cfg.Mongo.URI)
	req.Equal("http://localhost:9200", cfg.Elastic.Host)
	req.Equal("messages", cfg.Elastic.Index)
	req.Equal(SyncModeDirect, cfg.Sync.Mode)
	req.Equal(3*time.Second, cfg.Sync.Timeout)
	req.Equal(10, cfg.Sync.BatchSize)
	req.True(cfg.Sync.EmbeddedWorker)
	req.Empty(cfg.Redis.Addr)
	req.Equal([]string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestNew_EnvOverrides(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("MONGO_URI", "mongodb://db:27017/chat")
	t.Setenv("PORT", "8081")
	t.Setenv("ELASTICSEARCH_HOST", "http://es:9200")
	t.Setenv("SYNC_MODE", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := New()
	req.NoError(err)

	req.Equal("8081", cfg.HTTP.Port)
	req.Equal("http://es:9200", cfg.Elastic.Host)
	req.Equal(SyncModeKafka, cfg.Sync.Mode)
	req.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestNew_ReadsDotEnv(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	t.Chdir(dir)
	req.NoError(os.WriteFile(filepath.Join(dir, ".env"), []byte("MONGO_URI=mongodb://from-dotenv:27017/x\n"), 0o600))
	// godotenv does not override variables that are already set, so make
	// sure the key is absent and clean it up afterwards.
	t.Setenv("MONGO_URI", "")
	req.NoError(os.Unsetenv("MONGO_URI"))

	cfg, err := New()
	req.NoError(err)
	req.Equal("mongodb://from-dotenv:27017/x", cfg.Mongo.URI)
}

func TestNew_RequiresMongoURI(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MONGO_URI", "")
	require.NoError(t, os.Unsetenv("MONGO_URI"))

	_, err := New()
	require.Error(t, err)
}

func TestNew_RejectsUnknownSyncMode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("SYNC_MODE", "carrier-pigeon")

	_, err := New()
	require.ErrorContains(t, err, "SYNC_MODE")
}

func TestLog_SlogLevel(t *testing.T) {
	req := require.New(t)
	req.Equal(slog.LevelDebug, Log{Level: "DEBUG"}.SlogLevel())
	req.Equal(slog.LevelWarn, Log{Level: "warning"}.SlogLevel())
	req.Equal(slog.LevelError, Log{Level: "error"}.SlogLevel())
	req.Equal(slog.LevelInfo, Log{Level: "nonsense"}.SlogLevel())
}
