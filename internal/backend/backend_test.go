package backend

import (
	"context"
	"path/filepath"
	"testing"

	"expense-tracker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range []BackendType{JSONBackend, MongoBackend, PostgresBackend, SQLiteBackend} {
		assert.True(t, bt.IsValid(), bt.String())
	}
	assert.False(t, BackendType("memory").IsValid())
	assert.False(t, BackendType("").IsValid())
}

func TestConfigFromAppConfig(t *testing.T) {
	got := ConfigFromAppConfig(config.Config{
		DataBackend:   "sqlite",
		DataDir:       "/data",
		SQLiteDBPath:  "/data/x.db",
		DBConn:        "postgres://x",
		MongoURI:      "mongodb://x",
		MongoDatabase: "db",
	})
	assert.Equal(t, Config{
		Type:          SQLiteBackend,
		DataDirectory: "/data",
		SQLiteDBPath:  "/data/x.db",
		PostgresDSN:   "postgres://x",
		MongoURI:      "mongodb://x",
		MongoDatabase: "db",
	}, got)
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{name: "json", cfg: Config{Type: JSONBackend, DataDirectory: dir}, wantName: "json"},
		{name: "sqlite", cfg: Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "e.db")}, wantName: "sqlite"},
		{name: "unknown", cfg: Config{Type: "sheets"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { assert.NoError(t, res.Cleanup()) }()
			assert.Equal(t, tt.wantName, res.Store.Name())
			assert.NoError(t, res.Store.Ping(ctx))
		})
	}
}
