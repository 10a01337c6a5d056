package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KDS_FEED_URL", "https://feed.resto.local/")
	t.Setenv("KDS_ROLE", "staff")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, PushWebsocket, cfg.Feed.PushDriver)
	assert.Equal(t, "wss://feed.resto.local/ws/staff", cfg.Feed.WSURL)
	assert.Equal(t, 30*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.DegradedPollInterval)
	assert.Equal(t, 5, cfg.Engine.NotificationLimit)
	assert.False(t, cfg.Engine.SortByPriority)
	assert.Error(t, cfg.RequireSecret())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KDS_POLL_INTERVAL", "5s")
	t.Setenv("KDS_DEGRADED_POLL_INTERVAL", "20s")
	t.Setenv("KDS_SORT_BY_PRIORITY", "true")
	t.Setenv("KDS_NOTIFICATION_LIMIT", "notanumber")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Engine.DegradedPollInterval, "degraded interval never exceeds the normal one")
	assert.True(t, cfg.Engine.SortByPriority)
	assert.Equal(t, 5, cfg.Engine.NotificationLimit)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.NoError(t, cfg.RequireSecret())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown db driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"unknown push driver", map[string]string{"KDS_PUSH_DRIVER": "sse"}},
		{"amqp without url", map[string]string{"KDS_PUSH_DRIVER": "amqp"}},
		{"zero poll interval", map[string]string{"KDS_POLL_INTERVAL": "0s"}},
		{"zero retention", map[string]string{"KDS_RETENTION": "0s"}},
		{"negative retention", map[string]string{"KDS_RETENTION": "-5m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestInitDB_SQLiteInMemory(t *testing.T) {
	db, err := InitDB(Database{Driver: "sqlite", DSN: "file:config_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("SELECT 1").Error)

	_, err = InitDB(Database{Driver: "oracle"})
	assert.Error(t, err)
}
