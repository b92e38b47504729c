package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Bot.SessionBackend)
	assert.Equal(t, 30*time.Second, cfg.Bot.PollTimeout)
}

func TestLoad_ParsesDurationsAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {"log_level": "debug", "token_ttl": "2h"},
		"database": {"driver": "sqlite", "dsn": "file:todo.db"},
		"bot": {"poll_timeout": "5s", "session_backend": "memory", "max_poll_failures": 3}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.App.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.Bot.PollTimeout)
	assert.Equal(t, 3, cfg.Bot.MaxPollFailures)
	assert.Equal(t, ":8000", cfg.App.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": {"driver": "oracle"}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides_AssembleMySQLDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USER", "todo")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("DB_NAME", "goals")

	cfg := getDefaultConfig()
	applyEnvOverrides(cfg)

	parsed := parseMySQLDSN(cfg.Database.DSN)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "todo", parsed.User)
	assert.Equal(t, "s3cret", parsed.Passwd)
	assert.Equal(t, "goals", parsed.DBName)
}

func TestLoad_ReminderAndEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"database": {"driver": "sqlite", "dsn": "file:todo.db"},
		"bot": {"reminder_interval": "1m", "reminder_lead": "2h"},
		"email": {"smtp_host": "smtp.example.com", "from_email": "bot@example.com"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Bot.ReminderInterval)
	assert.Equal(t, 2*time.Hour, cfg.Bot.ReminderLead)
	assert.Equal(t, "direct", cfg.Bot.Delivery)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.True(t, cfg.Email.Enabled())
}

func TestLoad_StreamDeliveryRequiresRedis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"database": {"driver": "sqlite", "dsn": "file:todo.db"}, "bot": {"delivery": "stream"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "requires redis")
}
