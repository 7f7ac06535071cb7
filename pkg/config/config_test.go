package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
rest:
  pg:
    connString: postgres://sandman@localhost:5432/shop
  listenAddr: ":8081"
  baseURL: https://api.example.com
  schema: shop
  inflect: true
  cors:
    allowed_origins: ["https://example.com"]
notify:
  sinks:
    - type: debug
    - name: events
      type: nats
      config:
        servers: ["nats://localhost:4222"]
        stream: shop
metrics:
  addr: ":9200"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sandman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)

	assert.Equal(t, "postgres://sandman@localhost:5432/shop", cfg.REST.PG.ConnString)
	assert.Equal(t, ":8081", cfg.REST.ListenAddr)
	assert.Equal(t, "https://api.example.com", cfg.REST.BaseURL)
	assert.Equal(t, "shop", cfg.REST.Schema)
	assert.True(t, cfg.REST.Inflect)
	assert.Equal(t, []string{"https://example.com"}, cfg.REST.CORS.AllowedOrigins)
	assert.Equal(t, DefaultRESTConfig().CORS.AllowedMethods, cfg.REST.CORS.AllowedMethods)

	require.Len(t, cfg.Notify.Sinks, 2)
	assert.Equal(t, "debug", cfg.Notify.Sinks[0].Name)
	assert.Equal(t, "events", cfg.Notify.Sinks[1].Name)
	assert.Equal(t, "nats", cfg.Notify.Sinks[1].Type)

	raw, err := cfg.Notify.Sinks[1].RawConfig()
	require.NoError(t, err)
	assert.JSONEq(t, `{"servers":["nats://localhost:4222"],"stream":"shop"}`, string(raw))

	raw, err = cfg.Notify.Sinks[0].RawConfig()
	require.NoError(t, err)
	assert.Nil(t, raw)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, writeConfig(t, "rest:\n  pg:\n    connString: postgres://localhost/db\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.REST.ListenAddr)
	assert.Equal(t, "public", cfg.REST.Schema)
	assert.False(t, cfg.REST.Inflect)
	assert.Equal(t, DefaultRESTConfig().CORS, cfg.REST.CORS)
	assert.Empty(t, cfg.Notify.Sinks)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SANDMAN_REST_LISTENADDR", ":9999")
	t.Setenv("SANDMAN_REST_PG_CONNSTRING", "postgres://env@localhost/db")

	cfg, err := Load(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.REST.ListenAddr)
	assert.Equal(t, "postgres://env@localhost/db", cfg.REST.PG.ConnString)
}

func TestLoadFlagsOverride(t *testing.T) {
	v := viper.New()
	v.Set("rest.schema", "inventory")

	cfg, err := Load(v, writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "inventory", cfg.REST.Schema)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(viper.New(), writeConfig(t, "rest: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoConnString)

	cfg.REST.PG.ConnString = "postgres://localhost/db"
	cfg.Notify.Sinks = []SinkConfig{{Name: "a"}}
	assert.ErrorIs(t, cfg.Validate(), ErrSinkType)

	cfg.Notify.Sinks = []SinkConfig{{Name: "a", Type: "debug"}, {Name: "a", Type: "nats"}}
	assert.ErrorIs(t, cfg.Validate(), ErrDuplicateSink)

	cfg.Notify.Sinks[1].Name = "b"
	assert.NoError(t, cfg.Validate())
}

func TestSinkRawConfig(t *testing.T) {
	raw, err := SinkConfig{Type: "http", Config: map[string]any{"timeout": "5s"}}.RawConfig()
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "5s", decoded["timeout"])
}

