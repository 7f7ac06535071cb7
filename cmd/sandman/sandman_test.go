package sandman

import (
	"bytes"
	"testing"

	"github.com/edgeflare/sandman/pkg/config"
	"github.com/edgeflare/sandman/pkg/notify"
	"github.com/edgeflare/sandman/pkg/pgx/schema"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var shopTables = []schema.Table{
	{
		Schema: "shop",
		Name:   "book",
		Columns: []schema.Column{
			{Name: "id", DataType: "INTEGER"},
			{Name: "title", DataType: "text"},
		},
		PrimaryKeys: []string{"id"},
	},
	{
		Schema:  "shop",
		Name:    "audit",
		Columns: []schema.Column{{Name: "message", DataType: "text"}},
	},
}

func TestDescribe(t *testing.T) {
	meta, err := describe("shop", shopTables, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"book": {"id": "integer", "title": "text"},
	}, meta)

	meta, err = describe("shop", shopTables, []string{"book"}, nil)
	require.NoError(t, err)
	assert.Contains(t, meta, "book")

	_, err = describe("shop", shopTables, []string{"author"}, nil)
	assert.ErrorContains(t, err, `table "author" not found in schema "shop"`)

	_, err = describe("shop", shopTables, []string{"audit"}, nil)
	assert.ErrorIs(t, err, resource.ErrNoPrimaryKey)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, map[string]map[string]string{
		"book": {"title": "text", "id": "integer"},
	}))
	assert.Equal(t, "book:\n  id: integer\n  title: text\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = newLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	l, err = newLogger("none")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.FatalLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestResourceOptions(t *testing.T) {
	table := shopTables[0].Descriptor()
	table.Name = "person"

	m, err := resource.NewRowMapper(table, resourceOptions(config.RESTConfig{Inflect: true, CollectionKey: "items"})...)
	require.NoError(t, err)
	assert.Equal(t, "people", m.Endpoint())
	assert.Equal(t, "items", m.CollectionKey())

	m, err = resource.NewRowMapper(table, resourceOptions(config.RESTConfig{})...)
	require.NoError(t, err)
	assert.Equal(t, "persons", m.Endpoint())
	assert.Equal(t, resource.DefaultCollectionKey, m.CollectionKey())
}

func TestOpenSinks(t *testing.T) {
	multi, err := openSinks([]config.SinkConfig{
		{Name: "log", Type: notify.SinkDebug},
		{Name: "verbose", Type: notify.SinkDebug, Config: map[string]any{"level": "debug"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, multi.Len())
	require.NoError(t, multi.Close())

	_, err = openSinks([]config.SinkConfig{
		{Name: "log", Type: notify.SinkDebug},
		{Name: "pager", Type: "pager"},
	})
	assert.ErrorIs(t, err, notify.ErrUnknownSink)
	assert.ErrorContains(t, err, "sink pager")

	_, err = openSinks([]config.SinkConfig{{Name: "log", Type: notify.SinkDebug, Config: map[string]any{"level": "loud"}}})
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, config.Version+"\n", buf.String())
}
