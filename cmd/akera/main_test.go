package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/akera-connector/pkg/backends/memory"
	"github.com/ajitpratap0/akera-connector/pkg/json"
	"github.com/ajitpratap0/akera-connector/pkg/testutil"
)

// execute runs the CLI against the sports fixture server registered at host
func execute(t *testing.T, host string, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)

	conn := []string{"--host", host, "--database", testutil.SportsDB, "--log-level", "error"}
	root.SetArgs(append(args, conn...))
	err := root.Execute()
	return out.String(), err
}

func sportsHost(t *testing.T, host string) *memory.Server {
	t.Helper()
	server := testutil.NewSportsServer(t)
	memory.Register(host+":3000", server)
	return server
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "localhost", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "akera connector v"+version)
	assert.Contains(t, out, "Go version:")
}

func TestBackendsCommand(t *testing.T) {
	out, err := execute(t, "localhost", "backends")
	require.NoError(t, err)
	for _, name := range []string{"memory", "mongodb", "mysql", "postgres"} {
		assert.Contains(t, out, name)
	}
}

func TestPingCommand(t *testing.T) {
	sportsHost(t, "cli-ping.test")

	out, err := execute(t, "cli-ping.test", "ping")
	require.NoError(t, err)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "healthy", status["status"])
}

func TestCountCommandDiscoversModel(t *testing.T) {
	sportsHost(t, "cli-count.test")

	out, err := execute(t, "cli-count.test", "count", "State")
	require.NoError(t, err)
	assert.Equal(t, "7", strings.TrimSpace(out))

	out, err = execute(t, "cli-count.test", "count", "State", "--where", `{"Region":"South"}`)
	require.NoError(t, err)
	assert.Equal(t, "3", strings.TrimSpace(out))
}

func TestFindCommand(t *testing.T) {
	sportsHost(t, "cli-find.test")

	out, err := execute(t, "cli-find.test", "find", "State",
		"--filter", `{"where":{"Region":"West"},"order":"State DESC"}`)
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "CA", rows[0]["State"])
	assert.Equal(t, "AK", rows[1]["State"])
}

func TestFindCommandEmptyResult(t *testing.T) {
	sportsHost(t, "cli-empty.test")

	out, err := execute(t, "cli-empty.test", "find", "State",
		"--filter", `{"where":{"Region":"North"}}`)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestFindCommandInvalidFilter(t *testing.T) {
	server := sportsHost(t, "cli-invalid.test")

	_, err := execute(t, "cli-invalid.test", "find", "State", "--filter", `{"where":`)
	assert.Error(t, err)
	assert.Equal(t, int64(0), server.Dials())
}

func TestDiscoverCommands(t *testing.T) {
	sportsHost(t, "cli-discover.test")

	out, err := execute(t, "cli-discover.test", "discover", "models", "--limit", "2")
	require.NoError(t, err)
	var models []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	assert.Len(t, models, 2)

	out, err = execute(t, "cli-discover.test", "discover", "keys", "orderline")
	require.NoError(t, err)
	assert.Contains(t, out, "Ordernum")
	assert.Contains(t, out, "Linenum")

	out, err = execute(t, "cli-discover.test", "discover", "schemas")
	require.NoError(t, err)
	assert.Contains(t, out, testutil.SportsDB)
}

func TestDiscoveredModelFileDrivesFind(t *testing.T) {
	sportsHost(t, "cli-models.test")

	out, err := execute(t, "cli-models.test", "discover", "model", "OrderLine")
	require.NoError(t, err)
	assert.Contains(t, out, "models:")

	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	out, err = execute(t, "cli-models.test", "find", "OrderLine", "-m", path,
		"--filter", `{"where":{"Ordernum":1},"fields":["Linenum"]}`)
	require.NoError(t, err)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.NotEmpty(t, rows)
	for _, row := range rows {
		assert.Len(t, row, 1)
		assert.Contains(t, row, "Linenum")
	}
}

func TestConfigFile(t *testing.T) {
	sportsHost(t, "cli-file.test")

	path := filepath.Join(t.TempDir(), "akera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from-file
backend: memory
connection:
  host: cli-file.test
  port: 3000
  database: nowhere
`), 0o600))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)

	// the database flag refines the file
	root.SetArgs([]string{"count", "State", "--config", path, "--database", testutil.SportsDB, "--log-level", "error"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "7", strings.TrimSpace(out.String()))
}

func TestUnknownBackend(t *testing.T) {
	_, err := execute(t, "localhost", "ping", "--backend", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}
