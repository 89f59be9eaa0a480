package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ushadow-io/ushadow/internal/value"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func projectRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "conf", "ushadow.yaml"), `
docker_hosts:
  - name: local
    host: tcp://127.0.0.1:1
clusters:
  - id: prod
    name: Production
    server: https://prod:6443
`)
	write(t, filepath.Join(root, "compose", "docker-compose.infra.yml"), `
services:
  mongo:
    x-infra: {scheme: mongodb, env: [MONGO_URL]}
`)
	write(t, filepath.Join(root, "compose", "services", "chronicle.yml"), `
services:
  chronicle:
    environment:
      MONGO_URL: ${MONGO_URL:-mongodb://localhost:27017}
`)
	return root
}

func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(loadApp)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestOverridesSetThenResolve(t *testing.T) {
	root := projectRoot(t)

	out, err := run(t, root, "overrides", "set", "chronicle", "TEMPERATURE=0.70", "MONGO_URL=mongodb://override:27017", "DEBUG=true")
	require.NoError(t, err, out)
	assert.Contains(t, out, "updated 3 setting(s)")

	out, err = run(t, root, "overrides", "get", "chronicle")
	require.NoError(t, err)
	assert.Contains(t, out, `"TEMPERATURE": 0.70`)
	assert.Contains(t, out, `"DEBUG": true`)

	out, err = run(t, root, "resolve", "chronicle", "--target", "docker://local", "--sources")
	require.NoError(t, err)
	assert.Contains(t, out, "MONGO_URL=mongodb://override:27017\t# overrides\n")
	assert.Contains(t, out, "TEMPERATURE=0.70\t# overrides\n")
}

func TestResolveRejectsBadTarget(t *testing.T) {
	root := projectRoot(t)
	_, err := run(t, root, "resolve", "chronicle", "--target", "invalid.cluster.test")
	assert.Error(t, err)
	_, err = run(t, root, "resolve", "chronicle", "--target", "k8s://ghost/apps")
	assert.Error(t, err)
}

func TestTargetsList(t *testing.T) {
	out, err := run(t, projectRoot(t), "targets", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "k8s://prod\tProduction"))
	assert.True(t, strings.HasPrefix(lines[1], "docker://local"))
}

func TestTargetsCheckReportsDownHosts(t *testing.T) {
	out, err := run(t, projectRoot(t), "targets", "check", "--timeout", "200ms")
	assert.Error(t, err)
	assert.Contains(t, out, "local\tDOWN")
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"A=1", "B=x=y", "C=", `D="42"`})
	require.NoError(t, err)
	assert.True(t, got.Equal(value.Map{
		"A": value.MustNum("1"),
		"B": value.Str("x=y"),
		"C": value.Str(""),
		"D": value.Str("42"),
	}))

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}
