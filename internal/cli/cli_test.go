package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	root := NewRoot()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestInvoke_Success(t *testing.T) {
	cfg := writeConfig(t, "transport: local\n")

	stdout, _, err := run(t, "", "invoke", "get_profile", "--arg", "id=1", "--config", cfg)
	require.NoError(t, err)

	var out outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.OK)
	assert.Equal(t, "get_profile", out.Command)
	require.NotNil(t, out.Success)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "Ada"}, out.Success.Data)
}

func TestInvoke_ConfiguredArgs(t *testing.T) {
	cfg := writeConfig(t, "commands:\n  get_profile:\n    args:\n      id: 7\n")

	stdout, _, err := run(t, "", "invoke", "get_profile", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"name": "A"`)
}

func TestInvoke_FailureIsRenderedAndReturned(t *testing.T) {
	cfg := writeConfig(t, "transport: local\n")

	stdout, _, err := run(t, "", "invoke", "test_command", "--config", cfg, "-o", "yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, errCallFailed)

	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, false, out["ok"])
	envelope, ok := out["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CategoriesNotFound", envelope["errorType"])
	assert.Equal(t, "Categories not found", envelope["message"])
}

func TestInvoke_EventsGoToStderr(t *testing.T) {
	cfg := writeConfig(t, "transport: local\n")

	_, stderr, err := run(t, "", "invoke", "flaky", "--args", `{"key":"cli"}`, "--events", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, stderr, "event flaky://attempt")
}

func TestInvoke_BadFlags(t *testing.T) {
	cfg := writeConfig(t, "transport: local\n")

	_, _, err := run(t, "", "invoke", "echo", "--arg", "novalue", "--config", cfg)
	assert.Error(t, err)

	_, _, err = run(t, "", "invoke", "echo", "--transport", "smoke", "--config", cfg)
	assert.Error(t, err)

	_, _, err = run(t, "", "invoke", "echo", "-o", "xml", "--config", cfg)
	assert.Error(t, err)
}

func TestHost_Stdio(t *testing.T) {
	cfg := writeConfig(t, "transport: local\n")

	requests := `{"id":"r1","command":"echo","args":{"a":1}}` + "\n" +
		`{"id":"r2","command":"nope"}` + "\n"
	stdout, _, err := run(t, requests, "host", "--stdio", "--config", cfg)
	require.NoError(t, err)

	frames := map[string]map[string]any{}
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &frame))
		frames[frame["id"].(string)] = frame
	}

	require.Contains(t, frames, "r1")
	assert.Contains(t, frames["r1"], "reply")
	require.Contains(t, frames, "r2")
	assert.Contains(t, frames["r2"], "error")
}

func TestJournal_RecordsInvocations(t *testing.T) {
	cfg := writeConfig(t, "journal:\n  driver: file\n  path: $DIR/journal.jsonl\n")

	_, _, err := run(t, "", "invoke", "get_profile", "--arg", "id=1", "--config", cfg)
	require.NoError(t, err)
	_, _, err = run(t, "", "invoke", "test_command", "--config", cfg)
	require.Error(t, err)

	stdout, _, err := run(t, "", "journal", "-o", "json", "--config", cfg)
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "test_command", entries[0]["command"])
	assert.Equal(t, "get_profile", entries[1]["command"])

	table, _, err := run(t, "", "journal", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, table, "COMMAND")
	assert.Contains(t, table, "not_found")
}

func TestJournal_Disabled(t *testing.T) {
	cfg := writeConfig(t, "journal:\n  driver: none\n")

	_, _, err := run(t, "", "journal", "--config", cfg)
	assert.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: map[string]any{}},
		{name: "json", raw: `{"id":7}`, want: map[string]any{"id": float64(7)}},
		{name: "pairs", pairs: []string{"id=7", "name=Ada", "tags=[\"a\"]"},
			want: map[string]any{"id": float64(7), "name": "Ada", "tags": []any{"a"}}},
		{name: "pair_wins", raw: `{"id":1}`, pairs: []string{"id=2"}, want: map[string]any{"id": float64(2)}},
		{name: "bad_json", raw: `{`, wantErr: true},
		{name: "bad_pair", pairs: []string{"=x"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgs(tc.raw, tc.pairs)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
