package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/storage/jsonl"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dataFile string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "probe:\n  url_prefix: https://plates.example/?p=\n" +
		"storage:\n  data_file: " + dataFile + "\n" +
		"logging:\n  development: false\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func seedResults(t *testing.T, codes ...plates.Code) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	store, err := jsonl.New(jsonl.Config{Path: path}, nil)
	require.NoError(t, err)
	for i, code := range codes {
		require.NoError(t, store.Append(context.Background(), plates.Observation{
			Code:      code,
			Status:    plates.StatusAvailable,
			CheckedAt: time.Date(2026, 1, 2, 3, 4, i, 0, time.UTC),
		}))
	}
	require.NoError(t, store.Close())
	return path
}

func TestCodesCommand(t *testing.T) {
	t.Parallel()

	out, err := runRoot(t, "codes")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, plates.Total)
	require.Equal(t, "AA", lines[0])
	require.Equal(t, "AB", lines[1])
	require.Equal(t, "ZZ", lines[len(lines)-1])

	out, err = runRoot(t, "codes", "--count")
	require.NoError(t, err)
	require.Equal(t, "676\n", out)
}

func TestResultsCommandJSON(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, seedResults(t, "AA", "AB", "AC"))
	out, err := runRoot(t, "results", "--config", cfgPath, "--json", "--limit", "2")
	require.NoError(t, err)

	var rows []plates.Observation
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, plates.Code("AC"), rows[0].Code)
	require.Equal(t, plates.Code("AB"), rows[1].Code)
}

func TestResultsCommandTable(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, seedResults(t, "AA"))
	out, err := runRoot(t, "results", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "PLATE")
	require.Contains(t, out, "AA")
	require.Contains(t, out, "available")
	require.Contains(t, out, "2026-01-02T03:04:00Z")
}

func TestResultsCommandMissingFile(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "none.jsonl"))
	out, err := runRoot(t, "results", "--config", cfgPath, "--json")
	require.NoError(t, err)
	require.JSONEq(t, "[]", out)
}

func TestResultsCommandRejectsNegativeLimit(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, seedResults(t, "AA"))
	_, err := runRoot(t, "results", "--config", cfgPath, "--limit", "-1")
	require.ErrorContains(t, err, "--limit")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("probe:\n  url_prefix: \"\"\nlogging:\n  level: error\n"), 0o600))
	_, err := runRoot(t, "serve", "--config", path)
	require.ErrorContains(t, err, "invalid config")
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := runRoot(t, "results", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}
