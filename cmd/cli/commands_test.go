package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advodash/internal/query"
)

const sourceCSV = `Business Name,Owner Name,City,State,Mobile Number
Acme Law,,austin,tx,5551234567.0
Acme Law,,Austin,TX,5551234567
Beta Legal,A. Roy,mumbai,maharashtra,
,,,,
,K. Nobody,Pune,Maharashtra,9000000001
`

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append([]string{
		"--source", filepath.Join(dir, "advocates.csv"),
		"--mirror", filepath.Join(dir, "mirror.json"),
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupDir(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "advocates.csv"), []byte(sourceCSV), 0o644))
	return dir
}

func TestRebuildWritesMirror(t *testing.T) {
	dir := setupDir(t)
	out, err := run(t, dir, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 3 records (1 rejected)")
	assert.Contains(t, out, "row 5: ")
	assert.FileExists(t, filepath.Join(dir, "mirror.json"))
}

func TestSummaryCommand(t *testing.T) {
	out, err := run(t, setupDir(t), "summary")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_records": 3`)
	assert.Contains(t, out, `"potential_duplicates": 2`)
}

func TestTopCommand(t *testing.T) {
	out, err := run(t, setupDir(t), "top", "state", "-n", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"TX", "2"}, strings.Fields(lines[0]))

	_, err = run(t, setupDir(t), "top", "zip")
	assert.Error(t, err)
	_, err = run(t, setupDir(t), "top", "state", "-n", "-2")
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestQueryCommand(t *testing.T) {
	dir := setupDir(t)

	out, err := run(t, dir, "query", "--eq", "state=TX", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_matching": 2`)

	out, err = run(t, dir, "query", "--search", "beta")
	require.NoError(t, err)
	assert.Contains(t, out, "Beta Legal")
	assert.Contains(t, out, "page 1, 1 of 1 matching")

	_, err = run(t, dir, "query", "--filter", "zip=1")
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
	_, err = run(t, dir, "query", "--page", "0")
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestExportCommand(t *testing.T) {
	dir := setupDir(t)
	dest := filepath.Join(dir, "out", "advocates.csv")

	out, err := run(t, dir, "export", "csv", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 3 records")

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(b), "\n"))
	assert.Contains(t, string(b), "Acme Law,Unknown,Austin,TX,5551234567")

	_, err = run(t, dir, "export", "pdf")
	assert.Error(t, err)
}

func TestServerURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", serverURL(":8080"))
	assert.Equal(t, "http://10.0.0.1:80", serverURL("10.0.0.1:80"))

	u, err := websocketURL("https://dash.example.com/app", "/ws")
	require.NoError(t, err)
	assert.Equal(t, "wss://dash.example.com/ws", u)
}
