package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLongFlags(t *testing.T) {
	in := []string{"-domain", "example.com", "-threads=5", "-v", "--help", "-t=3", "scan"}
	got := normalizeLongFlags(in)
	want := []string{"--domain", "example.com", "--threads=5", "-v", "--help", "-t=3", "scan"}
	assert.Equal(t, want, got)
}

func TestFindWordlist(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	assert.Equal(t, "/nonexistent/list.txt", findWordlist("/nonexistent/list.txt"))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dict"), 0o755))
	local := filepath.Join(dir, "dict", "subdomains.txt")
	require.NoError(t, os.WriteFile(local, []byte("www\n"), 0o644))
	assert.Equal(t, local, findWordlist("/nonexistent/list.txt"))

	explicit := filepath.Join(dir, "mine.txt")
	require.NoError(t, os.WriteFile(explicit, []byte("api\n"), 0o644))
	assert.Equal(t, explicit, findWordlist(explicit))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(normalizeLongFlags(args))
	err := cmd.Execute()
	return out.String(), err
}

func TestSourcesCommandListsGroups(t *testing.T) {
	out, err := runCLI(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "crtsh")
	assert.Contains(t, out, "bing")
	assert.Contains(t, out, "ct             crtsh,certspotter")
}

func TestScanRequiresDomain(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := runCLI(t, "scan")
	assert.EqualError(t, err, "a target domain is required")
}

func TestScanRejectsUnknownSource(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := runCLI(t, "scan", "-domain", "example.com", "-sources", "nope")
	assert.EqualError(t, err, `unknown source "nope"`)
}

func TestScanRequiresExplicitConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := runCLI(t, "scan", "example.com", "--config", "missing.yaml")
	assert.Error(t, err)
}
