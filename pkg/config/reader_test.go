package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster_settings")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReader_ParsesServersAndNewServers(t *testing.T) {
	path := writeFile(t, "servers=10.0.0.1:11211,10.0.0.2:11211\nnew_servers=10.0.0.3:11211\n")

	cfg, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:11211", "10.0.0.2:11211"}, cfg.Servers)
	assert.Equal(t, []string{"10.0.0.3:11211"}, cfg.NewServers)
	assert.Equal(t, DefaultTombstoneLifetime, cfg.TombstoneLifetime)
}

func TestReader_ParsesTombstoneLifetime(t *testing.T) {
	path := writeFile(t, "servers=10.0.0.1:11211\ntombstone_lifetime=200\n")

	cfg, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.TombstoneLifetime)
}

func TestReader_IgnoresBlankLinesAndWhitespace(t *testing.T) {
	path := writeFile(t, "\n  servers = 10.0.0.1:11211 , 10.0.0.2:11211 \n\n")

	cfg, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:11211", "10.0.0.2:11211"}, cfg.Servers)
}

func TestReader_SkipsCommentLines(t *testing.T) {
	path := writeFile(t, "# cluster membership file\nservers=10.0.0.1:11211,10.0.0.2:11211\n  # indented comment\n#new_servers=10.0.0.9:11211\n")

	cfg, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:11211", "10.0.0.2:11211"}, cfg.Servers)
	assert.Nil(t, cfg.NewServers, "a commented-out key must not be parsed")
}

func TestReader_MissingServersKeyIsAnError(t *testing.T) {
	path := writeFile(t, "new_servers=10.0.0.1:11211\n")

	_, err := NewReader(path).Read()
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestReader_UnknownKeyIsRejected(t *testing.T) {
	path := writeFile(t, "servers=10.0.0.1:11211\nretries=3\n")

	_, err := NewReader(path).Read()
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "retries=3", parseErr.Line)
}

func TestReader_LineWithoutEqualsIsRejected(t *testing.T) {
	path := writeFile(t, "servers 10.0.0.1:11211\n")

	_, err := NewReader(path).Read()
	require.Error(t, err)
}

func TestReader_NonNumericTombstoneLifetimeIsRejected(t *testing.T) {
	path := writeFile(t, "servers=10.0.0.1:11211\ntombstone_lifetime=soon\n")

	_, err := NewReader(path).Read()
	require.Error(t, err)
}

func TestReader_TombstoneLifetimeMustRoundTrip(t *testing.T) {
	// "008" atoi's to 8 but doesn't round-trip back to "008".
	path := writeFile(t, "servers=10.0.0.1:11211\ntombstone_lifetime=008\n")

	_, err := NewReader(path).Read()
	require.Error(t, err)
}

func TestReader_MissingFileReturnsError(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "does-not-exist")).Read()
	require.Error(t, err)
}

func TestReader_EmptyNewServersIsNilNotEmptySlice(t *testing.T) {
	path := writeFile(t, "servers=10.0.0.1:11211\nnew_servers=\n")

	cfg, err := NewReader(path).Read()
	require.NoError(t, err)
	assert.Nil(t, cfg.NewServers)
}
