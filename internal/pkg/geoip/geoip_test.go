package geoip_test

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkpulse/internal/pkg/geoip"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenWithoutDatabase(t *testing.T) {
	reader := geoip.Open(filepath.Join(t.TempDir(), "missing.mmdb"), quietLogger())

	assert.False(t, reader.Available())
	_, err := reader.City(net.ParseIP("8.8.8.8"))
	assert.ErrorIs(t, err, geoip.ErrUnavailable)
	assert.NoError(t, reader.Close())
}

func TestOpenWithEmptyPath(t *testing.T) {
	reader := geoip.Open("", quietLogger())
	assert.False(t, reader.Available())
}

func TestOpenWithCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("not a maxmind database"), 0o600))

	reader := geoip.Open(path, quietLogger())
	assert.False(t, reader.Available())

	// Reload keeps working after a bad file.
	reader.Reload()
	assert.False(t, reader.Available())
}
