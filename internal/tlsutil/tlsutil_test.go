package tlsutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedAndLoad(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "node.crt")
	keyFile := filepath.Join(dir, "node.key")

	require.NoError(t, GenerateSelfSigned(certFile, keyFile, "127.0.0.1", 24*time.Hour))

	cfg, err := LoadConfig(certFile, keyFile, false)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
}

func TestWatcherLoadsInitialCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "node.crt")
	keyFile := filepath.Join(dir, "node.key")
	require.NoError(t, GenerateSelfSigned(certFile, keyFile, "127.0.0.1", 24*time.Hour))

	w, err := NewWatcher(certFile, keyFile, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer w.Close()

	cert, err := w.GetCertificate(nil)
	require.NoError(t, err)
	require.NotNil(t, cert)
}
