package tlsutil

import (
	"crypto/tls"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a certificate/key pair whenever either file changes on
// disk, so rotating a network's TLS material doesn't require restarting
// the streaming transport's listener.
type Watcher struct {
	certFile, keyFile string
	logger            *slog.Logger

	current atomic.Pointer[tls.Certificate]
	watcher *fsnotify.Watcher
	mu      sync.Mutex
}

// NewWatcher loads the initial certificate and starts watching its
// files. Call Close to stop the watcher.
func NewWatcher(certFile, keyFile string, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{certFile: certFile, keyFile: keyFile, logger: logger}

	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(certFile); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(keyFile); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw

	go w.run()
	return w, nil
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return err
	}
	w.current.Store(&cert)
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			if err := w.reload(); err != nil {
				w.logger.Error("failed to reload TLS certificate, keeping previous one", "error", err)
			} else {
				w.logger.Info("reloaded TLS certificate", "cert_file", w.certFile)
			}
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("TLS certificate watcher error", "error", err)
		}
	}
}

// GetCertificate is suitable for tls.Config.GetCertificate, always
// returning the most recently loaded certificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.current.Load(), nil
}

func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
