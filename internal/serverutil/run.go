// Package serverutil owns the listen/serve/shutdown lifecycle shared by the
// API server binary and its tests.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds graceful shutdown once the context is
// cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// TLSConfig points at the certificate pair for a TLS listener. Leave both
// fields empty to serve plain HTTP.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config controls the server lifecycle managed by Run.
type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	// Ready, when non-nil, is closed once the listener accepts
	// connections. Tests wait on it instead of polling.
	Ready chan<- struct{}
}

// Run serves cfg.Server until ctx is cancelled or the server fails, then
// drains in-flight requests within ShutdownTimeout.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Server == nil {
		return errors.New("server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("tls requires both a certificate and a key file")
	}

	ln, err := listen(cfg.Server, cfg.TLS)
	if err != nil {
		return err
	}
	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	group, runCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := cfg.Server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-runCtx.Done()
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return cfg.Server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// listen opens the TCP listener and, when a certificate pair is configured,
// wraps it for TLS without clobbering any TLSConfig already on the server.
func listen(srv *http.Server, tlsFiles TLSConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}
	if tlsFiles.CertFile == "" {
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(tlsFiles.CertFile, tlsFiles.KeyFile)
	if err != nil {
		ln.Close()
		return nil, err
	}
	tlsCfg := srv.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
	srv.TLSConfig = tlsCfg
	return tls.NewListener(ln, tlsCfg), nil
}
