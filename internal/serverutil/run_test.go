package serverutil

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startRun(t *testing.T, cfg Config) (<-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()
	return done, cancel
}

func waitReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

// freeAddr reserves a loopback port and releases it for the server to bind.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRunServesRequestsUntilCancelled(t *testing.T) {
	addr := freeAddr(t)
	ready := make(chan struct{})
	done, cancel := startRun(t, Config{
		Server:          &http.Server{Addr: addr, Handler: okHandler()},
		ShutdownTimeout: time.Second,
		Ready:           ready,
	})
	waitReady(t, ready)

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("request against running server: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunTLSHandshake(t *testing.T) {
	certFile, keyFile := writeTestCertificate(t)
	addr := freeAddr(t)
	ready := make(chan struct{})
	done, cancel := startRun(t, Config{
		Server:          &http.Server{Addr: addr, Handler: okHandler()},
		TLS:             TLSConfig{CertFile: certFile, KeyFile: keyFile},
		ShutdownTimeout: time.Second,
		Ready:           ready,
	})
	waitReady(t, ready)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	defer client.CloseIdleConnections()

	resp, err := client.Get("https://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("tls request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 over TLS, got %d", resp.StatusCode)
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunRequiresServer(t *testing.T) {
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing server")
	}
}

func TestRunRejectsHalfConfiguredTLS(t *testing.T) {
	for name, tlsCfg := range map[string]TLSConfig{
		"cert only": {CertFile: "cert.pem"},
		"key only":  {KeyFile: "key.pem"},
	} {
		t.Run(name, func(t *testing.T) {
			err := Run(context.Background(), Config{
				Server: &http.Server{Addr: "127.0.0.1:0"},
				TLS:    tlsCfg,
			})
			if err == nil {
				t.Fatal("expected error for incomplete certificate pair")
			}
		})
	}
}

func TestRunReturnsListenError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { occupied.Close() })

	ready := make(chan struct{})
	done, _ := startRun(t, Config{
		Server: &http.Server{Addr: occupied.Addr().String(), Handler: okHandler()},
		Ready:  ready,
	})

	if err := waitDone(t, done); err == nil {
		t.Fatal("expected error for occupied address")
	}
	select {
	case <-ready:
		t.Fatal("ready must not be signalled when listen fails")
	default:
	}
}

func writeTestCertificate(t *testing.T) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "cliptube.test"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
