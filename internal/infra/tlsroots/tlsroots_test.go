package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed certificate and its key.
func writeCert(t *testing.T, certFile, keyFile string, serial int64) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "corosync-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadCAFile(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "ca.pem")
	writeCert(t, certFile, filepath.Join(dir, "ca.key"), 1)

	empty := filepath.Join(dir, "empty.pem")
	if err := os.WriteFile(empty, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.pem")
	badPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	if err := os.WriteFile(bad, badPEM, 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
		anyErr  bool
	}{
		{"valid", certFile, nil, false},
		{"no certificates", empty, ErrNoCertsFound, true},
		{"corrupt certificate", bad, nil, true},
		{"missing", filepath.Join(dir, "none.pem"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := LoadCAFile(tt.path)
			if (err != nil) != tt.anyErr {
				t.Fatalf("LoadCAFile() error = %v, wantErr %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadCAFile() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && pool == nil {
				t.Error("LoadCAFile() returned nil pool")
			}
		})
	}
}

func TestKeyPair_Reload(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeCert(t, certFile, keyFile, 1)

	kp, err := NewKeyPair(certFile, keyFile, discardLogger())
	if err != nil {
		t.Fatalf("NewKeyPair() error = %v", err)
	}
	serial := func() int64 {
		c, _ := kp.GetCertificate(nil)
		leaf, err := x509.ParseCertificate(c.Certificate[0])
		if err != nil {
			t.Fatal(err)
		}
		return leaf.SerialNumber.Int64()
	}
	if serial() != 1 {
		t.Fatalf("serial = %d, want 1", serial())
	}

	writeCert(t, certFile, keyFile, 2)
	if err := kp.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if serial() != 2 {
		t.Errorf("serial after reload = %d, want 2", serial())
	}

	if err := os.WriteFile(keyFile, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := kp.Reload(); err == nil {
		t.Error("Reload() should fail on a broken key")
	}
	if serial() != 2 {
		t.Error("failed reload must keep the previous certificate")
	}
	if c, k := kp.Files(); c != certFile || k != keyFile {
		t.Errorf("Files() = %q, %q", c, k)
	}
}

func TestNewKeyPair_Missing(t *testing.T) {
	if _, err := NewKeyPair("/nonexistent.crt", "/nonexistent.key", nil); err == nil {
		t.Error("NewKeyPair() should fail for missing files")
	}
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeCert(t, certFile, keyFile, 1)
	kp, err := NewKeyPair(certFile, keyFile, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	cfg := ServerConfig(kp, nil)
	if cfg.MinVersion != tls.VersionTLS12 || cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("config = %+v", cfg)
	}

	pool, err := LoadCAFile(certFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg := ServerConfig(kp, pool); cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
}
