package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
)

// KeyPair is a certificate and key loaded from disk that can be replaced
// while connections are being served.
type KeyPair struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewKeyPair loads certFile and keyFile.
func NewKeyPair(certFile, keyFile string, logger *slog.Logger) (*KeyPair, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kp := &KeyPair{certFile: certFile, keyFile: keyFile, logger: logger}
	if err := kp.load(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return kp, nil
}

// Files returns the certificate and key paths.
func (kp *KeyPair) Files() (certFile, keyFile string) {
	return kp.certFile, kp.keyFile
}

// Reload reads the files again. On failure the previous certificate stays
// in use.
func (kp *KeyPair) Reload() error {
	if err := kp.load(); err != nil {
		kp.logger.Error("certificate reload failed", "cert_file", kp.certFile, "error", err)
		return err
	}
	kp.logger.Info("certificate reloaded", "cert_file", kp.certFile)
	return nil
}

func (kp *KeyPair) load() error {
	cert, err := tls.LoadX509KeyPair(kp.certFile, kp.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	kp.mu.Lock()
	kp.cert = &cert
	kp.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (kp *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	kp.mu.RLock()
	defer kp.mu.RUnlock()
	return kp.cert, nil
}
