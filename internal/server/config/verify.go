package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/russellb/corosync/internal/telemetry/logger"
	"github.com/russellb/corosync/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyIPC(&cfg.IPC); err != nil {
		return err
	}
	if err := verifyFlowControl(&cfg.FlowControl); err != nil {
		return err
	}
	if err := verifyTransport(&cfg.Transport); err != nil {
		return err
	}
	if err := verifyQuorum(&cfg.Quorum); err != nil {
		return err
	}
	if cfg.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
			return fmt.Errorf("http.addr: %w", err)
		}
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("http.tls_cert_file and http.tls_key_file must be set together")
	}
	if cfg.HTTP.TLSClientCAFile != "" && cfg.HTTP.TLSCertFile == "" {
		return errors.New("http.tls_client_ca_file requires http.tls_cert_file")
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Sync.SettleTimeout < 0 {
		return errors.New("sync.settle_timeout must not be negative")
	}
	return nil
}

func verifyIPC(cfg *IPCSection) error {
	if cfg.SocketDir == "" {
		return errors.New("ipc.socket_dir is required")
	}
	if cfg.MaxRequestSize < 64 {
		return errors.New("ipc.max_request_size must be at least 64")
	}
	if cfg.ResponseBuffer < 1 {
		return errors.New("ipc.response_buffer must be at least 1")
	}
	if cfg.MaxQueueBytes < 0 || cfg.EventBufferBytes < 0 || cfg.MinFreeFDs < 0 {
		return errors.New("ipc sizes must not be negative")
	}
	return nil
}

func verifyFlowControl(cfg *FlowControlSection) error {
	if cfg.SlowRate <= 0 || cfg.NormalRate < cfg.SlowRate || cfg.FastRate < cfg.NormalRate {
		return errors.New("flow_control rates must satisfy 0 < slow_rate <= normal_rate <= fast_rate")
	}
	if cfg.Burst < 1 {
		return errors.New("flow_control.burst must be at least 1")
	}
	return nil
}

func verifyTransport(cfg *TransportSection) error {
	if cfg.BindPort < 0 || cfg.BindPort > 65535 {
		return fmt.Errorf("transport.bind_port %d out of range", cfg.BindPort)
	}
	if cfg.SlotSize < 1 || cfg.QueueSlots < 1 {
		return errors.New("transport.slot_size and transport.queue_slots must be positive")
	}
	if cfg.MaxMessageSize > cfg.SlotSize*cfg.QueueSlots {
		return errors.New("transport.max_message_size must fit in the queue")
	}
	if _, err := adaptive.ParseCipherType(cfg.CryptoCipher); err != nil {
		return fmt.Errorf("transport.crypto_cipher: %w", err)
	}
	if cfg.CryptoKeyFile != "" {
		if _, err := os.Stat(cfg.CryptoKeyFile); err != nil {
			return fmt.Errorf("transport.crypto_key_file: %w", err)
		}
	} else if cfg.CryptoKey != "" && len(cfg.CryptoKey) < adaptive.MinAuthKeySize {
		return fmt.Errorf("transport.crypto_key must be at least %d bytes", adaptive.MinAuthKeySize)
	}
	return nil
}

func verifyQuorum(cfg *QuorumSection) error {
	switch strings.ToLower(cfg.Provider) {
	case QuorumVotes:
		if cfg.ExpectedVotes < 0 {
			return errors.New("quorum.expected_votes must not be negative")
		}
	case QuorumRaft:
		if cfg.Raft.DataDir == "" {
			return errors.New("quorum.raft.data_dir is required")
		}
		if _, _, err := net.SplitHostPort(cfg.Raft.BindAddr); err != nil {
			return fmt.Errorf("quorum.raft.bind_addr: %w", err)
		}
		if err := os.MkdirAll(cfg.Raft.DataDir, 0750); err != nil {
			return errors.New("cannot create raft data directory: " + err.Error())
		}
	default:
		return fmt.Errorf("quorum.provider %q is not one of %s, %s", cfg.Provider, QuorumVotes, QuorumRaft)
	}
	return nil
}
