package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/ipc"
	"github.com/russellb/corosync/pkg/crypto/adaptive"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.IPC.SocketDir != DefaultSocketDir {
		t.Errorf("IPC.SocketDir = %q, want %q", cfg.IPC.SocketDir, DefaultSocketDir)
	}
	if cfg.Quorum.Provider != QuorumVotes {
		t.Errorf("Quorum.Provider = %q, want %q", cfg.Quorum.Provider, QuorumVotes)
	}
	if cfg.Sync.SettleTimeout != DefaultSettleTimeout {
		t.Errorf("Sync.SettleTimeout = %v, want %v", cfg.Sync.SettleTimeout, DefaultSettleTimeout)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"empty socket dir", func(c *ServerConfig) { c.IPC.SocketDir = "" }, "ipc.socket_dir"},
		{"tiny request size", func(c *ServerConfig) { c.IPC.MaxRequestSize = 8 }, "max_request_size"},
		{"no response buffer", func(c *ServerConfig) { c.IPC.ResponseBuffer = 0 }, "response_buffer"},
		{"negative min fds", func(c *ServerConfig) { c.IPC.MinFreeFDs = -1 }, "negative"},
		{"slow above normal", func(c *ServerConfig) { c.FlowControl.SlowRate = 1000 }, "flow_control rates"},
		{"zero burst", func(c *ServerConfig) { c.FlowControl.Burst = 0 }, "burst"},
		{"bad port", func(c *ServerConfig) { c.Transport.BindPort = 70000 }, "bind_port"},
		{"message exceeds queue", func(c *ServerConfig) { c.Transport.QueueSlots = 1 }, "max_message_size"},
		{"unknown cipher", func(c *ServerConfig) { c.Transport.CryptoCipher = "rot13" }, "crypto_cipher"},
		{"short key", func(c *ServerConfig) { c.Transport.CryptoKey = "short" }, "crypto_key"},
		{"missing key file", func(c *ServerConfig) { c.Transport.CryptoKeyFile = filepath.Join(dir, "none") }, "crypto_key_file"},
		{"unknown provider", func(c *ServerConfig) { c.Quorum.Provider = "paxos" }, "quorum.provider"},
		{"negative votes", func(c *ServerConfig) { c.Quorum.ExpectedVotes = -1 }, "expected_votes"},
		{"raft without dir", func(c *ServerConfig) {
			c.Quorum.Provider = QuorumRaft
			c.Quorum.Raft.DataDir = ""
		}, "data_dir"},
		{"raft bad addr", func(c *ServerConfig) {
			c.Quorum.Provider = QuorumRaft
			c.Quorum.Raft.DataDir = dir
			c.Quorum.Raft.BindAddr = "nope"
		}, "raft.bind_addr"},
		{"bad http addr", func(c *ServerConfig) { c.HTTP.Addr = "localhost" }, "http.addr"},
		{"cert without key", func(c *ServerConfig) { c.HTTP.TLSCertFile = "/etc/tls.crt" }, "tls_key_file"},
		{"client ca without tls", func(c *ServerConfig) { c.HTTP.TLSClientCAFile = "/etc/ca.pem" }, "tls_client_ca_file"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "chatty" }, "log.level"},
		{"negative settle", func(c *ServerConfig) { c.Sync.SettleTimeout = -1 }, "settle_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_RaftCreatesDataDir(t *testing.T) {
	cfg := Default()
	cfg.Quorum.Provider = QuorumRaft
	cfg.Quorum.Raft.DataDir = filepath.Join(t.TempDir(), "sub", "raft")

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if _, err := os.Stat(cfg.Quorum.Raft.DataDir); err != nil {
		t.Errorf("raft data dir not created: %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Transport.CryptoKey = "super-secret-key-1234567890"

	sanitized := Sanitize(cfg)

	if cfg.Transport.CryptoKey != "super-secret-key-1234567890" {
		t.Error("original config should not be modified")
	}
	if sanitized.Transport.CryptoKey == cfg.Transport.CryptoKey {
		t.Error("sanitized config should mask the key")
	}
	if Sanitize(Default()).Transport.CryptoKey != "" {
		t.Error("empty key should remain empty")
	}

	cfg.IPC.UIDGID.UIDs = []uint32{1000}
	Sanitize(cfg).IPC.UIDGID.UIDs[0] = 0
	if cfg.IPC.UIDGID.UIDs[0] != 1000 {
		t.Error("sanitized copy shares the uid list")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"a", "<1 bytes>"},
		{"1234567890", "<10 bytes>"},
	}

	for _, tt := range tests {
		if result := maskSecret(tt.input); result != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestNodeName(t *testing.T) {
	cfg := Default()
	name := NodeName(cfg, discardLogger())
	if name == "" || cfg.Node.Name != name {
		t.Fatalf("NodeName() = %q, cfg.Node.Name = %q", name, cfg.Node.Name)
	}
	if again := NodeName(cfg, discardLogger()); again != name {
		t.Errorf("second NodeName() = %q, want %q", again, name)
	}
}

func TestToLocalServerConfig(t *testing.T) {
	cfg := Default()
	cfg.IPC.SocketDir = "/tmp/cs"
	cfg.FlowControl.SlowRate = 7

	lc := ToLocalServerConfig(cfg, []domain.ServiceID{domain.ServiceCPG})
	if lc.SocketDir != "/tmp/cs" || len(lc.Services) != 1 {
		t.Errorf("config = %+v", lc)
	}
	if lc.Rates.Slow != 7 || lc.Rates.Burst != DefaultBurst {
		t.Errorf("rates = %+v", lc.Rates)
	}
}

func TestApplyCore(t *testing.T) {
	cfg := Default()
	cfg.IPC.UIDGID = UIDGIDConfig{UIDs: []uint32{1000}, GIDs: []uint32{50}}

	var core ipc.Config
	ApplyCore(cfg, &core)
	if core.MaxQueueBytes != DefaultMaxQueueBytes || core.SettleTimeout != DefaultSettleTimeout {
		t.Errorf("core = %+v", core)
	}
	if len(core.AllowedUIDs) != 1 || core.AllowedGIDs[0] != 50 {
		t.Errorf("access = %v %v", core.AllowedUIDs, core.AllowedGIDs)
	}
}

func TestToBroadcastConfig(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "authkey")
	if err := os.WriteFile(keyFile, []byte("0123456789abcdef0123"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		mutate     func(*ServerConfig)
		wantCipher adaptive.CipherType
		wantErr    bool
	}{
		{"plain", func(c *ServerConfig) {}, "", false},
		{"inline key", func(c *ServerConfig) {
			c.Transport.CryptoKey = "0123456789abcdef"
			c.Transport.CryptoCipher = string(adaptive.CipherChaCha20)
		}, adaptive.CipherChaCha20, false},
		{"key file", func(c *ServerConfig) {
			c.Transport.CryptoKeyFile = keyFile
			c.Transport.CryptoCipher = string(adaptive.CipherAESGCM)
		}, adaptive.CipherAESGCM, false},
		{"short key", func(c *ServerConfig) { c.Transport.CryptoKey = "x" }, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			bc, err := ToBroadcastConfig(cfg, 7, discardLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToBroadcastConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if bc.NodeID != 7 || bc.QueueSlots != DefaultQueueSlots {
				t.Errorf("config = %+v", bc)
			}
			switch {
			case tt.wantCipher == "" && bc.Cipher != nil:
				t.Error("unexpected cipher")
			case tt.wantCipher != "" && (bc.Cipher == nil || bc.Cipher.Type() != tt.wantCipher):
				t.Errorf("cipher = %v, want %s", bc.Cipher, tt.wantCipher)
			}
		})
	}
}

func TestToDiscoveryConfig(t *testing.T) {
	cfg := Default()
	cfg.Transport.Seeds = []string{"10.0.0.1:5405"}

	dc := ToDiscoveryConfig(cfg, "n1", nil, discardLogger())
	if dc.NodeName != "n1" || dc.BindPort != DefaultBindPort || len(dc.SeedNodes) != 1 {
		t.Errorf("config = %+v", dc)
	}
	if dc.RaftAddr != "" {
		t.Error("votes provider should not advertise a raft address")
	}

	cfg.Quorum.Provider = QuorumRaft
	if dc := ToDiscoveryConfig(cfg, "n1", nil, discardLogger()); dc.RaftAddr != DefaultRaftBindAddr {
		t.Errorf("RaftAddr = %q", dc.RaftAddr)
	}
	if rc := ToRaftConfig(cfg, "n1", discardLogger()); rc.DataDir != DefaultRaftDataDir || rc.NodeName != "n1" {
		t.Errorf("raft config = %+v", rc)
	}
}
