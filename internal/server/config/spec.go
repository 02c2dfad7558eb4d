package config

import "time"

// ServerConfig is the root configuration for the corosync daemon.
type ServerConfig struct {
	Node        NodeSection        `koanf:"node"`
	IPC         IPCSection         `koanf:"ipc"`
	FlowControl FlowControlSection `koanf:"flow_control"`
	Transport   TransportSection   `koanf:"transport"`
	Quorum      QuorumSection      `koanf:"quorum"`
	Sync        SyncSection        `koanf:"sync"`
	HTTP        HTTPSection        `koanf:"http"`
	Log         LogSection         `koanf:"log"`
}

// NodeSection identifies the local node.
type NodeSection struct {
	// Name is the unique node name. A random name is generated when empty.
	Name string `koanf:"name"`

	// ClusterName namespaces the frame key. Nodes of one cluster must agree.
	ClusterName string `koanf:"cluster_name"`
}

// IPCSection configures the local client sockets and the IPC core.
type IPCSection struct {
	SocketDir        string `koanf:"socket_dir"`
	MaxRequestSize   int    `koanf:"max_request_size"`
	EventBufferBytes int    `koanf:"event_buffer_bytes"`
	ResponseBuffer   int    `koanf:"response_buffer"`

	// MaxQueueBytes bounds the queued events of one connection.
	MaxQueueBytes int `koanf:"max_queue_bytes"`

	UIDGID UIDGIDConfig `koanf:"uidgid"`

	StatsInterval time.Duration `koanf:"stats_interval"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
	CloseRetry    time.Duration `koanf:"close_retry"`

	// MinFreeFDs is the descriptor low-water mark below which new
	// connections are refused.
	MinFreeFDs int `koanf:"min_free_fds"`
}

// UIDGIDConfig lists the non-root users and groups allowed to connect.
// It is reloaded when the configuration file changes.
type UIDGIDConfig struct {
	UIDs []uint32 `koanf:"uids"`
	GIDs []uint32 `koanf:"gids"`
}

// FlowControlSection configures the throttled request rates.
type FlowControlSection struct {
	FastRate        float64       `koanf:"fast_rate"`
	NormalRate      float64       `koanf:"normal_rate"`
	SlowRate        float64       `koanf:"slow_rate"`
	Burst           int           `koanf:"burst"`
	RecheckInterval time.Duration `koanf:"recheck_interval"`
}

// TransportSection configures the gossip transport.
type TransportSection struct {
	BindAddr string   `koanf:"bind_addr"`
	BindPort int      `koanf:"bind_port"`
	Seeds    []string `koanf:"seeds"`

	MaxMessageSize int `koanf:"max_message_size"`
	QueueSlots     int `koanf:"queue_slots"`
	SlotSize       int `koanf:"slot_size"`

	// CryptoKey is an inline shared secret. CryptoKeyFile takes precedence.
	CryptoKey     string `koanf:"crypto_key"`
	CryptoKeyFile string `koanf:"crypto_key_file"`

	// CryptoCipher is "auto", "aes-gcm" or "chacha20-poly1305".
	CryptoCipher string `koanf:"crypto_cipher"`
}

// Quorum providers.
const (
	QuorumVotes = "votes"
	QuorumRaft  = "raft"
)

// QuorumSection selects and configures the quorum provider.
type QuorumSection struct {
	Provider string `koanf:"provider"`

	// ExpectedVotes applies to the votes provider. Zero follows the
	// largest membership seen.
	ExpectedVotes int `koanf:"expected_votes"`

	Raft RaftSection `koanf:"raft"`
}

// RaftSection configures the raft quorum provider.
type RaftSection struct {
	BindAddr  string `koanf:"bind_addr"`
	DataDir   string `koanf:"data_dir"`
	Bootstrap bool   `koanf:"bootstrap"`
}

// SyncSection configures resynchronization after a membership change.
type SyncSection struct {
	SettleTimeout time.Duration `koanf:"settle_timeout"`
}

// HTTPSection configures the status, metrics and admin endpoint.
type HTTPSection struct {
	Addr      string   `koanf:"addr"`
	AllowList []string `koanf:"allow_list"`
	RateLimit int      `koanf:"rate_limit"`

	// TLSCertFile and TLSKeyFile enable TLS. TLSClientCAFile additionally
	// requires client certificates signed by one of its CAs.
	TLSCertFile     string `koanf:"tls_cert_file"`
	TLSKeyFile      string `koanf:"tls_key_file"`
	TLSClientCAFile string `koanf:"tls_client_ca_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
