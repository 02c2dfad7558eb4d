package config

import "time"

// Default configuration values.
const (
	DefaultClusterName = "corosync"

	DefaultSocketDir        = "/var/run/corosync"
	DefaultMaxRequestSize   = 1 << 20
	DefaultEventBufferBytes = 1 << 20
	DefaultResponseBuffer   = 64
	DefaultMaxQueueBytes    = 8 << 20
	DefaultStatsInterval    = 5 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseRetry       = 100 * time.Millisecond
	DefaultMinFreeFDs       = 64

	DefaultFastRate        = 2000
	DefaultNormalRate      = 500
	DefaultSlowRate        = 50
	DefaultBurst           = 16
	DefaultRecheckInterval = time.Millisecond

	DefaultBindAddr       = "0.0.0.0"
	DefaultBindPort       = 5405
	DefaultMaxMessageSize = 1 << 20
	DefaultQueueSlots     = 512
	DefaultSlotSize       = 1024
	DefaultCryptoCipher   = "auto"

	DefaultQuorumProvider = QuorumVotes
	DefaultRaftBindAddr   = "127.0.0.1:5406"
	DefaultRaftDataDir    = "/var/lib/corosync/raft"

	DefaultSettleTimeout = 200 * time.Millisecond

	DefaultHTTPAddr  = "127.0.0.1:5480"
	DefaultRateLimit = 50

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Node: NodeSection{
			ClusterName: DefaultClusterName,
		},
		IPC: IPCSection{
			SocketDir:        DefaultSocketDir,
			MaxRequestSize:   DefaultMaxRequestSize,
			EventBufferBytes: DefaultEventBufferBytes,
			ResponseBuffer:   DefaultResponseBuffer,
			MaxQueueBytes:    DefaultMaxQueueBytes,
			StatsInterval:    DefaultStatsInterval,
			WriteTimeout:     DefaultWriteTimeout,
			CloseRetry:       DefaultCloseRetry,
			MinFreeFDs:       DefaultMinFreeFDs,
		},
		FlowControl: FlowControlSection{
			FastRate:        DefaultFastRate,
			NormalRate:      DefaultNormalRate,
			SlowRate:        DefaultSlowRate,
			Burst:           DefaultBurst,
			RecheckInterval: DefaultRecheckInterval,
		},
		Transport: TransportSection{
			BindAddr:       DefaultBindAddr,
			BindPort:       DefaultBindPort,
			MaxMessageSize: DefaultMaxMessageSize,
			QueueSlots:     DefaultQueueSlots,
			SlotSize:       DefaultSlotSize,
			CryptoCipher:   DefaultCryptoCipher,
		},
		Quorum: QuorumSection{
			Provider: DefaultQuorumProvider,
			Raft: RaftSection{
				BindAddr: DefaultRaftBindAddr,
				DataDir:  DefaultRaftDataDir,
			},
		},
		Sync: SyncSection{
			SettleTimeout: DefaultSettleTimeout,
		},
		HTTP: HTTPSection{
			Addr:      DefaultHTTPAddr,
			AllowList: []string{"127.0.0.1", "::1"},
			RateLimit: DefaultRateLimit,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
