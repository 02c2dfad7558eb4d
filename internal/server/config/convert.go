package config

import (
	"fmt"
	"log/slog"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/ipc"
	"github.com/russellb/corosync/internal/server/clusterserver"
	"github.com/russellb/corosync/internal/server/localserver"
	"github.com/russellb/corosync/pkg/crypto/adaptive"
)

// NodeName returns the configured node name, generating one when empty.
// The generated name is written back so reloads keep it.
func NodeName(cfg *ServerConfig, logger *slog.Logger) string {
	if cfg.Node.Name == "" {
		cfg.Node.Name = clusterserver.GenerateNodeName()
		logger.Info("generated node name", "node", cfg.Node.Name)
	}
	return cfg.Node.Name
}

// ToLocalServerConfig converts ServerConfig to localserver.Config for the
// given services.
func ToLocalServerConfig(cfg *ServerConfig, services []domain.ServiceID) *localserver.Config {
	return &localserver.Config{
		SocketDir:        cfg.IPC.SocketDir,
		Services:         services,
		MaxRequestSize:   cfg.IPC.MaxRequestSize,
		EventBufferBytes: cfg.IPC.EventBufferBytes,
		ResponseBuffer:   cfg.IPC.ResponseBuffer,
		WriteTimeout:     cfg.IPC.WriteTimeout,
		CloseRetry:       cfg.IPC.CloseRetry,
		Rates: localserver.RateTable{
			Fast:   cfg.FlowControl.FastRate,
			Normal: cfg.FlowControl.NormalRate,
			Slow:   cfg.FlowControl.SlowRate,
			Burst:  cfg.FlowControl.Burst,
		},
	}
}

// ApplyCore copies the IPC settings onto an ipc.Config whose collaborators
// the caller has already set.
func ApplyCore(cfg *ServerConfig, core *ipc.Config) {
	core.MaxQueueBytes = cfg.IPC.MaxQueueBytes
	core.AllowedUIDs = cfg.IPC.UIDGID.UIDs
	core.AllowedGIDs = cfg.IPC.UIDGID.GIDs
	core.RecheckInterval = cfg.FlowControl.RecheckInterval
	core.SettleTimeout = cfg.Sync.SettleTimeout
	core.StatsInterval = cfg.IPC.StatsInterval
}

// ToBroadcastConfig converts ServerConfig to clusterserver.BroadcastConfig.
// Frames are sealed when a key or key file is configured.
func ToBroadcastConfig(cfg *ServerConfig, nodeID uint32, logger *slog.Logger) (clusterserver.BroadcastConfig, error) {
	bc := clusterserver.DefaultBroadcastConfig()
	bc.NodeID = nodeID
	bc.MaxMessageSize = cfg.Transport.MaxMessageSize
	bc.QueueSlots = cfg.Transport.QueueSlots
	bc.SlotSize = cfg.Transport.SlotSize
	bc.Logger = logger

	c, err := frameCipher(cfg)
	if err != nil {
		return clusterserver.BroadcastConfig{}, err
	}
	bc.Cipher = c
	return bc, nil
}

func frameCipher(cfg *ServerConfig) (adaptive.Cipher, error) {
	var (
		key []byte
		err error
	)
	switch {
	case cfg.Transport.CryptoKeyFile != "":
		key, err = adaptive.LoadKeyFile(cfg.Transport.CryptoKeyFile, cfg.Node.ClusterName)
	case cfg.Transport.CryptoKey != "":
		key, err = adaptive.DeriveKey([]byte(cfg.Transport.CryptoKey), cfg.Node.ClusterName)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cluster key: %w", err)
	}

	t, err := adaptive.ParseCipherType(cfg.Transport.CryptoCipher)
	if err != nil {
		return nil, err
	}
	return adaptive.NewWithType(key, t)
}

// ToDiscoveryConfig converts ServerConfig to clusterserver.DiscoveryConfig.
// The caller sets OnChange.
func ToDiscoveryConfig(cfg *ServerConfig, nodeName string, b *clusterserver.Broadcast, logger *slog.Logger) clusterserver.DiscoveryConfig {
	dc := clusterserver.DiscoveryConfig{
		NodeName:  nodeName,
		BindAddr:  cfg.Transport.BindAddr,
		BindPort:  cfg.Transport.BindPort,
		SeedNodes: cfg.Transport.Seeds,
		Broadcast: b,
		Logger:    logger,
	}
	if cfg.Quorum.Provider == QuorumRaft {
		dc.RaftAddr = cfg.Quorum.Raft.BindAddr
	}
	return dc
}

// ToRaftConfig converts ServerConfig to clusterserver.RaftConfig.
func ToRaftConfig(cfg *ServerConfig, nodeName string, logger *slog.Logger) clusterserver.RaftConfig {
	return clusterserver.RaftConfig{
		NodeName:  nodeName,
		BindAddr:  cfg.Quorum.Raft.BindAddr,
		DataDir:   cfg.Quorum.Raft.DataDir,
		Bootstrap: cfg.Quorum.Raft.Bootstrap,
		Logger:    logger,
	}
}
