package objdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/ipc"
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("objdb: key not found")

// Key prefixes.
const (
	PrefixConnections = "stats.ipcs."
	PrefixServices    = "stats.services."
	PrefixMembers     = "runtime.members."
)

// DB is an in-memory object database for runtime statistics. Values are
// stored as strings except counters, which are big-endian uint64.
type DB struct {
	db     *badger.DB
	logger *slog.Logger

	writes atomic.Uint64

	metricsKeys   prometheus.Gauge
	metricsWrites prometheus.GaugeFunc

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open starts an empty in-memory database.
func Open(logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open objdb: %w", err)
	}

	return &DB{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

var _ ipc.StatsDB = (*DB)(nil)

// ConnectionCreated records a new IPC connection.
func (d *DB) ConnectionCreated(name string, info ipc.ConnectionInfo) error {
	base := PrefixConnections + name + "."
	return d.update(func(txn *badger.Txn) error {
		if err := setString(txn, base+"service.id", fmt.Sprintf("%d", uint16(info.Service))); err != nil {
			return err
		}
		if err := setString(txn, base+"service.name", info.Service.String()); err != nil {
			return err
		}
		if err := setString(txn, base+"client.pid", fmt.Sprintf("%d", info.PID)); err != nil {
			return err
		}
		return setString(txn, base+"created", time.Now().UTC().Format(time.RFC3339Nano))
	})
}

// ConnectionUpdated overwrites the statistics of one connection.
func (d *DB) ConnectionUpdated(name string, st ipc.ConnectionStats) error {
	base := PrefixConnections + name + "."
	values := map[string]uint64{
		"requests":           st.Requests,
		"responses":          st.Responses,
		"dispatched":         st.Events,
		"send_retries":       st.SendRetries,
		"recv_retries":       st.RecvRetries,
		"queue_size":         uint64(st.QueueSize),
		"flow_control":       uint64(st.FlowControl),
		"flow_control_count": st.FlowControlCount,
		"invalid_request":    st.InvalidRequest,
		"overload":           st.Overload,
	}
	return d.update(func(txn *badger.Txn) error {
		for k, v := range values {
			if err := setUint(txn, base+k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConnectionClosed removes every key of the connection.
func (d *DB) ConnectionClosed(name string) error {
	return d.deletePrefix(PrefixConnections + name + ".")
}

// AddCounters adds each delta to its counter under the services prefix.
// Keys are relative to that prefix.
func (d *DB) AddCounters(deltas map[string]uint64) error {
	return d.update(func(txn *badger.Txn) error {
		for k, delta := range deltas {
			key := PrefixServices + strings.TrimPrefix(k, "services.")
			cur, err := getUint(txn, key)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := setUint(txn, key, cur+delta); err != nil {
				return err
			}
		}
		return nil
	})
}

// MemberUpdated records a membership transition for one node.
func (d *DB) MemberUpdated(m service.Member, status string) error {
	base := fmt.Sprintf("%s%d.", PrefixMembers, m.NodeID)
	return d.update(func(txn *badger.Txn) error {
		if status == "joined" {
			n, err := getUint(txn, base+"join_count")
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := setUint(txn, base+"join_count", n+1); err != nil {
				return err
			}
		}
		if m.Addr != nil {
			if err := setString(txn, base+"ip", m.Addr.String()); err != nil {
				return err
			}
		}
		if m.Name != "" {
			if err := setString(txn, base+"name", m.Name); err != nil {
				return err
			}
		}
		return setString(txn, base+"status", status)
	})
}

// Get returns the raw value stored at key.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

// GetUint returns the counter stored at key.
func (d *DB) GetUint(ctx context.Context, key string) (uint64, error) {
	v, err := d.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("objdb: %s is not a counter", key)
	}
	return binary.BigEndian.Uint64(v), nil
}

// Scan calls fn for every key with the given prefix in key order, with
// values rendered as strings. Iteration stops when fn returns false.
func (d *DB) Scan(ctx context.Context, prefix string, fn func(key, value string) bool) error {
	return d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(string(item.Key()), render(item.Key(), v)) {
				return nil
			}
		}
		return nil
	})
}

// Snapshot returns every key under prefix.
func (d *DB) Snapshot(ctx context.Context, prefix string) (map[string]string, error) {
	out := make(map[string]string)
	err := d.Scan(ctx, prefix, func(k, v string) bool {
		out[k] = v
		return true
	})
	return out, err
}

// Close shuts down the database.
func (d *DB) Close() error {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	if d.doneCh != nil {
		<-d.doneCh
	}
	return d.db.Close()
}

// RegisterMetrics exports key count and write gauges to registry.
func (d *DB) RegisterMetrics(registry *prometheus.Registry) *DB {
	d.metricsKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "corosync",
		Subsystem: "objdb",
		Name:      "keys",
		Help:      "Number of keys in the object database",
	})
	d.metricsWrites = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "corosync",
		Subsystem: "objdb",
		Name:      "writes",
		Help:      "Write transactions committed to the object database",
	}, func() float64 { return float64(d.writes.Load()) })

	registry.MustRegister(d.metricsKeys, d.metricsWrites)

	d.doneCh = make(chan struct{})
	go d.metricsUpdateLoop()

	return d
}

func (d *DB) metricsUpdateLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.metricsKeys.Set(float64(d.countKeys()))
		case <-d.stopCh:
			return
		}
	}
}

func (d *DB) countKeys() int {
	n := 0
	_ = d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (d *DB) update(fn func(txn *badger.Txn) error) error {
	if err := d.db.Update(fn); err != nil {
		return err
	}
	d.writes.Add(1)
	return nil
}

func (d *DB) deletePrefix(prefix string) error {
	var keys [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}
	return d.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func setString(txn *badger.Txn, key, value string) error {
	return txn.Set([]byte(key), []byte(value))
}

func setUint(txn *badger.Txn, key string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return txn.Set([]byte(key), buf[:])
}

func getUint(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(b []byte) error {
		if len(b) == 8 {
			v = binary.BigEndian.Uint64(b)
		}
		return nil
	})
	return v, err
}

// counterKeys are stored as uint64 and rendered in decimal.
var counterKeys = []string{
	".requests", ".responses", ".dispatched", ".send_retries", ".recv_retries",
	".queue_size", ".flow_control", ".flow_control_count", ".invalid_request",
	".overload", ".join_count", ".tx", ".rx",
}

func render(key, value []byte) string {
	if len(value) == 8 {
		k := string(key)
		for _, suffix := range counterKeys {
			if strings.HasSuffix(k, suffix) {
				return fmt.Sprintf("%d", binary.BigEndian.Uint64(value))
			}
		}
	}
	return string(value)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
