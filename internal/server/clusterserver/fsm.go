package clusterserver

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/raft"
)

// LogEntryType defines the type of Raft log entry.
type LogEntryType uint8

const (
	// LogEntryRingEpoch records a membership ring agreed by the leader.
	LogEntryRingEpoch LogEntryType = 1
)

// LogEntry represents a Raft log entry.
type LogEntry struct {
	Type    LogEntryType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RingEpoch is the payload of LogEntryRingEpoch.
type RingEpoch struct {
	RingSeq uint64   `json:"ring_seq"`
	Leader  string   `json:"leader"`
	Members []uint32 `json:"members"`
}

// EncodeRingEpoch builds the log entry for e.
func EncodeRingEpoch(e RingEpoch) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(LogEntry{Type: LogEntryRingEpoch, Payload: payload})
}

// FSM keeps the latest ring agreed through the raft log. Ring sequence
// numbers are local to the leader that recorded them, so log order alone
// decides which ring is current.
type FSM struct {
	mu      sync.RWMutex
	current RingEpoch
	applied uint64

	logger *slog.Logger
}

// NewFSM creates a new Raft FSM.
func NewFSM(logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM. A corrupt entry is fatal.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var entry LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("FATAL: failed to unmarshal log entry - data corrupted",
			"error", err,
			"log_index", log.Index,
			"log_term", log.Term)
		panic(fmt.Sprintf("FSM.Apply: unmarshal failed at index=%d: %v", log.Index, err))
	}

	switch entry.Type {
	case LogEntryRingEpoch:
		var epoch RingEpoch
		if err := json.Unmarshal(entry.Payload, &epoch); err != nil {
			f.logger.Error("FATAL: failed to unmarshal ring epoch payload", "error", err)
			panic(fmt.Sprintf("FSM.Apply: ring epoch unmarshal failed at index=%d: %v", log.Index, err))
		}
		f.applyRingEpoch(epoch)
	default:
		f.logger.Error("FATAL: unknown log entry type",
			"type", entry.Type,
			"log_index", log.Index)
		panic(fmt.Sprintf("FSM.Apply: unknown log type %d at index=%d", entry.Type, log.Index))
	}
	return nil
}

func (f *FSM) applyRingEpoch(e RingEpoch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applied++
	sort.Slice(e.Members, func(i, j int) bool { return e.Members[i] < e.Members[j] })
	f.current = e

	f.logger.Debug("ring epoch applied",
		"ring_seq", e.RingSeq,
		"leader", e.Leader,
		"members", len(e.Members))
}

// Current returns the latest agreed ring.
func (f *FSM) Current() RingEpoch {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e := f.current
	e.Members = append([]uint32(nil), f.current.Members...)
	return e
}

// Applied returns the number of ring epochs applied.
func (f *FSM) Applied() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.applied
}

type fsmState struct {
	Current RingEpoch `json:"current"`
	Applied uint64    `json:"applied"`
}

// Snapshot creates a snapshot of the FSM state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state := fsmState{Current: f.current, Applied: f.applied}
	state.Current.Members = append([]uint32(nil), f.current.Members...)
	return &fsmSnapshot{state: state}, nil
}

// Restore replaces the FSM state from a gzip-compressed snapshot.
func (f *FSM) Restore(r io.ReadCloser) error {
	defer r.Close()

	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var state fsmState
	if err := json.NewDecoder(gzReader).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.current = state.Current
	f.applied = state.Applied
	f.mu.Unlock()

	f.logger.Info("fsm state restored from snapshot",
		"ring_seq", state.Current.RingSeq,
		"applied", state.Applied)
	return nil
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state fsmState
}

// Persist writes the snapshot to the sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		gzWriter := gzip.NewWriter(sink)
		if err := json.NewEncoder(gzWriter).Encode(s.state); err != nil {
			gzWriter.Close()
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := gzWriter.Close(); err != nil {
			return fmt.Errorf("close gzip writer: %w", err)
		}
		return nil
	}()

	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release is called when the snapshot is no longer needed.
func (s *fsmSnapshot) Release() {}
