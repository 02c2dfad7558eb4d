package clusterserver

import (
	"bytes"
	"io"
	"testing"

	"github.com/hashicorp/raft"
)

type fakeSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *fakeSink) ID() string   { return "test" }
func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) Cancel() error {
	s.cancelled = true
	return nil
}

func applyEpoch(t *testing.T, f *FSM, index uint64, e RingEpoch) {
	t.Helper()
	data, err := EncodeRingEpoch(e)
	if err != nil {
		t.Fatal(err)
	}
	f.Apply(&raft.Log{Index: index, Data: data})
}

func TestFSM_ApplyRingEpoch(t *testing.T) {
	f := NewFSM(discardLogger())

	applyEpoch(t, f, 1, RingEpoch{RingSeq: 5, Leader: "a", Members: []uint32{3, 1, 2}})
	applyEpoch(t, f, 2, RingEpoch{RingSeq: 2, Leader: "b", Members: []uint32{2}})

	cur := f.Current()
	if cur.RingSeq != 2 || cur.Leader != "b" {
		t.Errorf("Current() = %+v, want the last applied ring", cur)
	}
	if f.Applied() != 2 {
		t.Errorf("Applied() = %d, want 2", f.Applied())
	}

	applyEpoch(t, f, 3, RingEpoch{RingSeq: 3, Leader: "b", Members: []uint32{9, 4}})
	cur = f.Current()
	if len(cur.Members) != 2 || cur.Members[0] != 4 || cur.Members[1] != 9 {
		t.Errorf("Members = %v, want sorted [4 9]", cur.Members)
	}

	cur.Members[0] = 100
	if f.Current().Members[0] != 4 {
		t.Error("Current() must return a copy")
	}
}

func TestFSM_ApplyCorruptPanics(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{")},
		{"unknown type", []byte(`{"type":99,"payload":{}}`)},
		{"bad payload", []byte(`{"type":1,"payload":"x"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Apply should panic on a corrupt entry")
				}
			}()
			NewFSM(discardLogger()).Apply(&raft.Log{Index: 1, Data: tt.data})
		})
	}
}

func TestFSM_SnapshotRestore(t *testing.T) {
	f := NewFSM(discardLogger())
	applyEpoch(t, f, 1, RingEpoch{RingSeq: 7, Leader: "a", Members: []uint32{1, 2}})

	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	sink := &fakeSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	snap.Release()

	restored := NewFSM(discardLogger())
	if err := restored.Restore(io.NopCloser(&sink.Buffer)); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	cur := restored.Current()
	if cur.RingSeq != 7 || len(cur.Members) != 2 || restored.Applied() != 1 {
		t.Errorf("restored = %+v applied %d", cur, restored.Applied())
	}

	if err := restored.Restore(io.NopCloser(bytes.NewReader([]byte("not gzip")))); err == nil {
		t.Error("Restore of garbage should fail")
	}
}
