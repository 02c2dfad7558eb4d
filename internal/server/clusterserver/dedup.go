package clusterserver

import "sync"

// seqWindowSize is how many sequence numbers behind the newest one are
// still tracked per origin. Older frames are treated as repeats.
const seqWindowSize = 1024

// seqWindow accepts each sequence number of one origin at most once.
// Gossip retransmits a frame several times and may reorder frames, so
// it keeps a bitmap of the last seqWindowSize numbers.
type seqWindow struct {
	high uint64
	seen [seqWindowSize / 64]uint64
}

func (w *seqWindow) bit(seq uint64) (int, uint64) {
	i := seq % seqWindowSize
	return int(i / 64), 1 << (i % 64)
}

// accept reports whether seq has not been seen before and records it.
func (w *seqWindow) accept(seq uint64) bool {
	if seq == 0 {
		return false
	}
	if seq > w.high {
		if seq-w.high >= seqWindowSize {
			w.seen = [seqWindowSize / 64]uint64{}
		} else {
			for s := w.high + 1; s < seq; s++ {
				word, mask := w.bit(s)
				w.seen[word] &^= mask
			}
		}
		word, mask := w.bit(seq)
		w.seen[word] |= mask
		w.high = seq
		return true
	}
	if w.high-seq >= seqWindowSize {
		return false
	}
	word, mask := w.bit(seq)
	if w.seen[word]&mask != 0 {
		return false
	}
	w.seen[word] |= mask
	return true
}

// dedup drops repeated frames per origin node. State of a node is
// forgotten when it joins or leaves, since a restarted node numbers its
// frames from 1 again.
type dedup struct {
	mu      sync.Mutex
	windows map[uint32]*seqWindow
}

func newDedup() *dedup {
	return &dedup{windows: make(map[uint32]*seqWindow)}
}

func (d *dedup) accept(nodeID uint32, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[nodeID]
	if !ok {
		w = &seqWindow{}
		d.windows[nodeID] = w
	}
	return w.accept(seq)
}

func (d *dedup) forget(nodeID uint32) {
	d.mu.Lock()
	delete(d.windows, nodeID)
	d.mu.Unlock()
}
