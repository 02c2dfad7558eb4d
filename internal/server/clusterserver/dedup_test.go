package clusterserver

import "testing"

func TestSeqWindow_Accept(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint64
		want []bool
	}{
		{"in order", []uint64{1, 2, 3}, []bool{true, true, true}},
		{"repeats", []uint64{1, 1, 2, 1, 2}, []bool{true, false, true, false, false}},
		{"reordered", []uint64{3, 1, 2, 3, 1}, []bool{true, true, true, false, false}},
		{"zero", []uint64{0}, []bool{false}},
		{"too old", []uint64{2000, 900, 977, 1999}, []bool{true, false, true, true}},
		{"jump clears", []uint64{5, 5 + seqWindowSize, 5 + 2*seqWindowSize}, []bool{true, true, true}},
		{"slot reused after advance", []uint64{1, 1 + seqWindowSize, 1}, []bool{true, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w seqWindow
			for i, seq := range tt.seqs {
				if got := w.accept(seq); got != tt.want[i] {
					t.Errorf("accept(%d) at step %d = %v, want %v", seq, i, got, tt.want[i])
				}
			}
		})
	}
}

func TestDedup_ForgetResetsOrigin(t *testing.T) {
	d := newDedup()
	if !d.accept(7, 1) || d.accept(7, 1) {
		t.Fatal("first frame should pass and its repeat should not")
	}
	if !d.accept(8, 1) {
		t.Error("origins must be tracked separately")
	}

	d.forget(7)
	if !d.accept(7, 1) {
		t.Error("frame from a rejoined node was dropped")
	}
}

func TestBroadcast_ReceiveDropsRepeats(t *testing.T) {
	b := NewBroadcast(BroadcastConfig{NodeID: 1})
	defer b.Close()

	var delivered []string
	b.OnDeliver(func(_ uint32, msg []byte, _ bool) { delivered = append(delivered, string(msg)) })

	first, _ := encodeFrame(2, 1, []byte("one"), nil)
	second, _ := encodeFrame(2, 2, []byte("two"), nil)
	for _, f := range [][]byte{first, first, second, first, second} {
		b.NotifyMsg(f)
	}
	if len(delivered) != 2 || delivered[0] != "one" || delivered[1] != "two" {
		t.Fatalf("delivered = %v, want [one two]", delivered)
	}

	b.MembersChanged(2)
	b.NotifyMsg(first)
	if len(delivered) != 3 {
		t.Errorf("delivered = %v, want the restarted node's first frame", delivered)
	}
}
