package ipc

import (
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
)

func TestStatus(t *testing.T) {
	tc := newTestCore(1)
	addAcceptor(t, tc, domain.ServiceCPG)
	tc.connect(domain.ServiceCPG)
	tc.connect(domain.ServiceCFG)

	st := tc.Status()
	if st.LocalNodeID != 1 || st.RingSeq != 4 || len(st.Members) != 1 {
		t.Errorf("cluster view = node %d ring %d members %d", st.LocalNodeID, st.RingSeq, len(st.Members))
	}
	if !st.Quorate || st.Syncing {
		t.Errorf("quorate = %v syncing = %v, want true false", st.Quorate, st.Syncing)
	}
	if st.Connections != 2 {
		t.Errorf("Connections = %d, want 2", st.Connections)
	}
	if d, ok := st.Directives["cpg"]; !ok || d != domain.DirectiveOff {
		t.Errorf("Directives = %v, want cpg OFF", st.Directives)
	}
}
