package ipc

import (
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		svc     domain.ServiceID
		fn      int
		slots   int
		quorate bool
		syncing bool
		want    domain.Decision
	}{
		{"gated admit", domain.ServiceCPG, service.CPGReqJoin, 1, true, false, domain.DecisionAdmit},
		{"gated zero slots", domain.ServiceCPG, service.CPGReqJoin, 0, true, false, domain.DecisionOverloaded},
		{"gated zero slots while syncing", domain.ServiceCPG, service.CPGReqJoin, 0, true, true, domain.DecisionOverloaded},
		{"gated syncing", domain.ServiceCPG, service.CPGReqJoin, 2, true, true, domain.DecisionSyncBusy},
		{"ungated zero slots", domain.ServiceCPG, service.CPGReqMembershipGet, 0, true, true, domain.DecisionAdmit},
		{"reservation failed", domain.ServiceCPG, service.CPGReqJoin, -1, true, false, domain.DecisionInvalid},
		{"reservation failed inquorate", domain.ServiceCPG, service.CPGReqJoin, -1, false, false, domain.DecisionInvalid},
		{"inquorate gated", domain.ServiceCPG, service.CPGReqJoin, 1, false, false, domain.DecisionUnreachable},
		{"inquorate ungated", domain.ServiceCPG, service.CPGReqMembershipGet, 1, false, false, domain.DecisionUnreachable},
		{"inquorate zero slots", domain.ServicePLoad, service.PLoadReqStart, 0, false, false, domain.DecisionUnreachable},
		{"tolerant inquorate", domain.ServiceQuorum, service.QuorumReqGetQuorate, 0, false, true, domain.DecisionAdmit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCore(tt.slots)
			tc.Core.quorate = tt.quorate
			tc.Core.syncing = tt.syncing
			desc, _ := tc.registry.Lookup(tt.svc)

			got, slots := tc.Evaluate(desc, tt.fn, domain.RequestHeader{Size: 64, ID: int32(tt.fn)})
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
			if got == domain.DecisionInvalid && slots != reservationFailed {
				t.Errorf("slots = %d, want %d", slots, reservationFailed)
			}
		})
	}
}

func TestEvaluate_ZeroSlotsNeverAdmitsGated(t *testing.T) {
	tc := newTestCore(0)
	for _, svc := range []domain.ServiceID{domain.ServiceCPG, domain.ServicePLoad} {
		desc, _ := tc.registry.Lookup(svc)
		for fn, engine := range desc.LibEngines {
			if engine.FlowControl != service.FlowControlRequired {
				continue
			}
			for _, syncing := range []bool{false, true} {
				tc.Core.syncing = syncing
				if got, _ := tc.Evaluate(desc, fn, domain.RequestHeader{Size: 32}); got != domain.DecisionOverloaded {
					t.Errorf("%s fn %d syncing=%v: Evaluate() = %v, want Overloaded", desc.Name, fn, syncing, got)
				}
			}
		}
	}
}

func TestEvaluate_InquorateAlwaysUnreachable(t *testing.T) {
	desc, _ := newTestCore(0).registry.Lookup(domain.ServiceCPG)
	for _, slots := range []int{0, 1, 5} {
		for _, syncing := range []bool{false, true} {
			for fn := range desc.LibEngines {
				tc := newTestCore(slots)
				tc.Core.quorate = false
				tc.Core.syncing = syncing
				if got, _ := tc.Evaluate(desc, fn, domain.RequestHeader{Size: 32}); got != domain.DecisionUnreachable {
					t.Errorf("slots=%d syncing=%v fn=%d: Evaluate() = %v, want Unreachable", slots, syncing, fn, got)
				}
			}
		}
	}
}

func TestHandleRequest_ReleasesReservationOnce(t *testing.T) {
	tc := newTestCore(1)
	id, ch := tc.connect(domain.ServiceCPG)

	requests := []struct {
		slots   int
		quorate bool
		syncing bool
		msg     []byte
	}{
		{1, true, false, service.JoinRequest("g", 1)},
		{0, true, false, service.JoinRequest("g", 1)},
		{2, true, true, service.LeaveRequest("g", 1)},
		{3, false, false, service.MembershipRequest("g")},
		{-1, true, false, service.JoinRequest("g", 1)},
		{1, true, false, service.LeaveRequest("g", 1)},
		{0, true, false, service.MembershipRequest("g")},
		{4, true, false, service.McastRequest(domain.GuaranteeAgreed, []byte("x"))},
	}

	successful := 0
	for _, r := range requests {
		tc.transport.reserveResult = r.slots
		tc.Core.quorate = r.quorate
		tc.Core.syncing = r.syncing
		if r.slots >= 0 {
			successful++
		}
		if err := tc.Message(id, r.msg); err != nil {
			t.Fatalf("Message() error = %v", err)
		}
	}

	if tc.transport.released != tc.transport.reserved {
		t.Errorf("released = %d, reserved = %d", tc.transport.released, tc.transport.reserved)
	}
	if tc.transport.releaseCalls != successful {
		t.Errorf("release calls = %d, want %d", tc.transport.releaseCalls, successful)
	}
	if len(ch.responses) == 0 {
		t.Error("expected responses")
	}
}

func TestHandleRequest_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		slots       int
		quorate     bool
		syncing     bool
		msg         []byte
		wantError   domain.Result
		wantInvalid uint64
		wantOver    uint64
	}{
		{"invalid", -1, true, false, service.JoinRequest("g", 1), domain.ResultInvalidParam, 1, 0},
		{"overloaded", 0, true, false, service.JoinRequest("g", 1), domain.ResultTryAgain, 0, 1},
		{"sync busy", 1, true, true, service.JoinRequest("g", 1), domain.ResultTryAgain, 0, 1},
		{"unreachable", 1, false, false, service.JoinRequest("g", 1), domain.ResultTryAgain, 0, 1},
		{"unknown fn", 1, true, false, domain.NewRequest(99, 0), domain.ResultInvalidParam, 1, 0},
		{"size mismatch", 1, true, false, service.JoinRequest("g", 1)[:20], domain.ResultInvalidParam, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCore(tt.slots)
			tc.Core.quorate = tt.quorate
			tc.Core.syncing = tt.syncing
			id, ch := tc.connect(domain.ServiceCPG)

			_ = tc.Message(id, tt.msg)

			got := ch.lastResponse()
			if got.ID != 0 || got.Error != tt.wantError || got.Size != domain.ResponseHeaderSize {
				t.Errorf("response = %+v, want {16 0 %v}", got, tt.wantError)
			}
			conn := tc.conn(id)
			if conn.invalidRequest != tt.wantInvalid {
				t.Errorf("invalid_request = %d, want %d", conn.invalidRequest, tt.wantInvalid)
			}
			if conn.overload != tt.wantOver {
				t.Errorf("overload = %d, want %d", conn.overload, tt.wantOver)
			}
			if len(tc.transport.multicasts) != 0 {
				t.Error("rejected request reached the transport")
			}
		})
	}
}

func TestHandleRequest_AsyncRejectionHasNoReply(t *testing.T) {
	tc := newTestCore(0)
	id, ch := tc.connect(domain.ServiceCPG)

	_ = tc.Message(id, service.McastRequest(domain.GuaranteeAgreed, []byte("x")))

	if len(ch.responses) != 0 {
		t.Errorf("responses = %d, want 0", len(ch.responses))
	}
	if tc.conn(id).overload != 1 {
		t.Errorf("overload = %d, want 1", tc.conn(id).overload)
	}
}

func TestHandleRequest_AdmitDispatches(t *testing.T) {
	tc := newTestCore(1)
	id, ch := tc.connect(domain.ServiceCPG)

	if err := tc.Message(id, service.JoinRequest("g", 42)); err != nil {
		t.Fatalf("Message() error = %v", err)
	}

	got := ch.lastResponse()
	if got.ID != service.CPGResJoin || got.Error != domain.ResultOK {
		t.Errorf("response = %+v, want join OK", got)
	}
	if len(tc.transport.multicasts) != 1 {
		t.Fatalf("multicasts = %d, want 1", len(tc.transport.multicasts))
	}
	if n := tc.counters[counterKey("cpg", 0, "tx")]; n != 1 {
		t.Errorf("tx counter = %d, want 1", n)
	}
}

func TestMessage_UnknownConnection(t *testing.T) {
	tc := newTestCore(1)
	if err := tc.Message(12345, service.JoinRequest("g", 1)); !domain.IsDomainError(err, domain.ErrConnectionGone.Code) {
		t.Errorf("Message() error = %v, want ErrConnectionGone", err)
	}
}
