package ipc

import (
	"encoding/binary"
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// recordingService is a minimal engine that records exec deliveries.
func recordingService(id domain.ServiceID, got *[][]byte, nodes *[]uint32) *service.Descriptor {
	return &service.Descriptor{
		ID: id,
		ExecEngines: []service.ExecEngine{
			{
				Handler: func(api service.API, msg []byte, nodeID uint32) {
					*got = append(*got, append([]byte(nil), msg...))
					*nodes = append(*nodes, nodeID)
				},
				EndianConvert: func(msg []byte) {
					at := domain.RequestHeaderSize
					v := domain.HostOrder.Uint32(msg[at:])
					domain.HostOrder.PutUint32(msg[at:], domain.Swab32(v))
				},
			},
		},
	}
}

func execMessage(order binary.ByteOrder, id int32, value uint32) []byte {
	msg := make([]byte, domain.RequestHeaderSize+4)
	order.PutUint32(msg[0:], uint32(len(msg)))
	order.PutUint32(msg[4:], uint32(id))
	order.PutUint32(msg[8:], value)
	return msg
}

func otherOrder() binary.ByteOrder {
	if domain.ByteOrderMark() == 'L' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func newDispatchCore(t *testing.T) (*testCore, *[][]byte, *[]uint32) {
	t.Helper()
	tc := newTestCore(1)
	var got [][]byte
	var nodes []uint32
	if err := tc.registry.Register(recordingService(domain.ServiceEVS, &got, &nodes)); err != nil {
		t.Fatal(err)
	}
	return tc, &got, &nodes
}

func TestDeliver_SameOrder(t *testing.T) {
	tc, got, nodes := newDispatchCore(t)

	tc.deliver(3, execMessage(domain.HostOrder, domain.MessageID(domain.ServiceEVS, 0), 0x01020304), false)

	if len(*got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(*got))
	}
	if v := domain.HostOrder.Uint32((*got)[0][8:]); v != 0x01020304 {
		t.Errorf("payload = %#x, want 0x01020304", v)
	}
	if (*nodes)[0] != 3 {
		t.Errorf("node = %d, want 3", (*nodes)[0])
	}
	if n := tc.counters[counterKey("evs", 0, "rx")]; n != 1 {
		t.Errorf("rx counter = %d, want 1", n)
	}
}

func TestDeliver_ConvertsByteOrder(t *testing.T) {
	tc, got, _ := newDispatchCore(t)

	msg := execMessage(otherOrder(), domain.MessageID(domain.ServiceEVS, 0), 0x01020304)
	tc.deliver(2, msg, true)

	if len(*got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(*got))
	}
	h, _ := domain.ParseRequestHeader((*got)[0], domain.HostOrder)
	if h.Size != 12 || h.ID != domain.MessageID(domain.ServiceEVS, 0) {
		t.Errorf("header = %+v, want converted size and id", h)
	}
	if v := domain.HostOrder.Uint32((*got)[0][8:]); v != 0x01020304 {
		t.Errorf("payload = %#x, want 0x01020304", v)
	}
}

func TestDeliver_DiscardsUnknown(t *testing.T) {
	tc, got, _ := newDispatchCore(t)

	tests := []struct {
		name string
		id   int32
	}{
		{"unregistered service", domain.MessageID(domain.ServiceWD, 0)},
		{"fn out of range", domain.MessageID(domain.ServiceEVS, 5)},
		{"service out of range", domain.MessageID(domain.MaxServices+3, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc.deliver(1, execMessage(domain.HostOrder, tt.id, 0), false)
			if len(*got) != 0 {
				t.Errorf("message delivered")
			}
		})
	}

	tc.deliver(1, []byte{1, 2, 3}, false)
	if len(*got) != 0 {
		t.Error("short message delivered")
	}
}

func TestDeliver_PostedByTransport(t *testing.T) {
	tc, got, _ := newDispatchCore(t)

	tc.transport.onDeliver(1, execMessage(domain.HostOrder, domain.MessageID(domain.ServiceEVS, 0), 9), false)
	if len(*got) != 0 {
		t.Fatal("delivery ran off the loop")
	}
	tc.Loop().RunPending()
	if len(*got) != 1 {
		t.Errorf("deliveries = %d, want 1", len(*got))
	}
}

func TestMulticast_CountsOnSuccess(t *testing.T) {
	tc := newTestCore(1)
	msg := domain.NewRequest(domain.MessageID(domain.ServiceCPG, 2), 4)

	if err := tc.api.Multicast(msg, domain.GuaranteeAgreed); err != nil {
		t.Fatalf("Multicast() error = %v", err)
	}
	tc.transport.mcastErr = domain.ErrTransportClosed
	if err := tc.api.Multicast(msg, domain.GuaranteeAgreed); err == nil {
		t.Error("Multicast() should report the transport error")
	}

	if n := tc.counters[counterKey("cpg", 2, "tx")]; n != 1 {
		t.Errorf("tx counter = %d, want 1", n)
	}
	if err := tc.api.Multicast([]byte{1}, domain.GuaranteeAgreed); err == nil {
		t.Error("Multicast() of a short message should fail")
	}
}
