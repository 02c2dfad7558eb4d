package service

import (
	"net"
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
)

func TestCFG_RingStatusGet(t *testing.T) {
	m := newMockAPI(NewCFG(NewRegistry()))
	m.rings = []RingInterface{
		{Name: "10.0.0.1", Status: "ring 0 active with no faults"},
		{Name: "10.0.1.1", Status: "ring 1 active with no faults"},
	}

	m.call(1, domain.NewRequest(CFGReqRingStatusGet, 0))

	res := m.responses[0].msg
	if n := order.Uint32(res[domain.ResponseHeaderSize:]); n != 2 {
		t.Fatalf("interface count = %d, want 2", n)
	}
	r := &reader{b: res, off: domain.ResponseHeaderSize + 4}
	if name := r.cstring(NameLength); name != "10.0.0.1" {
		t.Errorf("interface name = %q, want %q", name, "10.0.0.1")
	}
	if status := r.cstring(cfgStatusLength); status != "ring 0 active with no faults" {
		t.Errorf("interface status = %q", status)
	}
	if want := domain.ResponseHeaderSize + 4 + 2*(NameLength+cfgStatusLength); len(res) != want {
		t.Errorf("response length = %d, want %d", len(res), want)
	}
}

func TestCFG_ServiceUnload(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterDefaults(reg); err != nil {
		t.Fatal(err)
	}
	cfg, _ := reg.Lookup(domain.ServiceCFG)
	m := newMockAPI(cfg)

	tests := []struct {
		name      string
		msg       []byte
		wantID    int32
		wantError domain.Result
		unloading bool
	}{
		{"unload cpg", ServiceLoadRequest("cpg", 0, true), CFGResServiceUnload, domain.ResultOK, true},
		{"load cpg", ServiceLoadRequest("cpg", 0, false), CFGResServiceLoad, domain.ResultOK, false},
		{"unknown name", ServiceLoadRequest("nope", 0, true), CFGResServiceUnload, domain.ResultNotExist, false},
		{"unregistered service", ServiceLoadRequest("evs", 0, true), CFGResServiceUnload, domain.ResultNotExist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.call(1, tt.msg)
			got := m.lastResponse()
			if got.ID != tt.wantID || got.Error != tt.wantError {
				t.Errorf("response = %+v, want id %d error %v", got, tt.wantID, tt.wantError)
			}
			if u := reg.Unloading(domain.ServiceCPG); u != tt.unloading {
				t.Errorf("cpg unloading = %v, want %v", u, tt.unloading)
			}
		})
	}
}

func TestCFG_GetNodeAddrs(t *testing.T) {
	m := newMockAPI(NewCFG(NewRegistry()))
	m.members = []Member{
		{NodeID: 1, Addr: net.ParseIP("192.168.1.10")},
		{NodeID: 2, Addr: net.ParseIP("fd00::2")},
	}

	tests := []struct {
		name       string
		nodeID     uint32
		wantError  domain.Result
		wantFamily uint32
		wantAddr   net.IP
	}{
		{"local by zero", 0, domain.ResultOK, afInet, net.ParseIP("192.168.1.10").To4()},
		{"ipv6 peer", 2, domain.ResultOK, afInet6, net.ParseIP("fd00::2")},
		{"unknown node", 9, domain.ResultNotExist, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.call(1, NodeAddrsRequest(tt.nodeID))
			got := m.lastResponse()
			if got.Error != tt.wantError {
				t.Fatalf("error = %v, want %v", got.Error, tt.wantError)
			}
			if tt.wantAddr == nil {
				return
			}
			res := m.responses[len(m.responses)-1].msg
			r := &reader{b: res, off: domain.ResponseHeaderSize}
			if family := r.uint32(); family != tt.wantFamily {
				t.Errorf("family = %d, want %d", family, tt.wantFamily)
			}
			if n := r.uint32(); n != 1 {
				t.Errorf("num_addrs = %d, want 1", n)
			}
			addr := r.take(cfgAddrLength)
			if !net.IP(addr[:len(tt.wantAddr)]).Equal(tt.wantAddr) {
				t.Errorf("addr = %v, want %v", net.IP(addr[:len(tt.wantAddr)]), tt.wantAddr)
			}
		})
	}
}

func TestCFG_LocalGet(t *testing.T) {
	m := newMockAPI(NewCFG(NewRegistry()))
	m.nodeID = 42

	m.call(1, domain.NewRequest(CFGReqLocalGet, 0))
	res := m.responses[0].msg
	if id := order.Uint32(res[domain.ResponseHeaderSize:]); id != 42 {
		t.Errorf("nodeid = %d, want 42", id)
	}
}

func TestCFG_NotSupported(t *testing.T) {
	m := newMockAPI(NewCFG(NewRegistry()))

	for req, res := range cfgNotSupported {
		m.call(1, domain.NewRequest(int32(req), 0))
		got := m.lastResponse()
		if got.ID != res || got.Error != domain.ResultNotSupported {
			t.Errorf("request %d: response = %+v, want id %d NOT_SUPPORTED", req, got, res)
		}
	}
}
