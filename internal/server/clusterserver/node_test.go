package clusterserver

import (
	"strings"
	"testing"
)

func TestNodeIDFromName(t *testing.T) {
	a := NodeIDFromName("node-a")
	if a == 0 || a&0x80000000 != 0 {
		t.Errorf("NodeIDFromName() = %#x, want non-zero 31-bit id", a)
	}
	if NodeIDFromName("node-a") != a {
		t.Error("NodeIDFromName is not stable")
	}
	if NodeIDFromName("node-b") == a {
		t.Error("different names should give different ids")
	}
}

func TestGenerateNodeName(t *testing.T) {
	a, b := GenerateNodeName(), GenerateNodeName()
	if !strings.HasPrefix(a, "node-") {
		t.Errorf("GenerateNodeName() = %q, want node- prefix", a)
	}
	if a == b {
		t.Error("generated names should be unique")
	}
	if a != strings.ToLower(a) {
		t.Errorf("GenerateNodeName() = %q, want lower case", a)
	}
}

func TestNodeMeta(t *testing.T) {
	m := nodeMeta{NodeID: 17, RaftAddr: "10.0.0.1:5405"}
	got, err := decodeNodeMeta(m.encode())
	if err != nil {
		t.Fatalf("decodeNodeMeta() error = %v", err)
	}
	if got != m {
		t.Errorf("decodeNodeMeta() = %+v, want %+v", got, m)
	}

	if _, err := decodeNodeMeta([]byte{1, 2}); err == nil {
		t.Error("short metadata should fail")
	}
}
