package service

import (
	"time"

	"github.com/russellb/corosync/internal/core/domain"
)

// pload library request and response ids.
const (
	PLoadReqStart = 0
	PLoadResStart = 0
)

// pload execution message ids.
const (
	ploadExecStart = 0
	ploadExecMcast = 1
)

// PLoadMaxMessageSize bounds the size of one generated message.
const PLoadMaxMessageSize = 64 * 1024

// ploadBatch is how many messages the sender job tries per loop pass.
const ploadBatch = 64

type ploadState struct {
	wanted   uint32
	received uint32
	size     uint32
	started  time.Time
}

// NewPLoad creates the load generator engine. A START request makes the
// originating node multicast count messages of size bytes; every node
// counts the deliveries and logs the throughput once all have arrived.
func NewPLoad() *Descriptor {
	st := &ploadState{}

	return &Descriptor{
		ID:   domain.ServicePLoad,
		Name: domain.ServicePLoad.String(),
		LibEngines: []LibEngine{
			PLoadReqStart: {Handler: st.libStart, FlowControl: FlowControlRequired},
		},
		ExecEngines: []ExecEngine{
			ploadExecStart: {Handler: st.execStart, EndianConvert: ploadStartConvert},
			ploadExecMcast: {Handler: st.execMcast, EndianConvert: ploadMcastConvert},
		},
	}
}

// StartRequest encodes a pload START request.
func StartRequest(code, count, size uint32) []byte {
	return newRequestWriter(PLoadReqStart).uint32(code).uint32(count).uint32(size).bytes()
}

func (st *ploadState) libStart(api API, conn ConnID, msg []byte) {
	r := newReader(msg)
	code, count, size := r.uint32(), r.uint32(), r.uint32()

	result := domain.ResultOK
	switch {
	case r.err != nil:
		result = domain.ResultInvalidParam
	case size < domain.RequestHeaderSize+4 || size > PLoadMaxMessageSize:
		result = domain.ResultInvalidParam
	}
	if result == domain.ResultOK {
		start := newRequestWriter(domain.MessageID(domain.ServicePLoad, ploadExecStart)).
			uint32(code).uint32(count).uint32(size).bytes()
		if err := api.Multicast(start, domain.GuaranteeAgreed); err != nil {
			api.Logger().Warn("pload start multicast failed", "error", err)
			result = domain.ResultTryAgain
		}
	}

	respond(api, conn, simpleResponse(PLoadResStart, result))
	if result != domain.ResultOK {
		return
	}

	var sent uint32
	api.Schedule(func() bool {
		for i := 0; i < ploadBatch && sent < count; i++ {
			slots := api.Reserve(int(size))
			if slots < 0 {
				api.Logger().Warn("pload message rejected by transport", "size", size)
				return false
			}
			if slots == 0 {
				return true
			}
			m := newRequestWriter(domain.MessageID(domain.ServicePLoad, ploadExecMcast)).uint32(code)
			m.raw(make([]byte, int(size)-domain.RequestHeaderSize-4))
			err := api.Multicast(m.bytes(), domain.GuaranteeAgreed)
			api.Release(slots)
			if err != nil {
				api.Logger().Debug("pload multicast deferred", "error", err)
				return true
			}
			sent++
		}
		return sent < count
	})
}

func (st *ploadState) execStart(api API, msg []byte, nodeID uint32) {
	r := newReader(msg)
	_, count, size := r.uint32(), r.uint32(), r.uint32()
	if r.err != nil {
		api.Logger().Warn("pload start malformed", "node_id", nodeID, "error", r.err)
		return
	}
	st.wanted = count
	st.received = 0
	st.size = size
	st.started = time.Now()

	api.Logger().Info("pload run started",
		"node_id", nodeID,
		"messages", count,
		"size", size)
}

func (st *ploadState) execMcast(api API, msg []byte, nodeID uint32) {
	if st.wanted == 0 {
		return
	}
	st.received++
	if st.received < st.wanted {
		return
	}

	elapsed := time.Since(st.started).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}
	api.Logger().Info("pload run complete",
		"writes", st.received,
		"bytes_per_write", st.size,
		"seconds", elapsed,
		"tp_per_sec", float64(st.received)/elapsed,
		"mb_per_sec", float64(st.received)*float64(st.size)/elapsed/1e6)
	st.wanted = 0
}

func ploadStartConvert(msg []byte) { swap32(msg, 0, 4, 8) }

func ploadMcastConvert(msg []byte) { swap32(msg, 0) }
