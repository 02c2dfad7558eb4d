package service

import (
	"github.com/russellb/corosync/internal/core/domain"
)

// quorum library request ids.
const (
	QuorumReqGetQuorate = 0
	QuorumReqTrackStart = 1
	QuorumReqTrackStop  = 2
)

// quorum response and event ids.
const (
	QuorumResGetQuorate   = 0
	QuorumResTrackStart   = 1
	QuorumResTrackStop    = 2
	QuorumResNotification = 3
)

// TrackCurrent asks TRACKSTART to send the current state immediately.
const TrackCurrent = 0x01

type quorumConn struct {
	tracking bool
}

type quorumState struct {
	trackers map[ConnID]struct{}
}

// NewQuorum creates the quorum engine. It answers while inquorate.
func NewQuorum() *Descriptor {
	st := &quorumState{trackers: make(map[ConnID]struct{})}

	return &Descriptor{
		ID:             domain.ServiceQuorum,
		Name:           domain.ServiceQuorum.String(),
		AllowInquorate: true,
		LibEngines: []LibEngine{
			QuorumReqGetQuorate: {Handler: st.getQuorate},
			QuorumReqTrackStart: {Handler: st.trackStart},
			QuorumReqTrackStop:  {Handler: st.trackStop},
		},
		NewPrivate: func() any { return &quorumConn{} },
		LibExit: func(api API, conn ConnID) error {
			delete(st.trackers, conn)
			return nil
		},
		QuorumChange: func(api API, quorate bool) {
			st.notifyAll(api)
		},
		ConfChg: func(api API, change ConfChange) {
			st.notifyAll(api)
		},
	}
}

// TrackStartRequest encodes a TRACKSTART request.
func TrackStartRequest(flags uint32) []byte {
	return newRequestWriter(QuorumReqTrackStart).uint32(flags).bytes()
}

func (st *quorumState) getQuorate(api API, conn ConnID, msg []byte) {
	respond(api, conn, QuorateResponse(api.IsQuorate()))
}

// QuorateResponse encodes a GETQUORATE response.
func QuorateResponse(quorate bool) []byte {
	return newResponseWriter(QuorumResGetQuorate, domain.ResultOK).uint32(boolToUint32(quorate)).bytes()
}

func (st *quorumState) trackStart(api API, conn ConnID, msg []byte) {
	r := newReader(msg)
	flags := r.uint32()
	if r.err != nil {
		respond(api, conn, simpleResponse(QuorumResTrackStart, domain.ResultInvalidParam))
		return
	}

	if pd, ok := api.Private(conn).(*quorumConn); ok {
		pd.tracking = true
	}
	st.trackers[conn] = struct{}{}
	respond(api, conn, simpleResponse(QuorumResTrackStart, domain.ResultOK))

	if flags&TrackCurrent != 0 {
		api.Event(conn, notification(api))
	}
}

func (st *quorumState) trackStop(api API, conn ConnID, msg []byte) {
	result := domain.ResultOK
	pd, ok := api.Private(conn).(*quorumConn)
	if !ok || !pd.tracking {
		result = domain.ResultNotExist
	} else {
		pd.tracking = false
		delete(st.trackers, conn)
	}
	respond(api, conn, simpleResponse(QuorumResTrackStop, result))
}

func (st *quorumState) notifyAll(api API) {
	if len(st.trackers) == 0 {
		return
	}
	msg := notification(api)
	for conn := range st.trackers {
		api.Event(conn, msg)
	}
}

// notification builds a NOTIFICATION event with the current view.
func notification(api API) []byte {
	members := api.Members()
	w := newResponseWriter(QuorumResNotification, domain.ResultOK).
		uint32(boolToUint32(api.IsQuorate())).
		uint64(api.RingSeq()).
		uint32(uint32(len(members)))
	for _, m := range members {
		w.uint32(m.NodeID)
	}
	return w.bytes()
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
