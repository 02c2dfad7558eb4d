package service

import (
	"github.com/russellb/corosync/internal/core/domain"
)

// cpg library request ids. CPGReqMcast is the fire-and-forget class:
// it never gets a synchronous reply.
const (
	CPGReqJoin          = 0
	CPGReqLeave         = 1
	CPGReqMcast         = 2
	CPGReqMembershipGet = 3
)

// cpg response and event ids.
const (
	CPGResJoin            = 0
	CPGResLeave           = 1
	CPGResMembershipGet   = 3
	CPGResConfchgCallback = 4
	CPGResDeliverCallback = 5
)

// cpg execution message ids.
const (
	cpgExecJoin  = 0
	cpgExecLeave = 1
	cpgExecMcast = 2
)

// offset of the message length field in an exec MCAST payload.
const cpgMcastLenOffset = 4 + 4 + NameLength

type cpgMember struct {
	nodeID uint32
	pid    uint32
}

type cpgLocalKey struct {
	group string
	pid   uint32
}

type cpgConn struct {
	group  string
	pid    uint32
	joined bool
}

type cpgState struct {
	groups map[string][]cpgMember
	local  map[cpgLocalKey]ConnID
}

// NewCPG creates the closed process group engine.
func NewCPG() *Descriptor {
	st := &cpgState{
		groups: make(map[string][]cpgMember),
		local:  make(map[cpgLocalKey]ConnID),
	}

	return &Descriptor{
		ID:   domain.ServiceCPG,
		Name: domain.ServiceCPG.String(),
		LibEngines: []LibEngine{
			CPGReqJoin:          {Handler: st.libJoin, FlowControl: FlowControlRequired},
			CPGReqLeave:         {Handler: st.libLeave, FlowControl: FlowControlRequired},
			CPGReqMcast:         {Handler: st.libMcast, FlowControl: FlowControlRequired},
			CPGReqMembershipGet: {Handler: st.libMembershipGet},
		},
		ExecEngines: []ExecEngine{
			cpgExecJoin:  {Handler: st.execJoin, EndianConvert: cpgGroupConvert},
			cpgExecLeave: {Handler: st.execLeave, EndianConvert: cpgGroupConvert},
			cpgExecMcast: {Handler: st.execMcast, EndianConvert: cpgMcastConvert},
		},
		NewPrivate: func() any { return &cpgConn{} },
		LibExit:    st.libExit,
		ConfChg:    st.confchg,
	}
}

// JoinRequest encodes a cpg JOIN request.
func JoinRequest(group string, pid uint32) []byte {
	return newRequestWriter(CPGReqJoin).uint32(pid).name(group).bytes()
}

// LeaveRequest encodes a cpg LEAVE request.
func LeaveRequest(group string, pid uint32) []byte {
	return newRequestWriter(CPGReqLeave).uint32(pid).name(group).bytes()
}

// McastRequest encodes a cpg MCAST request.
func McastRequest(guarantee domain.Guarantee, payload []byte) []byte {
	return newRequestWriter(CPGReqMcast).uint32(uint32(guarantee)).uint32(uint32(len(payload))).raw(payload).bytes()
}

// MembershipRequest encodes a cpg MEMBERSHIP_GET request.
func MembershipRequest(group string) []byte {
	return newRequestWriter(CPGReqMembershipGet).name(group).bytes()
}

func (st *cpgState) libJoin(api API, conn ConnID, msg []byte) {
	r := newReader(msg)
	pid, group := r.uint32(), r.name()
	pd, _ := api.Private(conn).(*cpgConn)

	result := domain.ResultOK
	switch {
	case r.err != nil || group == "" || pd == nil:
		result = domain.ResultInvalidParam
	case pd.joined:
		result = domain.ResultFor(domain.ErrAlreadyMember)
	}

	if result == domain.ResultOK {
		exec := newRequestWriter(domain.MessageID(domain.ServiceCPG, cpgExecJoin)).uint32(pid).name(group).bytes()
		if err := api.Multicast(exec, domain.GuaranteeAgreed); err != nil {
			result = domain.ResultTryAgain
		} else {
			pd.group, pd.pid, pd.joined = group, pid, true
			st.local[cpgLocalKey{group: group, pid: pid}] = conn
		}
	}
	respond(api, conn, simpleResponse(CPGResJoin, result))
}

func (st *cpgState) libLeave(api API, conn ConnID, msg []byte) {
	pd, _ := api.Private(conn).(*cpgConn)
	if pd == nil || !pd.joined {
		respond(api, conn, simpleResponse(CPGResLeave, domain.ResultFor(domain.ErrNotMember)))
		return
	}

	result := domain.ResultOK
	if err := st.leave(api, pd); err != nil {
		result = domain.ResultTryAgain
	}
	respond(api, conn, simpleResponse(CPGResLeave, result))
}

// leave multicasts the departure of pd and forgets its local binding.
func (st *cpgState) leave(api API, pd *cpgConn) error {
	exec := newRequestWriter(domain.MessageID(domain.ServiceCPG, cpgExecLeave)).uint32(pd.pid).name(pd.group).bytes()
	if err := api.Multicast(exec, domain.GuaranteeAgreed); err != nil {
		return err
	}
	delete(st.local, cpgLocalKey{group: pd.group, pid: pd.pid})
	pd.joined = false
	return nil
}

func (st *cpgState) libMcast(api API, conn ConnID, msg []byte) {
	pd, _ := api.Private(conn).(*cpgConn)
	r := newReader(msg)
	guarantee, n := r.uint32(), r.uint32()
	payload := r.take(int(n))
	if r.err != nil || pd == nil || !pd.joined {
		api.Logger().Debug("cpg mcast dropped", "conn", conn, "joined", pd != nil && pd.joined)
		return
	}

	exec := newRequestWriter(domain.MessageID(domain.ServiceCPG, cpgExecMcast)).
		uint32(pd.pid).name(pd.group).uint32(n).raw(payload).bytes()
	if err := api.Multicast(exec, domain.Guarantee(guarantee)); err != nil {
		api.Logger().Warn("cpg mcast failed", "group", pd.group, "error", err)
	}
}

func (st *cpgState) libMembershipGet(api API, conn ConnID, msg []byte) {
	r := newReader(msg)
	group := r.name()
	if r.err != nil {
		respond(api, conn, simpleResponse(CPGResMembershipGet, domain.ResultInvalidParam))
		return
	}

	members := make([]GroupMember, 0, len(st.groups[group]))
	for _, m := range st.groups[group] {
		members = append(members, GroupMember{NodeID: m.nodeID, PID: m.pid})
	}
	respond(api, conn, MembershipResponse(members))
}

// MembershipResponse encodes a MEMBERSHIP_GET response.
func MembershipResponse(members []GroupMember) []byte {
	w := newResponseWriter(CPGResMembershipGet, domain.ResultOK).uint32(uint32(len(members)))
	for _, m := range members {
		w.uint32(m.NodeID).uint32(m.PID)
	}
	return w.bytes()
}

func (st *cpgState) libExit(api API, conn ConnID) error {
	pd, _ := api.Private(conn).(*cpgConn)
	if pd == nil || !pd.joined {
		return nil
	}
	if err := st.leave(api, pd); err != nil {
		// Nobody else will hear about it; keep the local view honest.
		st.removeMember(api, pd.group, cpgMember{nodeID: api.LocalNodeID(), pid: pd.pid})
		delete(st.local, cpgLocalKey{group: pd.group, pid: pd.pid})
		pd.joined = false
	}
	return nil
}

func (st *cpgState) execJoin(api API, msg []byte, nodeID uint32) {
	r := newReader(msg)
	pid, group := r.uint32(), r.name()
	if r.err != nil {
		api.Logger().Warn("cpg join malformed", "node_id", nodeID, "error", r.err)
		return
	}

	m := cpgMember{nodeID: nodeID, pid: pid}
	for _, existing := range st.groups[group] {
		if existing == m {
			return
		}
	}
	st.groups[group] = append(st.groups[group], m)
	st.notifyConfchg(api, group, []cpgMember{m}, nil)
}

func (st *cpgState) execLeave(api API, msg []byte, nodeID uint32) {
	r := newReader(msg)
	pid, group := r.uint32(), r.name()
	if r.err != nil {
		api.Logger().Warn("cpg leave malformed", "node_id", nodeID, "error", r.err)
		return
	}
	st.removeMember(api, group, cpgMember{nodeID: nodeID, pid: pid})
}

func (st *cpgState) removeMember(api API, group string, m cpgMember) {
	members := st.groups[group]
	for i, existing := range members {
		if existing != m {
			continue
		}
		members = append(members[:i:i], members[i+1:]...)
		if len(members) == 0 {
			delete(st.groups, group)
		} else {
			st.groups[group] = members
		}
		st.notifyConfchg(api, group, nil, []cpgMember{m})
		return
	}
}

func (st *cpgState) execMcast(api API, msg []byte, nodeID uint32) {
	r := newReader(msg)
	pid, group, n := r.uint32(), r.name(), r.uint32()
	payload := r.take(int(n))
	if r.err != nil {
		api.Logger().Warn("cpg mcast malformed", "node_id", nodeID, "error", r.err)
		return
	}

	ev := newResponseWriter(CPGResDeliverCallback, domain.ResultOK).
		name(group).uint32(nodeID).uint32(pid).uint32(n).raw(payload).bytes()
	st.eachLocal(api, group, func(conn ConnID) {
		api.Event(conn, ev)
	})
}

func (st *cpgState) confchg(api API, change ConfChange) {
	for _, left := range change.Left {
		for group, members := range st.groups {
			for _, m := range members {
				if m.nodeID == left.NodeID {
					st.removeMember(api, group, m)
				}
			}
		}
	}
}

func (st *cpgState) notifyConfchg(api API, group string, joined, left []cpgMember) {
	members := st.groups[group]
	w := newResponseWriter(CPGResConfchgCallback, domain.ResultOK).
		name(group).
		uint32(uint32(len(members))).
		uint32(uint32(len(joined))).
		uint32(uint32(len(left)))
	for _, list := range [][]cpgMember{members, joined, left} {
		for _, m := range list {
			w.uint32(m.nodeID).uint32(m.pid)
		}
	}
	ev := w.bytes()

	st.eachLocal(api, group, func(conn ConnID) {
		api.Event(conn, ev)
	})
}

// eachLocal calls fn for every connection on this node joined to group.
func (st *cpgState) eachLocal(api API, group string, fn func(ConnID)) {
	local := api.LocalNodeID()
	for _, m := range st.groups[group] {
		if m.nodeID != local {
			continue
		}
		if conn, ok := st.local[cpgLocalKey{group: group, pid: m.pid}]; ok {
			fn(conn)
		}
	}
}

func cpgGroupConvert(msg []byte) { swap32(msg, 0, 4) }

func cpgMcastConvert(msg []byte) { swap32(msg, 0, 4, cpgMcastLenOffset) }
