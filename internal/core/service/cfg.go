package service

import (
	"github.com/russellb/corosync/internal/core/domain"
)

// cfg library request ids.
const (
	CFGReqRingStatusGet = 0
	CFGReqRingReenable  = 1
	CFGReqServiceLoad   = 6
	CFGReqServiceUnload = 7
	CFGReqGetNodeAddrs  = 11
	CFGReqLocalGet      = 12
	cfgReqMax           = 14
)

// cfg response ids.
const (
	CFGResRingStatusGet = 0
	CFGResRingReenable  = 1
	CFGResServiceLoad   = 6
	CFGResServiceUnload = 7
	CFGResGetNodeAddrs  = 11
	CFGResLocalGet      = 12
)

const (
	cfgServiceNameLength = 256
	cfgStatusLength      = 512
	cfgMaxInterfaces     = 16
	cfgAddrLength        = 16

	afInet  = 2
	afInet6 = 10
)

// cfgNotSupported maps request ids without an implementation to their
// response ids.
var cfgNotSupported = map[int]int32{
	2: 2, 3: 3, 4: 4, 5: 5, 8: 8, 9: 9, 10: 13, 13: 14,
}

type cfgState struct {
	registry *Registry
}

// NewCFG creates the configuration engine. SERVICELOAD and SERVICEUNLOAD
// toggle the unloading flag on reg.
func NewCFG(reg *Registry) *Descriptor {
	st := &cfgState{registry: reg}

	lib := make([]LibEngine, cfgReqMax)
	for req, res := range cfgNotSupported {
		lib[req] = LibEngine{Handler: notSupported(res)}
	}
	lib[CFGReqRingStatusGet] = LibEngine{Handler: st.ringStatusGet}
	lib[CFGReqRingReenable] = LibEngine{Handler: st.ringReenable}
	lib[CFGReqServiceLoad] = LibEngine{Handler: st.serviceLoad}
	lib[CFGReqServiceUnload] = LibEngine{Handler: st.serviceUnload}
	lib[CFGReqGetNodeAddrs] = LibEngine{Handler: st.getNodeAddrs}
	lib[CFGReqLocalGet] = LibEngine{Handler: st.localGet}

	return &Descriptor{
		ID:             domain.ServiceCFG,
		Name:           domain.ServiceCFG.String(),
		AllowInquorate: true,
		LibEngines:     lib,
	}
}

// ServiceLoadRequest encodes a SERVICELOAD (or, with unload set,
// SERVICEUNLOAD) request.
func ServiceLoadRequest(name string, version uint32, unload bool) []byte {
	id := int32(CFGReqServiceLoad)
	if unload {
		id = CFGReqServiceUnload
	}
	return newRequestWriter(id).cstring(name, cfgServiceNameLength).uint32(version).bytes()
}

// NodeAddrsRequest encodes a GET_NODE_ADDRS request.
func NodeAddrsRequest(nodeID uint32) []byte {
	return newRequestWriter(CFGReqGetNodeAddrs).uint32(nodeID).bytes()
}

func notSupported(resID int32) LibHandler {
	return func(api API, conn ConnID, msg []byte) {
		respond(api, conn, simpleResponse(resID, domain.ResultNotSupported))
	}
}

func (st *cfgState) ringStatusGet(api API, conn ConnID, msg []byte) {
	respond(api, conn, RingStatusResponse(api.RingStatus()))
}

// RingStatusResponse encodes a RINGSTATUSGET response. Interfaces past
// the sixteenth are left out.
func RingStatusResponse(rings []RingInterface) []byte {
	if len(rings) > cfgMaxInterfaces {
		rings = rings[:cfgMaxInterfaces]
	}
	w := newResponseWriter(CFGResRingStatusGet, domain.ResultOK).uint32(uint32(len(rings)))
	for _, ring := range rings {
		w.cstring(ring.Name, NameLength).cstring(ring.Status, cfgStatusLength)
	}
	return w.bytes()
}

func (st *cfgState) ringReenable(api API, conn ConnID, msg []byte) {
	api.Logger().Info("ring reenable requested", "conn", conn)
	respond(api, conn, simpleResponse(CFGResRingReenable, domain.ResultOK))
}

func (st *cfgState) serviceLoad(api API, conn ConnID, msg []byte) {
	st.setUnloading(api, conn, msg, CFGResServiceLoad, false)
}

func (st *cfgState) serviceUnload(api API, conn ConnID, msg []byte) {
	st.setUnloading(api, conn, msg, CFGResServiceUnload, true)
}

func (st *cfgState) setUnloading(api API, conn ConnID, msg []byte, resID int32, unloading bool) {
	r := newReader(msg)
	name := r.cstring(cfgServiceNameLength)
	r.uint32()
	if r.err != nil {
		respond(api, conn, simpleResponse(resID, domain.ResultInvalidParam))
		return
	}

	result := domain.ResultOK
	id, ok := domain.ParseService(name)
	if !ok {
		result = domain.ResultFor(domain.ErrServiceUnknown)
	} else if err := st.registry.SetUnloading(id, unloading); err != nil {
		result = domain.ResultFor(err)
	} else {
		api.Logger().Info("service state changed", "service", name, "unloading", unloading)
	}
	respond(api, conn, simpleResponse(resID, result))
}

func (st *cfgState) getNodeAddrs(api API, conn ConnID, msg []byte) {
	r := newReader(msg)
	nodeID := r.uint32()
	if r.err != nil {
		respond(api, conn, simpleResponse(CFGResGetNodeAddrs, domain.ResultInvalidParam))
		return
	}
	if nodeID == 0 {
		nodeID = api.LocalNodeID()
	}

	for _, m := range api.Members() {
		if m.NodeID != nodeID || m.Addr == nil {
			continue
		}
		family, ip := uint32(afInet6), m.Addr.To16()
		if v4 := m.Addr.To4(); v4 != nil {
			family, ip = afInet, v4
		}
		addr := make([]byte, cfgAddrLength)
		copy(addr, ip)
		w := newResponseWriter(CFGResGetNodeAddrs, domain.ResultOK).uint32(family).uint32(1).raw(addr)
		respond(api, conn, w.bytes())
		return
	}
	respond(api, conn, simpleResponse(CFGResGetNodeAddrs, domain.ResultNotExist))
}

func (st *cfgState) localGet(api API, conn ConnID, msg []byte) {
	respond(api, conn, LocalNodeResponse(api.LocalNodeID()))
}

// LocalNodeResponse encodes a LOCAL_GET response.
func LocalNodeResponse(nodeID uint32) []byte {
	return newResponseWriter(CFGResLocalGet, domain.ResultOK).uint32(nodeID).bytes()
}
