package domain

import "strconv"

// ServiceID identifies a service engine. The numbering is fixed so peers
// running different builds agree on multicast ids.
type ServiceID uint16

const (
	ServiceEVS ServiceID = iota
	ServiceCLM
	ServiceAMF
	ServiceCKPT
	ServiceEVT
	ServiceLCK
	ServiceMSG
	ServiceCFG
	ServiceCPG
	ServiceCMAN
	ServicePCMK
	ServiceConfDB
	ServiceQuorum
	ServicePLoad
	ServiceTMR
	ServiceVoteQuorum
	ServiceNTF
	ServiceAMFv2
	ServiceTST
	ServiceTST2
	ServiceMON
	ServiceWD

	// MaxServices bounds every table indexed by ServiceID.
	MaxServices
)

var serviceNames = [MaxServices]string{
	"evs", "saClm", "saAmf", "saCkpt", "saEvt", "saLck", "saMsg",
	"cfg", "cpg", "cman", "pacemaker.engine", "confdb", "quorum",
	"pload", "saTmr", "votequorum", "saNtf", "saAmfV2", "tst", "tst2",
	"mon", "wd",
}

// Valid reports whether s is inside the service table.
func (s ServiceID) Valid() bool {
	return s < MaxServices
}

// String returns the short name used for sockets and stats.
func (s ServiceID) String() string {
	if !s.Valid() {
		return "service(" + strconv.Itoa(int(s)) + ")"
	}
	return serviceNames[s]
}

// ParseService resolves a short service name.
func ParseService(name string) (ServiceID, bool) {
	for i, n := range serviceNames {
		if n == name {
			return ServiceID(i), true
		}
	}
	return 0, false
}

// Guarantee is the delivery guarantee requested for a multicast.
type Guarantee uint32

const (
	GuaranteeAgreed Guarantee = 0
	GuaranteeSafe   Guarantee = 1
)
