package domain

import "strconv"

// QueueLevel is the transport's coarse send-queue occupancy.
type QueueLevel int

const (
	LevelLow QueueLevel = iota
	LevelGood
	LevelHigh
	LevelCritical
)

// String returns the level name.
func (l QueueLevel) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelGood:
		return "GOOD"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "QueueLevel(" + strconv.Itoa(int(l)) + ")"
	}
}

// Directive is the request acceptance rate applied to every acceptor.
type Directive int

const (
	// DirectiveOff applies no throttling.
	DirectiveOff Directive = iota
	DirectiveFast
	DirectiveNormal
	DirectiveSlow
)

// String returns the directive name.
func (d Directive) String() string {
	switch d {
	case DirectiveOff:
		return "OFF"
	case DirectiveFast:
		return "FAST"
	case DirectiveNormal:
		return "NORMAL"
	case DirectiveSlow:
		return "SLOW"
	default:
		return "Directive(" + strconv.Itoa(int(d)) + ")"
	}
}

// Throttled reports whether d limits request acceptance.
func (d Directive) Throttled() bool {
	return d != DirectiveOff
}

// Decision is the outcome of admission control for one request.
// The zero value is DecisionInvalid so an unset decision never admits.
type Decision int

const (
	// DecisionInvalid means the request was malformed or too large.
	DecisionInvalid Decision = iota
	// DecisionUnreachable means the cluster is not quorate and the
	// service does not tolerate that.
	DecisionUnreachable
	// DecisionOverloaded means the transport had no room.
	DecisionOverloaded
	// DecisionSyncBusy means a membership resynchronization is running.
	DecisionSyncBusy
	// DecisionAdmit means the request may proceed.
	DecisionAdmit
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionInvalid:
		return "Invalid"
	case DecisionUnreachable:
		return "Unreachable"
	case DecisionOverloaded:
		return "Overloaded"
	case DecisionSyncBusy:
		return "SyncBusy"
	case DecisionAdmit:
		return "Admit"
	default:
		return "Decision(" + strconv.Itoa(int(d)) + ")"
	}
}

// Retryable reports whether the client should retry after a rejection.
func (d Decision) Retryable() bool {
	switch d {
	case DecisionUnreachable, DecisionOverloaded, DecisionSyncBusy:
		return true
	default:
		return false
	}
}

// Result returns the code sent to a client for a rejected request.
func (d Decision) Result() Result {
	switch d {
	case DecisionAdmit:
		return ResultOK
	case DecisionInvalid:
		return ResultInvalidParam
	default:
		return ResultTryAgain
	}
}
