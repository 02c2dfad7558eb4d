package ipc

import (
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// reservationFailed is returned by Transport.Reserve for messages that can
// never be sent.
const reservationFailed = -1

// Evaluate decides whether a request of fn on desc may be forwarded to the
// transport. It returns the decision and the slots reserved; the caller
// must release the slots exactly once unless the decision is Invalid.
func (c *Core) Evaluate(desc *service.Descriptor, fn int, h domain.RequestHeader) (domain.Decision, int) {
	slots := c.transport.Reserve(int(h.Size))
	if slots < 0 {
		return domain.DecisionInvalid, reservationFailed
	}

	switch {
	case !desc.AllowInquorate && !c.quorate:
		return domain.DecisionUnreachable, slots
	case desc.LibEngines[fn].FlowControl == service.FlowControlNotRequired:
		return domain.DecisionAdmit, slots
	case slots > 0 && !c.syncing:
		return domain.DecisionAdmit, slots
	case slots == 0:
		return domain.DecisionOverloaded, slots
	default:
		return domain.DecisionSyncBusy, slots
	}
}

// isAsync reports whether requests of fn never get a synchronous reply.
func isAsync(svc domain.ServiceID, fn int) bool {
	return svc == domain.ServiceCPG && fn == service.CPGReqMcast
}

// handleRequest runs admission for one request and dispatches it to the
// library handler when admitted.
func (c *Core) handleRequest(conn *connection, msg []byte) {
	h, err := domain.ParseRequestHeader(msg, domain.HostOrder)
	fn := int(h.ID)
	if err != nil || int(h.Size) != len(msg) || fn < 0 || fn >= len(conn.desc.LibEngines) ||
		conn.desc.LibEngines[fn].Handler == nil {
		conn.invalidRequest++
		c.metricDecision(domain.DecisionInvalid)
		c.reject(conn, fn, domain.DecisionInvalid)
		return
	}

	decision, slots := c.Evaluate(conn.desc, fn, h)
	c.metricDecision(decision)

	switch decision {
	case domain.DecisionAdmit:
		conn.desc.LibEngines[fn].Handler(c.api, conn.id, msg)
	case domain.DecisionInvalid:
		conn.invalidRequest++
	default:
		conn.overload++
	}
	if decision != domain.DecisionAdmit {
		c.reject(conn, fn, decision)
	}

	if decision != domain.DecisionInvalid {
		c.transport.Release(slots)
	}
}

// reject answers a refused request, or only logs it for the async class.
func (c *Core) reject(conn *connection, fn int, decision domain.Decision) {
	if isAsync(conn.svc, fn) {
		if decision == domain.DecisionInvalid {
			c.logger.Info("async request rejected", "conn", conn.name, "fn", fn, "decision", decision)
		} else {
			c.logger.Warn("async request rejected", "conn", conn.name, "fn", fn, "decision", decision)
		}
		return
	}

	res := domain.NewResponse(0, decision.Result(), 0)
	if err := conn.channel.SendResponse(res); err != nil {
		c.logger.Debug("reject response failed", "conn", conn.name, "error", err)
	}
}
