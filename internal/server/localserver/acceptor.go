package localserver

import (
	"context"
	"net"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/russellb/corosync/internal/core/domain"
)

// RateTable maps throttled directives to request rates per second.
type RateTable struct {
	Fast   float64
	Normal float64
	Slow   float64
	Burst  int
}

// DefaultRateTable returns the rates used when none are configured.
func DefaultRateTable() RateTable {
	return RateTable{
		Fast:   2000,
		Normal: 500,
		Slow:   50,
		Burst:  16,
	}
}

// Limit returns the limiter rate for d.
func (t RateTable) Limit(d domain.Directive) rate.Limit {
	switch d {
	case domain.DirectiveFast:
		return rate.Limit(t.Fast)
	case domain.DirectiveNormal:
		return rate.Limit(t.Normal)
	case domain.DirectiveSlow:
		return rate.Limit(t.Slow)
	default:
		return rate.Inf
	}
}

// acceptor listens for one service. The limiter is shared by every
// connection of the service.
type acceptor struct {
	svc      domain.ServiceID
	path     string
	listener *net.UnixListener
	rates    RateTable
	limiter  *rate.Limiter

	directive atomic.Int32
}

func newAcceptor(svc domain.ServiceID, path string, rates RateTable) *acceptor {
	burst := rates.Burst
	if burst <= 0 {
		burst = 1
	}
	return &acceptor{
		svc:     svc,
		path:    path,
		rates:   rates,
		limiter: rate.NewLimiter(rate.Inf, burst),
	}
}

// Service implements ipc.Acceptor.
func (a *acceptor) Service() domain.ServiceID { return a.svc }

// SetRateLimit implements ipc.Acceptor. Safe from any goroutine.
func (a *acceptor) SetRateLimit(d domain.Directive) {
	a.directive.Store(int32(d))
	a.limiter.SetLimit(a.rates.Limit(d))
}

// Directive returns the last directive applied.
func (a *acceptor) Directive() domain.Directive {
	return domain.Directive(a.directive.Load())
}

// admit blocks until the limiter lets one request through. It reports
// whether the caller had to wait.
func (a *acceptor) admit(ctx context.Context) (bool, error) {
	if a.limiter.Allow() {
		return false, nil
	}
	return true, a.limiter.Wait(ctx)
}
