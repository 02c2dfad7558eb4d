package clusterserver

import (
	"log/slog"
	"sync"

	"github.com/russellb/corosync/internal/ipc"
)

// VoteQuorum is quorate while the members present hold a strict majority
// of the expected votes. Each node carries one vote.
type VoteQuorum struct {
	mu       sync.Mutex
	expected int
	highest  int
	members  int
	quorate  bool
	onChange func(bool)
	logger   *slog.Logger
}

// NewVoteQuorum creates a provider. With expected 0 the expected votes
// follow the largest membership seen.
func NewVoteQuorum(expected int, logger *slog.Logger) *VoteQuorum {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoteQuorum{expected: expected, logger: logger}
}

var _ ipc.Quorum = (*VoteQuorum)(nil)

// IsQuorate implements ipc.Quorum.
func (q *VoteQuorum) IsQuorate() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quorate
}

// OnQuorumChange implements ipc.Quorum.
func (q *VoteQuorum) OnQuorumChange(fn func(quorate bool)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// ExpectedVotes returns the votes needed for the whole cluster.
func (q *VoteQuorum) ExpectedVotes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.expectedLocked()
}

func (q *VoteQuorum) expectedLocked() int {
	if q.expected > 0 {
		return q.expected
	}
	return q.highest
}

// SetMembers records the current membership size.
func (q *VoteQuorum) SetMembers(n int) {
	q.mu.Lock()
	q.members = n
	if n > q.highest {
		q.highest = n
	}
	expected := q.expectedLocked()
	quorate := expected > 0 && n >= expected/2+1
	changed := quorate != q.quorate
	q.quorate = quorate
	fn := q.onChange
	q.mu.Unlock()

	if !changed {
		return
	}
	if quorate {
		q.logger.Info("This node is within the primary component and will provide service.",
			"members", n, "expected_votes", expected)
	} else {
		q.logger.Warn("This node is within the non-primary component and will NOT provide any services.",
			"members", n, "expected_votes", expected)
	}
	if fn != nil {
		fn(quorate)
	}
}
