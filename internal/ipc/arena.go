package ipc

import (
	"github.com/russellb/corosync/internal/core/service"
)

// arena stores values in reusable slots addressed by generation-checked
// handles. A handle stays invalid once its value is removed, even after
// the slot is reused.
type arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

type arenaSlot[T any] struct {
	gen uint32
	val *T
}

func handleOf(index, gen uint32) service.ConnID {
	return service.ConnID(uint64(gen)<<32 | uint64(index))
}

func splitHandle(h service.ConnID) (index, gen uint32) {
	return uint32(h), uint32(h >> 32)
}

func (a *arena[T]) insert(v *T) service.ConnID {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		// Generation zero is never handed out so the zero handle is invalid.
		a.slots = append(a.slots, arenaSlot[T]{gen: 1})
	}
	a.slots[index].val = v
	a.live++
	return handleOf(index, a.slots[index].gen)
}

func (a *arena[T]) get(h service.ConnID) (*T, bool) {
	index, gen := splitHandle(h)
	if int(index) >= len(a.slots) {
		return nil, false
	}
	s := a.slots[index]
	if s.gen != gen || s.val == nil {
		return nil, false
	}
	return s.val, true
}

func (a *arena[T]) remove(h service.ConnID) (*T, bool) {
	v, ok := a.get(h)
	if !ok {
		return nil, false
	}
	index, _ := splitHandle(h)
	s := &a.slots[index]
	s.val = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, index)
	a.live--
	return v, true
}

// each calls fn for every live value in slot order.
func (a *arena[T]) each(fn func(h service.ConnID, v *T)) {
	for i := range a.slots {
		if s := a.slots[i]; s.val != nil {
			fn(handleOf(uint32(i), s.gen), s.val)
		}
	}
}

func (a *arena[T]) count() int {
	return a.live
}
