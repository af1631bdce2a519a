package sockets

import (
	"sync"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

type slot struct {
	rec        *record
	generation uint32
}

// arena stores socket records in reusable slots. A handle names a slot and the
// generation it was issued for; closing or replacing a record bumps the
// generation, which invalidates every handle issued before.
type arena struct {
	slots []slot
	free  []uint32
	mu    sync.Mutex
}

func (a *arena) insert(rec *record) values.SocketHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}

	s := &a.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.rec = rec
	return values.NewSocketHandle(idx, s.generation)
}

// lookup must be called with a.mu held.
func (a *arena) lookup(h values.SocketHandle) (*slot, error) {
	idx := h.Slot()
	if h.IsZero() || int(idx) >= len(a.slots) {
		return nil, apperrors.ErrInvalidHandle
	}
	s := &a.slots[idx]
	if s.rec == nil || s.generation != h.Generation() {
		return nil, apperrors.ErrInvalidHandle
	}
	return s, nil
}

func (a *arena) get(h values.SocketHandle) (*record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.rec, nil
}

// replace swaps the record behind h for rec in the same slot and returns the
// new handle. h is invalid afterwards.
func (a *arena) replace(h values.SocketHandle, rec *record) (values.SocketHandle, *record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(h)
	if err != nil {
		return 0, nil, err
	}
	old := s.rec
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.rec = rec
	return values.NewSocketHandle(h.Slot(), s.generation), old, nil
}

func (a *arena) remove(h values.SocketHandle) (*record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	rec := s.rec
	s.rec = nil
	a.free = append(a.free, h.Slot())
	return rec, nil
}

// drain removes every live record.
func (a *arena) drain() []*record {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*record
	for i := range a.slots {
		if a.slots[i].rec == nil {
			continue
		}
		out = append(out, a.slots[i].rec)
		a.slots[i].rec = nil
		a.free = append(a.free, uint32(i))
	}
	return out
}

func (a *arena) handles() []values.SocketHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []values.SocketHandle
	for i := range a.slots {
		if a.slots[i].rec != nil {
			out = append(out, values.NewSocketHandle(uint32(i), a.slots[i].generation))
		}
	}
	return out
}
