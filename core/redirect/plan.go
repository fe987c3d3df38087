package redirect

import (
	"fmt"
	"os"
)

// Handle is an opaque reference to an installed descriptor. Concrete
// types are supplied by the System implementation.
type Handle interface {
	Close() error
}

// System is the descriptor machinery a plan is applied against. The
// real implementation opens files and issues dup(2); test fakes record
// the calls instead.
type System interface {
	// Open opens path and returns a handle for it. Truncation happens
	// here and only here.
	Open(path string, flags int, perm os.FileMode) (Handle, error)

	// Dup returns a handle sharing h's open file description. It must
	// not touch the underlying file.
	Dup(h Handle) (Handle, error)
}

// Table maps descriptor slots to handles. A nil entry means the slot is
// closed.
type Table map[int]Handle

// Apply runs the plan against sys, mutating table in place. table
// should be seeded with the inherited stdio slots before the call.
// observe, when non-nil, is invoked for every performed action in
// order; it is how the trace log sees open-vs-dup.
//
// Handles created by Apply (both opens and dups) are returned so the
// caller can close them once the child is running. On error the
// already-created handles are closed before returning.
func (p Plan) Apply(sys System, table Table, observe func(Action)) (created []Handle, err error) {
	closeAll := func() {
		for _, h := range created {
			h.Close()
		}
	}

	for _, action := range p {
		switch action.Op {
		case OpOpen:
			h, err := sys.Open(action.Path, action.Flags, 0644)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("%s: %w", action.Path, err)
			}
			created = append(created, h)
			table[action.FD] = h

		case OpDup:
			src, ok := table[action.From]
			if !ok || src == nil {
				closeAll()
				return nil, fmt.Errorf("%d: bad file descriptor", action.From)
			}
			h, err := sys.Dup(src)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("dup %d: %w", action.From, err)
			}
			created = append(created, h)
			table[action.FD] = h

		case OpClose:
			// The slot is forgotten, not the handle: an inherited stdio
			// stream must survive the child closing its copy.
			delete(table, action.FD)

		default:
			closeAll()
			return nil, fmt.Errorf("unknown plan op %v", action.Op)
		}

		if observe != nil {
			observe(action)
		}
	}
	return created, nil
}
