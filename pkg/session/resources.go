package session

// Resource is a live external resource owned by a session, typically a
// transport connection or advertising state. Release must be idempotent;
// the session guarantees it is invoked during teardown regardless of which
// state the session was in.
type Resource interface {
	Release()
}

// Resources tracks the resources owned by one session and releases them
// exactly once. The zero value is ready to use.
type Resources struct {
	held     []Resource
	released bool
}

// Attach adds a resource to the owned set. If the set has already been
// released (teardown raced with a late acquisition), the resource is
// released immediately instead of being leaked.
func (r *Resources) Attach(res Resource) {
	if res == nil {
		return
	}
	if r.released {
		res.Release()
		return
	}
	r.held = append(r.held, res)
}

// ReleaseAll releases every attached resource. Safe to call more than once;
// each resource's Release is issued at most once by this set.
func (r *Resources) ReleaseAll() {
	if r.released {
		return
	}
	r.released = true
	for _, res := range r.held {
		res.Release()
	}
	r.held = nil
}

// Released reports whether teardown has run.
func (r *Resources) Released() bool { return r.released }
