package core

import "sync"

// Pusher is the surface of a connection handle used to push events to a
// client. Pushing is fire-and-forget: a returned error means the handle is
// stale or closed, never that the client did not read the event.
type Pusher interface {
	Push(e *Event) error
}

// PresenceRegistry maps a user to their active connection handle. A user has
// at most one handle bound at a time: a new bind for the same user overwrites
// the prior one ("last connection wins"). The overwritten connection is left
// running until it disconnects itself.
//
// A reverse handle index makes unbinding on disconnect O(1) without scanning
// all bindings.
type PresenceRegistry struct {
	mu     sync.RWMutex
	byUser map[string]Pusher
	byConn map[Pusher]string
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byUser: make(map[string]Pusher),
		byConn: make(map[Pusher]string),
	}
}

// Bind unconditionally binds the handle to the user, replacing any prior
// binding for the same user.
func (r *PresenceRegistry) Bind(username string, handle Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[username]; ok {
		delete(r.byConn, prev)
	}
	r.byUser[username] = handle
	r.byConn[handle] = username
}

// Lookup returns the handle currently bound to the user, if any.
func (r *PresenceRegistry) Lookup(username string) (Pusher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.byUser[username]
	return handle, ok
}

// Unbind removes the binding that holds exactly this handle. A handle that was
// already replaced by a newer bind for the same user has no entry left, so a
// late disconnect of the old connection never removes the new binding.
// It returns the username the handle was bound to, if any.
func (r *PresenceRegistry) Unbind(handle Pusher) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.byConn[handle]
	if !ok {
		return "", false
	}
	delete(r.byConn, handle)
	delete(r.byUser, username)
	return username, true
}

// Online reports whether the user currently has a handle bound.
func (r *PresenceRegistry) Online(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[username]
	return ok
}
