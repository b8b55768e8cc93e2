package session

import "sync"

// Registry tracks the live processes per session id. Presence of a
// driver entry is the authoritative "this session is running" signal;
// the persisted record existing says nothing about liveness.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]*Driver
	pollers map[string]*Poller
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]*Driver),
		pollers: make(map[string]*Poller),
	}
}

// SetDriver records the live driver for a session.
func (r *Registry) SetDriver(sessionID string, d *Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[sessionID] = d
}

// Driver returns the live driver for a session, if any.
func (r *Registry) Driver(sessionID string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[sessionID]
	return d, ok
}

// RemoveDriver forgets a session's driver. Returns the removed driver
// so callers can kill it after the registry no longer lists it.
func (r *Registry) RemoveDriver(sessionID string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[sessionID]
	delete(r.drivers, sessionID)
	return d, ok
}

// RemoveDriverIf forgets a session's driver only when the registered
// instance is the one given. A terminal that dies after its session was
// reopened must not evict the replacement driver.
func (r *Registry) RemoveDriverIf(sessionID string, d *Driver) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers[sessionID] != d {
		return false
	}
	delete(r.drivers, sessionID)
	return true
}

// HasDriver reports whether the session has a live driver.
func (r *Registry) HasDriver(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.drivers[sessionID]
	return ok
}

// DriverIDs lists the sessions with live drivers.
func (r *Registry) DriverIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	return ids
}

// SetPoller records the live status poller for a session.
func (r *Registry) SetPoller(sessionID string, p *Poller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollers[sessionID] = p
}

// Poller returns the live poller for a session, if any.
func (r *Registry) Poller(sessionID string) (*Poller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pollers[sessionID]
	return p, ok
}

// RemovePoller forgets a session's poller, returning it for teardown.
func (r *Registry) RemovePoller(sessionID string) (*Poller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pollers[sessionID]
	delete(r.pollers, sessionID)
	return p, ok
}

// HasPoller reports whether the session has a live poller.
func (r *Registry) HasPoller(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pollers[sessionID]
	return ok
}

// PollerIDs lists the sessions with live pollers.
func (r *Registry) PollerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.pollers))
	for id := range r.pollers {
		ids = append(ids, id)
	}
	return ids
}
