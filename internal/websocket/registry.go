package websocket

import (
	"sort"
	"sync"
)

// Registry is the single authority for who is connected where. One mutex
// guards the open-socket set, the user index and the session membership, so
// a user is a member of a session exactly when it has a live connection
// registered to that session.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]*Client
	members map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		users:   make(map[string]*Client),
		members: make(map[string]map[string]struct{}),
	}
}

// Attach records an open socket that has no user yet.
func (r *Registry) Attach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Registration describes what a Register call displaced.
type Registration struct {
	// Replaced is the previous connection of the same user, already unbound.
	Replaced *Client
	// PreviousSession is the session the user was a member of before, when
	// it differs from the new one.
	PreviousSession string
	// PreviousUser is the user c was registered as before, when c switched
	// identity.
	PreviousUser        string
	PreviousUserSession string
}

// Register binds userID to c inside sessionID. A prior connection of the
// same user is unbound and returned so the caller can close it. Registering
// a client that is no longer open fails with ErrClientClosed.
func (r *Registry) Register(userID, sessionID string, c *Client) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reg Registration
	if !c.IsOpen() {
		return reg, ErrClientClosed
	}
	if _, ok := r.clients[c]; !ok {
		return reg, ErrClientClosed
	}

	if prevUser, prevSession := c.Identity(); prevUser != "" && prevUser != userID {
		r.removeLocked(prevUser)
		reg.PreviousUser, reg.PreviousUserSession = prevUser, prevSession
	}

	if old, ok := r.users[userID]; ok {
		_, oldSession := old.Identity()
		if oldSession != sessionID {
			reg.PreviousSession = oldSession
		}
		r.removeLocked(userID)
		if old != c {
			reg.Replaced = old
		}
	}

	r.users[userID] = c
	set, ok := r.members[sessionID]
	if !ok {
		set = make(map[string]struct{})
		r.members[sessionID] = set
	}
	set[userID] = struct{}{}
	c.bind(userID, sessionID)
	return reg, nil
}

// Unregister removes userID from its session. It is a no-op for unknown
// users and returns the session the user left.
func (r *Registry) Unregister(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(userID)
}

// UnregisterClient removes userID only while c is its current connection.
func (r *Registry) UnregisterClient(userID string, c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[userID] != c {
		return "", false
	}
	return r.removeLocked(userID)
}

// Detach drops a closed socket. If it was still the current connection of
// its user, the user leaves its session and is returned.
func (r *Registry) Detach(c *Client) (userID, sessionID string, registered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c)
	userID, _ = c.Identity()
	if userID == "" || r.users[userID] != c {
		return "", "", false
	}
	sessionID, registered = r.removeLocked(userID)
	return userID, sessionID, registered
}

func (r *Registry) removeLocked(userID string) (string, bool) {
	c, ok := r.users[userID]
	if !ok {
		return "", false
	}
	_, sessionID := c.Identity()
	delete(r.users, userID)
	if set, ok := r.members[sessionID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(r.members, sessionID)
		}
	}
	c.bind("", "")
	return sessionID, true
}

// MembersOf returns the sorted user ids registered to sessionID.
func (r *Registry) MembersOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[sessionID]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

// IsMember reports whether userID is registered to sessionID.
func (r *Registry) IsMember(sessionID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[sessionID][userID]
	return ok
}

// ActiveSessions returns the sorted sessions with at least one member.
func (r *Registry) ActiveSessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for sessionID := range r.members {
		out = append(out, sessionID)
	}
	sort.Strings(out)
	return out
}

// Recipients returns the open clients that should receive a message for
// sessionID. With all set, every open client is returned.
func (r *Registry) Recipients(sessionID string, all bool) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if !c.IsOpen() {
			continue
		}
		if all || c.interested(sessionID) {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns the open socket and registered user totals.
func (r *Registry) Counts() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients), len(r.users)
}

// Clients returns a snapshot of every attached client.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}
