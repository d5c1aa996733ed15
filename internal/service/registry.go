package service

import (
	"sort"
	"sync"

	"github.com/courier-chat/courier/internal/domain"
	"github.com/courier-chat/courier/internal/protocol"
)

// Peer is one live transport connection. Sends are fire-and-forget: the
// transport may drop frames it cannot buffer, and delivery failure is not
// surfaced here.
type Peer interface {
	Send(frame any)
	// Close closes the underlying transport with a normal-closure code.
	Close(reason string)
}

// AdmitResult describes what kind of identification an admit was.
type AdmitResult struct {
	// First is true when the connection had no identity before this admit.
	First bool
	// UsernameChanged is true on re-identification with a different
	// display name; PrevUsername then carries the old one.
	UsernameChanged bool
	PrevUsername    string
}

type session struct {
	identity domain.Identity
	peer     Peer
}

// Registry is the process-wide connection registry and online directory. All
// mutation funnels through Join/Admit/Evict under one mutex, so the
// single-session-per-user invariant is enforced in one place. It is rebuilt
// empty on restart; presence is never persisted.
type Registry struct {
	mu         sync.Mutex
	peers      map[Peer]struct{}        // every open connection, identified or not
	identities map[Peer]domain.Identity // identity bound to each identified connection
	online     map[string]*session      // userId → session of record
}

func NewRegistry() *Registry {
	return &Registry{
		peers:      make(map[Peer]struct{}),
		identities: make(map[Peer]domain.Identity),
		online:     make(map[string]*session),
	}
}

// Join registers a freshly opened, still-anonymous connection so broadcasts
// reach it.
func (r *Registry) Join(p Peer) {
	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.mu.Unlock()
}

// Admit binds p to identity and makes it the session of record for
// identity.UserID. A prior session for the same user on another connection
// is sent a force-logout notice and closed; it never survives alongside the
// new one. Every admit refreshes presence. Re-admitting the same connection
// with an unchanged identity is idempotent apart from the presence refresh.
func (r *Registry) Admit(p Peer, identity domain.Identity) AdmitResult {
	r.mu.Lock()

	prev, wasIdentified := r.identities[p]
	if wasIdentified && prev.UserID != identity.UserID {
		// The connection now claims a different user; its old identity
		// goes offline.
		if s, ok := r.online[prev.UserID]; ok && s.peer == p {
			delete(r.online, prev.UserID)
		}
	}

	var evicted Peer
	if s, ok := r.online[identity.UserID]; ok && s.peer != p {
		evicted = s.peer
		// The evicted connection stays in the peers set until its
		// transport actually closes; it just loses its identity, so its
		// eventual close is silent.
		delete(r.identities, s.peer)
	}

	r.identities[p] = identity
	r.online[identity.UserID] = &session{identity: identity, peer: p}
	r.mu.Unlock()

	if evicted != nil {
		evicted.Send(protocol.ForceLogout{
			Type:    protocol.TypeForceLogout,
			Message: "You have been logged in from another device/tab",
		})
		evicted.Close("Logged in from another session")
	}

	r.PublishPresence()

	res := AdmitResult{First: !wasIdentified}
	if wasIdentified && prev.Username != identity.Username {
		res.UsernameChanged = true
		res.PrevUsername = prev.Username
	}
	return res
}

// Evict removes the connection on transport close. It returns the identity
// the connection held, if any, and refreshes presence only when one did.
func (r *Registry) Evict(p Peer) (domain.Identity, bool) {
	r.mu.Lock()
	delete(r.peers, p)
	identity, ok := r.identities[p]
	if ok {
		delete(r.identities, p)
		if s, online := r.online[identity.UserID]; online && s.peer == p {
			delete(r.online, identity.UserID)
		}
	}
	r.mu.Unlock()

	if ok {
		r.PublishPresence()
	}
	return identity, ok
}

// Lookup returns the online session's connection for userID.
func (r *Registry) Lookup(userID string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.online[userID]
	if !ok {
		return nil, false
	}
	return s.peer, true
}

// IdentityOf returns the identity bound to a connection.
func (r *Registry) IdentityOf(p Peer) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[p]
	return identity, ok
}

// Snapshot returns the online directory as a list, sorted by user id.
func (r *Registry) Snapshot() []domain.Identity {
	r.mu.Lock()
	users := make([]domain.Identity, 0, len(r.online))
	for _, s := range r.online {
		users = append(users, s.identity)
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// PublishPresence fans the current online directory out to every connection,
// anonymous ones included.
func (r *Registry) PublishPresence() {
	r.Broadcast(protocol.OnlineUsers{
		Type:  protocol.TypeOnlineUsers,
		Users: r.Snapshot(),
	}, nil)
}

// Broadcast sends frame to every open connection except exclude.
func (r *Registry) Broadcast(frame any, exclude Peer) {
	r.mu.Lock()
	targets := make([]Peer, 0, len(r.peers))
	for p := range r.peers {
		if p == exclude {
			continue
		}
		targets = append(targets, p)
	}
	r.mu.Unlock()

	for _, p := range targets {
		p.Send(frame)
	}
}
