// Package registry tracks live realtime connections and delivers messages to
// them along three independent indices: every connection, the connections
// watching one auction topic, and the single connection mapped to a user.
package registry

import (
	"sync"

	"auction-live/utils"
)

// Conn is one realtime channel to one observer. Send must not block: a
// connection that cannot take the message right away reports an error.
type Conn interface {
	ID() string
	Send(msg []byte) error
}

// entry is a registration of one connection. Its mutex orders delivery
// against removal so nothing reaches a connection after Unregister returns.
type entry struct {
	conn   Conn
	topic  string
	userID string

	mu      sync.Mutex
	removed bool
}

func (e *entry) deliver(msg []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, nil
	}
	if err := e.conn.Send(msg); err != nil {
		return false, err
	}
	return true, nil
}

func (e *entry) retire() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// Registry owns membership bookkeeping for all live connections
type Registry struct {
	mu     sync.RWMutex
	all    map[Conn]*entry
	topics map[string]map[Conn]*entry
	users  map[string]*entry
	closed bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		all:    make(map[Conn]*entry),
		topics: make(map[string]map[Conn]*entry),
		users:  make(map[string]*entry),
	}
}

// Register adds conn to the global set and, when non-empty, to the topic
// index and the user index. A later registration for the same user replaces
// the mapping without closing the earlier connection. Registering a
// connection twice replaces its previous memberships.
func (r *Registry) Register(conn Conn, topic, userID string) {
	e := &entry{conn: conn, topic: topic, userID: userID}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	prev := r.removeLocked(conn, nil)
	r.all[conn] = e
	if topic != "" {
		members, ok := r.topics[topic]
		if !ok {
			members = make(map[Conn]*entry)
			r.topics[topic] = members
		}
		members[conn] = e
	}
	if userID != "" {
		r.users[userID] = e
	}
	r.mu.Unlock()

	if prev != nil {
		prev.retire()
	}
	utils.Debug("registry: connection registered", map[string]any{
		"conn_id": conn.ID(),
		"topic":   topic,
		"user_id": userID,
	})
}

// Unregister removes conn from every index it was added to. Unknown
// connections are ignored, so calling it more than once is safe.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	e := r.removeLocked(conn, nil)
	r.mu.Unlock()

	if e == nil {
		return
	}
	e.retire()
	utils.Debug("registry: connection unregistered", map[string]any{
		"conn_id": conn.ID(),
		"topic":   e.topic,
		"user_id": e.userID,
	})
}

// removeLocked drops conn's memberships. When only is set, the removal
// happens only if conn is still registered through that exact entry.
func (r *Registry) removeLocked(conn Conn, only *entry) *entry {
	e, ok := r.all[conn]
	if !ok || (only != nil && e != only) {
		return nil
	}
	delete(r.all, conn)
	if members, ok := r.topics[e.topic]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.topics, e.topic)
		}
	}
	if e.userID != "" && r.users[e.userID] == e {
		delete(r.users, e.userID)
	}
	return e
}

// drop unregisters a connection whose delivery failed
func (r *Registry) drop(e *entry, err error) {
	r.mu.Lock()
	removed := r.removeLocked(e.conn, e)
	r.mu.Unlock()

	e.retire()
	if removed != nil {
		utils.Warn("registry: dropping connection after failed delivery", map[string]any{
			"conn_id": e.conn.ID(),
			"topic":   e.topic,
			"user_id": e.userID,
			"error":   err.Error(),
		})
	}
}

// BroadcastAll delivers msg to every registered connection and returns how
// many accepted it.
func (r *Registry) BroadcastAll(msg []byte) int {
	r.mu.RLock()
	targets := make([]*entry, 0, len(r.all))
	for _, e := range r.all {
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	return r.deliver(targets, msg)
}

// BroadcastToTopic delivers msg to the current members of topic
func (r *Registry) BroadcastToTopic(topic string, msg []byte) int {
	r.mu.RLock()
	members := r.topics[topic]
	targets := make([]*entry, 0, len(members))
	for _, e := range members {
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	return r.deliver(targets, msg)
}

// SendToUser delivers msg to the connection currently mapped to userID and
// reports whether it was delivered.
func (r *Registry) SendToUser(userID string, msg []byte) bool {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return r.deliver([]*entry{e}, msg) == 1
}

func (r *Registry) deliver(targets []*entry, msg []byte) int {
	delivered := 0
	for _, e := range targets {
		ok, err := e.deliver(msg)
		if err != nil {
			r.drop(e, err)
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered
}

// Close drops every membership. Later registrations are ignored.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.all))
	for _, e := range r.all {
		entries = append(entries, e)
	}
	r.all = make(map[Conn]*entry)
	r.topics = make(map[string]map[Conn]*entry)
	r.users = make(map[string]*entry)
	r.closed = true
	r.mu.Unlock()

	for _, e := range entries {
		e.retire()
	}
	utils.Info("registry: closed", map[string]any{"connections": len(entries)})
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// TopicLen returns the number of connections subscribed to topic
func (r *Registry) TopicLen(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// TopicCount returns the number of topics with at least one subscriber
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// HasUser reports whether a connection is mapped to userID
func (r *Registry) HasUser(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}
