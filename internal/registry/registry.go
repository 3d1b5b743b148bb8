// Package registry tracks which local connections subscribe to which
// channels. It is a pure in-process data structure with no I/O; the caller
// reacts to the activation signals it returns.
package registry

import "sync"

// Conn is the registry's view of a connection. Deliver hands a serialized
// frame to the connection; it returns false when the connection is closed
// or its send buffer is full.
type Conn interface {
	Deliver(payload []byte) bool
}

type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Conn]struct{}
	conns    map[Conn]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		channels: make(map[string]map[Conn]struct{}),
		conns:    make(map[Conn]map[string]struct{}),
	}
}

// Subscribe adds conn to channel's subscriber set. The returned flag is
// true when the channel went from zero to one subscribers, so the caller
// can subscribe the backbone topic. Subscribing twice is a no-op.
func (r *Registry) Subscribe(conn Conn, channel string) (activated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[channel]
	if !ok {
		set = make(map[Conn]struct{})
		r.channels[channel] = set
		activated = true
	}
	set[conn] = struct{}{}

	chans, ok := r.conns[conn]
	if !ok {
		chans = make(map[string]struct{})
		r.conns[conn] = chans
	}
	chans[channel] = struct{}{}

	return activated
}

// Unsubscribe removes conn from channel's subscriber set. The returned flag
// is true when the set became empty; the entry is deleted so the registry
// never holds a channel mapped to an empty set.
func (r *Registry) Unsubscribe(conn Conn, channel string) (deactivated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(conn, channel)
}

func (r *Registry) unsubscribeLocked(conn Conn, channel string) bool {
	set, ok := r.channels[channel]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if chans, ok := r.conns[conn]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(r.conns, conn)
		}
	}
	if len(set) == 0 {
		delete(r.channels, channel)
		return true
	}
	return false
}

// RemoveConnection unsubscribes conn from every channel it was in and
// returns the channels that lost their last subscriber. Used on socket
// close; safe to call for a connection that was never registered.
func (r *Registry) RemoveConnection(conn Conn) (deactivated []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chans, ok := r.conns[conn]
	if !ok {
		return nil
	}
	for channel := range chans {
		if r.unsubscribeLocked(conn, channel) {
			deactivated = append(deactivated, channel)
		}
	}
	return deactivated
}

// Snapshot returns a copy of channel's subscriber set. Broadcasts iterate
// the copy so socket writes happen without holding the registry lock.
func (r *Registry) Snapshot(channel string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.channels[channel]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Channels returns the names of all currently active channels.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for channel := range r.channels {
		names = append(names, channel)
	}
	return names
}

// NumSubscribers returns the size of channel's subscriber set.
func (r *Registry) NumSubscribers(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// NumChannels returns the number of active channels.
func (r *Registry) NumChannels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
