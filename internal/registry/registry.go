// Package registry implements the bidirectional client registry: the
// server's single source of truth for which connections are attached, and
// what address/name/group each one currently answers to. A forward and
// reverse map are kept consistent as one transaction under a single lock.
package registry

import (
	"net"
	"sync"

	"github.com/nodegraph/wiresock/internal/addr"
	"github.com/nodegraph/wiresock/internal/wsockerr"
)

// Role selects which ClientInfo field a lookup matches against.
type Role int

const (
	RoleAddress Role = iota
	RoleName
	RoleGroup
)

// ClientInfo is the registry's record for one connected client. Name and
// Group use the empty string for "unset"; Rename/Regroup reassign them
// wholesale rather than distinguishing unset from explicit-empty, since
// nothing in the control protocol needs that third state at the registry
// layer (the client-side "restore constructor value" behavior is handled
// one level up, see Client.initialName/initialGroup).
type ClientInfo struct {
	Addr  addr.Address
	Name  string
	Group string
}

type registryKey struct {
	addr  addr.Address
	name  string
	group string
}

// Registry is the forward (conn -> info) and reverse (key -> conn) client
// map, kept consistent as one transaction under a single mutex.
type Registry struct {
	mu      sync.Mutex
	forward map[net.Conn]*ClientInfo
	reverse map[registryKey]net.Conn
}

func New() *Registry {
	return &Registry{
		forward: make(map[net.Conn]*ClientInfo),
		reverse: make(map[registryKey]net.Conn),
	}
}

func keyFor(info *ClientInfo) registryKey {
	return registryKey{addr: info.Addr, name: info.Name, group: info.Group}
}

// Insert adds a new connection to the registry. It returns ClientException
// if conn is already registered, since a second handshake from the same
// connection indicates an impossible registry state rather than a normal
// protocol event.
func (r *Registry) Insert(conn net.Conn, info ClientInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.forward[conn]; ok {
		return wsockerr.New(wsockerr.ClientException, "connection already registered")
	}

	stored := info
	r.forward[conn] = &stored
	r.reverse[keyFor(&stored)] = conn
	return nil
}

// Remove deletes conn from the registry, returning the ClientInfo it held
// so callers can log or broadcast a departure. ok is false if conn was not
// registered.
func (r *Registry) Remove(conn net.Conn) (ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.forward[conn]
	if !ok {
		return ClientInfo{}, false
	}
	delete(r.forward, conn)
	delete(r.reverse, keyFor(info))
	return *info, true
}

// Rename atomically updates a connection's name, keeping forward and
// reverse maps consistent as a single transaction.
func (r *Registry) Rename(conn net.Conn, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(conn, func(info *ClientInfo) { info.Name = name })
}

// Regroup atomically updates a connection's group.
func (r *Registry) Regroup(conn net.Conn, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(conn, func(info *ClientInfo) { info.Group = group })
}

func (r *Registry) update(conn net.Conn, mutate func(*ClientInfo)) error {
	info, ok := r.forward[conn]
	if !ok {
		return wsockerr.New(wsockerr.ClientNotFound, "connection not registered")
	}
	delete(r.reverse, keyFor(info))
	mutate(info)
	r.reverse[keyFor(info)] = conn
	return nil
}

// Get returns the ClientInfo currently stored for conn.
func (r *Registry) Get(conn net.Conn) (ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.forward[conn]
	if !ok {
		return ClientInfo{}, false
	}
	return *info, true
}

// Lookup implements lookup_by_tuple_element generalized over the three
// roles the server resolves a client by: address (role 0), name (role 1),
// or group (role 2). For RoleGroup, the first matching client is returned;
// callers that need every member of a group should use Members instead.
func (r *Registry) Lookup(value string, role Role) (net.Conn, ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conn, info := range r.forward {
		var candidate string
		switch role {
		case RoleAddress:
			candidate = addr.ToString(info.Addr)
		case RoleName:
			candidate = info.Name
		case RoleGroup:
			candidate = info.Group
		}
		if candidate != "" && candidate == value {
			return conn, *info, true
		}
	}
	return nil, ClientInfo{}, false
}

// Members returns every connection currently in the given group.
func (r *Registry) Members(group string) []net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conns []net.Conn
	for conn, info := range r.forward {
		if info.Group == group {
			conns = append(conns, conn)
		}
	}
	return conns
}

// All returns every registered connection and its ClientInfo.
func (r *Registry) All() map[net.Conn]ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[net.Conn]ClientInfo, len(r.forward))
	for conn, info := range r.forward {
		out[conn] = *info
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forward)
}
