package server

import (
	"context"
	"net"

	"github.com/nodegraph/wiresock/internal/addr"
	"github.com/nodegraph/wiresock/internal/control"
	"github.com/nodegraph/wiresock/internal/registry"
	"github.com/nodegraph/wiresock/internal/typecast"
	"github.com/nodegraph/wiresock/internal/wsockerr"
)

func userFrame(command string, v typecast.Value) ([]byte, error) {
	format, body, err := typecast.Encode(v)
	if err != nil {
		return nil, err
	}
	return []byte(control.BuildCommandFrame(command, control.JoinFormatBody(format, body))), nil
}

// SendAllClients sends command/v to every currently registered client.
func (s *Server) SendAllClients(command string, v typecast.Value) error {
	payload, err := userFrame(command, v)
	if err != nil {
		return err
	}
	for conn := range s.registry.All() {
		if err := s.send(conn, payload); err != nil {
			return err
		}
	}
	return nil
}

// SendGroup sends command/v to every client currently in group. An empty
// group with no members returns GroupNotFound.
func (s *Server) SendGroup(group, command string, v typecast.Value) error {
	members := s.registry.Members(group)
	if len(members) == 0 {
		return wsockerr.Newf(wsockerr.GroupNotFound, "group %q has no members", group)
	}
	payload, err := userFrame(command, v)
	if err != nil {
		return err
	}
	for _, conn := range members {
		if err := s.send(conn, payload); err != nil {
			return err
		}
	}
	return nil
}

// SendClient sends command/v to the single client identified by address
// or name.
func (s *Server) SendClient(identifier, command string, v typecast.Value) error {
	conn, err := s.resolveClient(identifier)
	if err != nil {
		return err
	}
	payload, err := userFrame(command, v)
	if err != nil {
		return err
	}
	return s.send(conn, payload)
}

func (s *Server) resolveClient(identifier string) (net.Conn, error) {
	var (
		conn net.Conn
		ok   bool
	)
	if a, isAddr := addr.ParseIdentifier(identifier); isAddr {
		conn, _, ok = s.registry.Lookup(addr.ToString(a), registry.RoleAddress)
	} else {
		conn, _, ok = s.registry.Lookup(identifier, registry.RoleName)
	}
	if !ok {
		return nil, wsockerr.Newf(wsockerr.ClientNotFound, "no such client: %s", identifier)
	}
	return conn, nil
}

// GetClient resolves identifier (address or name) to its ClientInfo.
func (s *Server) GetClient(identifier string) (registry.ClientInfo, error) {
	var (
		info registry.ClientInfo
		ok   bool
	)
	if a, isAddr := addr.ParseIdentifier(identifier); isAddr {
		_, info, ok = s.registry.Lookup(addr.ToString(a), registry.RoleAddress)
	} else {
		_, info, ok = s.registry.Lookup(identifier, registry.RoleName)
	}
	if !ok {
		return registry.ClientInfo{}, wsockerr.Newf(wsockerr.ClientNotFound, "no such client: %s", identifier)
	}
	return info, nil
}

// GetGroup returns the ClientInfo for every member of group.
func (s *Server) GetGroup(group string) []registry.ClientInfo {
	var out []registry.ClientInfo
	for conn := range s.registry.All() {
		if info, ok := s.registry.Get(conn); ok && info.Group == group {
			out = append(out, info)
		}
	}
	return out
}

// GetAllClients returns every registered client's ClientInfo.
func (s *Server) GetAllClients() []registry.ClientInfo {
	all := s.registry.All()
	out := make([]registry.ClientInfo, 0, len(all))
	for _, info := range all {
		out = append(out, info)
	}
	return out
}

// DisconnectClient disconnects the client identified by identifier.
// force sends the client a $DISCONN$ frame before the socket is closed;
// without it the socket is closed with no further frame. callLeave
// controls whether the "leave" reserved handler runs.
func (s *Server) DisconnectClient(identifier string, force, callLeave bool) error {
	conn, err := s.resolveClient(identifier)
	if err != nil {
		return err
	}
	s.disconnect(conn, force, callLeave)
	return nil
}

// DisconnectAllClients disconnects every registered client.
func (s *Server) DisconnectAllClients(force bool) {
	for conn := range s.registry.All() {
		s.disconnect(conn, force, true)
	}
}

// Recv blocks until the next inbound user command matching command (or
// any command, if empty) arrives, then coerces it to target.
func (s *Server) Recv(ctx context.Context, command string, target typecast.Kind) (typecast.Value, error) {
	return s.dispatch.Recv(ctx, command, target)
}
