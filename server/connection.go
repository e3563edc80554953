package server

import (
	"encoding/json"
	"net"
	"strings"

	"github.com/nodegraph/wiresock/internal/addr"
	"github.com/nodegraph/wiresock/internal/control"
	"github.com/nodegraph/wiresock/internal/dispatch"
	"github.com/nodegraph/wiresock/internal/registry"
	"github.com/nodegraph/wiresock/internal/typecast"
	"github.com/nodegraph/wiresock/internal/wire"
	"github.com/nodegraph/wiresock/internal/wsockerr"
	"github.com/nodegraph/wiresock/pkg/wirelog"
)

// handleConnection is the per-connection goroutine: perform the
// handshake, register the client, then read frames until disconnect.
func (s *Server) handleConnection(conn net.Conn) {
	info, err := s.handshake(conn)
	if err != nil {
		wirelog.Warn("server: handshake with %v failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	s.metrics.SetConnected(s.registry.Len())
	s.broadcastJoin(conn, info)
	s.dispatch.DispatchReservedHandler("join", dispatch.Context{ClientData: clientValue(info)})

	for {
		frame, err := wire.ReceiveFrame(conn, s.headerLen())
		if err != nil {
			if wsockerr.Is(err, wsockerr.PeerClosed) {
				s.disconnect(conn, false, true)
			} else {
				wirelog.Warn("server: reading from %v: %v", conn.RemoteAddr(), err)
				s.disconnect(conn, true, true)
			}
			return
		}
		s.metrics.IncFramesReceived()

		payload := string(frame.Payload)
		if payload == "" || payload == control.PrefixUsrClose {
			s.disconnect(conn, false, true)
			return
		}

		if s.handleControlFrame(conn, payload) {
			continue
		}

		s.handleUserFrame(conn, payload)
	}
}

func (s *Server) handshake(conn net.Conn) (registry.ClientInfo, error) {
	frame, err := wire.ReceiveFrame(conn, s.headerLen())
	if err != nil {
		return registry.ClientInfo{}, err
	}

	payload := string(frame.Payload)
	if !strings.HasPrefix(payload, control.PrefixCltHello) {
		return registry.ClientInfo{}, wsockerr.Newf(wsockerr.ClientException, "expected %s, got %q", control.PrefixCltHello, payload)
	}

	var hello struct {
		Name  string `json:"name"`
		Group string `json:"group"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(payload, control.PrefixCltHello)), &hello); err != nil {
		return registry.ClientInfo{}, wsockerr.Wrap(wsockerr.ClientException, err, "decoding hello")
	}

	remoteHost, remotePort := splitHostPort(conn.RemoteAddr())
	a, err := addr.New(remoteHost, remotePort)
	if err != nil {
		return registry.ClientInfo{}, err
	}

	info := registry.ClientInfo{Addr: a, Name: hello.Name, Group: hello.Group}
	if err := s.registry.Insert(conn, info); err != nil {
		return registry.ClientInfo{}, err
	}
	return info, nil
}

func (s *Server) broadcastJoin(joined net.Conn, info registry.ClientInfo) {
	body, _ := json.Marshal(toClientData(info))
	payload := append([]byte(control.PrefixCltConn+" "), body...)
	for conn := range s.registry.All() {
		if conn == joined {
			continue
		}
		if err := s.send(conn, payload); err != nil {
			wirelog.Warn("server: broadcasting join to %v: %v", conn.RemoteAddr(), err)
		}
	}
}

func (s *Server) broadcastLeave(left net.Conn, info registry.ClientInfo) {
	body, _ := json.Marshal(toClientData(info))
	payload := append([]byte(control.PrefixCltDisconn+" "), body...)
	for conn := range s.registry.All() {
		if conn == left {
			continue
		}
		if err := s.send(conn, payload); err != nil {
			wirelog.Warn("server: broadcasting leave to %v: %v", conn.RemoteAddr(), err)
		}
	}
}

// handleControlFrame classifies payload as a reserved control message and
// handles it. It reports whether payload was in fact a control message
// (true) so the caller can skip user dispatch.
func (s *Server) handleControlFrame(conn net.Conn, payload string) bool {
	switch {
	case strings.HasPrefix(payload, control.PrefixKeepAck):
		if s.keepalive != nil {
			s.keepalive.Ack(conn)
		}
		return true

	case strings.HasPrefix(payload, control.PrefixGetClt):
		s.handleGetClient(conn, strings.TrimPrefix(payload, control.PrefixGetClt))
		return true

	case strings.HasPrefix(payload, control.PrefixChName):
		s.handleRename(conn, strings.TrimPrefix(payload, control.PrefixChName))
		return true

	case strings.HasPrefix(payload, control.PrefixChGroup):
		s.handleRegroup(conn, strings.TrimPrefix(payload, control.PrefixChGroup))
		return true

	default:
		return false
	}
}

func (s *Server) handleGetClient(conn net.Conn, identifier string) {
	var info registry.ClientInfo
	var ok bool

	if a, isAddr := addr.ParseIdentifier(identifier); isAddr {
		_, info, ok = s.registry.Lookup(addr.ToString(a), registry.RoleAddress)
	} else {
		_, info, ok = s.registry.Lookup(identifier, registry.RoleName)
	}

	if !ok {
		s.send(conn, []byte(control.NoExistTraceback))
		return
	}
	body, _ := json.Marshal(toClientData(info))
	s.send(conn, body)
}

func (s *Server) handleRename(conn net.Conn, newName string) {
	info, ok := s.registry.Get(conn)
	if !ok {
		return
	}
	old := info.Name
	if newName == "" {
		newName = old
	}
	if err := s.registry.Rename(conn, newName); err != nil {
		wirelog.Warn("server: rename %v: %v", conn.RemoteAddr(), err)
		return
	}
	s.dispatch.DispatchReservedHandler("name_change", dispatch.Context{
		ClientData: clientValue(info),
		OldValue:   typecast.NewString(old),
		NewValue:   typecast.NewString(newName),
	})
}

func (s *Server) handleRegroup(conn net.Conn, newGroup string) {
	info, ok := s.registry.Get(conn)
	if !ok {
		return
	}
	old := info.Group
	if newGroup == "" {
		newGroup = old
	}
	if err := s.registry.Regroup(conn, newGroup); err != nil {
		wirelog.Warn("server: regroup %v: %v", conn.RemoteAddr(), err)
		return
	}
	s.dispatch.DispatchReservedHandler("group_change", dispatch.Context{
		ClientData: clientValue(info),
		OldValue:   typecast.NewString(old),
		NewValue:   typecast.NewString(newGroup),
	})
}

func (s *Server) handleUserFrame(conn net.Conn, payload string) {
	command, content, ok := control.ParseCommandFrame(payload)
	if !ok {
		wirelog.Warn("server: malformed command frame from %v", conn.RemoteAddr())
		return
	}

	info, _ := s.registry.Get(conn)
	format, body := control.SplitFormatBody(content)

	s.dispatch.Dispatch(dispatch.Context{
		ClientData: clientValue(info),
		Command:    command,
		Format:     format,
		Body:       body,
	})

	s.dispatch.DispatchReservedHandler("message", dispatch.Context{
		ClientData: clientValue(info),
		Command:    command,
		Format:     format,
		Body:       body,
	})
}

// disconnect removes conn from the registry, sends $DISCONN$ first when
// forced, closes the socket, and invokes "leave" if the caller wants it. Graceful client-initiated closes ($USRCLOSE$, zero-byte read) never
// send $DISCONN$ back; forced server-initiated ones do.
func (s *Server) disconnect(conn net.Conn, force, callLeave bool) {
	info, ok := s.registry.Remove(conn)
	if !ok {
		conn.Close()
		return
	}
	s.dropLock(conn)
	s.metrics.SetConnected(s.registry.Len())

	if force {
		s.send(conn, []byte(control.PrefixDisconn))
	}
	conn.Close()

	s.broadcastLeave(conn, info)
	if callLeave {
		s.dispatch.DispatchReservedHandler("leave", dispatch.Context{ClientData: clientValue(info)})
	}
}

func splitHostPort(a net.Addr) (string, int) {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return "0.0.0.0", 0
	}
	ip := tcpAddr.IP.To4()
	if ip == nil {
		return "0.0.0.0", tcpAddr.Port
	}
	return ip.String(), tcpAddr.Port
}
