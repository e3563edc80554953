// Package server implements the multi-client TCP multiplexer: connection
// acceptance, the handshake, the bidirectional client registry, in-band
// control messages, and routing of inbound frames to reserved or
// user-registered handlers. One goroutine per accepted connection blocks
// in wire.ReceiveFrame rather than multiplexing reads over a readiness
// selector across the whole connection set.
package server

import (
	"context"
	"net"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/nodegraph/wiresock/internal/addr"
	"github.com/nodegraph/wiresock/internal/control"
	"github.com/nodegraph/wiresock/internal/dispatch"
	"github.com/nodegraph/wiresock/internal/keepalive"
	"github.com/nodegraph/wiresock/internal/metrics"
	"github.com/nodegraph/wiresock/internal/registry"
	"github.com/nodegraph/wiresock/internal/typecast"
	"github.com/nodegraph/wiresock/internal/wire"
	"github.com/nodegraph/wiresock/internal/wsockerr"
	"github.com/nodegraph/wiresock/pkg/wirelog"
)

// Server is a running (or not-yet-started) connection multiplexer.
type Server struct {
	addr addr.Address
	cfg  config

	listener net.Listener

	registry  *registry.Registry
	dispatch  *dispatch.Table
	keepalive *keepalive.Supervisor
	metrics   *metrics.Collector

	sendMu   sync.Mutex
	sendLock map[net.Conn]*sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	// ready closes once Start has bound the listener. Useful when
	// constructing with an ephemeral port (0) and needing to learn the
	// chosen address before connecting clients.
	ready chan struct{}
}

// New validates addr and builds a Server, without binding yet. Start
// performs the bind/listen and runs the accept loop.
func New(host string, port int, opts ...Option) (*Server, error) {
	a, err := addr.New(host, port)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		addr:     a,
		cfg:      cfg,
		registry: registry.New(),
		dispatch: dispatch.New(dispatch.SideServer, cfg.cacheSize),
		metrics:  metrics.New("wiresock"),
		sendLock: make(map[net.Conn]*sync.Mutex),
		closed:   make(chan struct{}),
		ready:    make(chan struct{}),
	}

	if cfg.keepaliveEnabled {
		s.keepalive = keepalive.New(s, s.sendKeepalive, cfg.keepaliveInterval, cfg.keepaliveGrace, s.metrics.IncKeepaliveRound)
	}

	return s, nil
}

// Metrics exposes the server's prometheus.Collector for registration with
// a prometheus.Registry. Opt-in; never required for correctness.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Ready closes once Start has bound the listener.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener's address. Only valid after Ready closes.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// On registers a handler for command. Reserved names (join, leave,
// message, name_change, group_change, *) are filed under their fixed
// schema unless override is true.
func (s *Server) On(command string, fn dispatch.HandlerFunc, params []dispatch.ParamSpec, threaded, override bool) error {
	return s.dispatch.Register(command, fn, params, threaded, override)
}

// Start binds the listener and runs the accept loop until ctx is done or
// Close is called.
func (s *Server) Start(ctx context.Context) error {
	// Backlog tuning beyond the OS default is platform-specific and left
	// unset; s.cfg.backlog is accepted as a construction option but only
	// 0 (OS default) is honored here.
	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp4", addr.ToString(s.addr))
	if err != nil {
		return wsockerr.Wrap(wsockerr.ServerException, err, "listening")
	}
	if s.cfg.maxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.maxConnections)
	}
	s.listener = ln
	close(s.ready)

	if s.keepalive != nil {
		s.keepalive.Start()
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				wirelog.Warn("server: accept: %v", err)
				return wsockerr.Wrap(wsockerr.ServerException, err, "accepting connection")
			}
		}
		go s.handleConnection(conn)
	}
}

// Close shuts the server down: it closes the listener, every registered
// connection, and stops the keepalive supervisor if running.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.keepalive != nil {
			s.keepalive.Stop()
		}
		for conn := range s.registry.All() {
			conn.Close()
		}
	})
	return nil
}

func (s *Server) headerLen() int { return s.cfg.headerLen }

func (s *Server) lockFor(conn net.Conn) *sync.Mutex {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	mu, ok := s.sendLock[conn]
	if !ok {
		mu = &sync.Mutex{}
		s.sendLock[conn] = mu
	}
	return mu
}

func (s *Server) dropLock(conn net.Conn) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	delete(s.sendLock, conn)
}

// send writes one frame to conn, serialized against any concurrent writer
// on the same connection (dispatch turn vs. keepalive), per the per-
// connection send mutex required by the concurrency model.
func (s *Server) send(conn net.Conn, payload []byte) error {
	mu := s.lockFor(conn)
	mu.Lock()
	defer mu.Unlock()

	if err := wire.SendFrame(conn, payload, s.headerLen()); err != nil {
		return err
	}
	s.metrics.IncFramesSent()
	return nil
}

func (s *Server) sendKeepalive(conn net.Conn) error {
	return s.send(conn, []byte(control.PrefixKeepAlive))
}

// Connections implements keepalive.Conns.
func (s *Server) Connections() []net.Conn {
	all := s.registry.All()
	out := make([]net.Conn, 0, len(all))
	for c := range all {
		out = append(out, c)
	}
	return out
}

// ForceDisconnect implements keepalive.Conns.
func (s *Server) ForceDisconnect(conn net.Conn) {
	s.metrics.IncKeepaliveDrop()
	s.disconnect(conn, true, true)
}

func toClientData(info registry.ClientInfo) control.ClientData {
	return control.ClientData{Address: addr.ToString(info.Addr), Name: info.Name, Group: info.Group}
}

func clientValue(info registry.ClientInfo) typecast.Value {
	d, _ := typecast.NewDict(
		[]string{"address", "name", "group"},
		[]typecast.Value{
			typecast.NewString(addr.ToString(info.Addr)),
			typecast.NewString(info.Name),
			typecast.NewString(info.Group),
		},
	)
	return d
}
