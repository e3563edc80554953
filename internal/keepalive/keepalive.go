// Package keepalive implements the server-side liveness supervisor: a
// fixed-cadence goroutine that sends a $KEEPALIVE$ to every connected
// client, waits out a grace period, and force-disconnects whoever never
// acknowledged, in a two-phase mark/wait/sweep round.
package keepalive

import (
	"net"
	"sync"
	"time"

	"github.com/nodegraph/wiresock/pkg/wirelog"
)

// Default cadence, matching ron's HEARTBEAT_RATE/REAPER_RATE pairing of a
// 30s send interval and a 30s grace window.
const (
	DefaultInterval = 30 * time.Second
	DefaultGrace    = 30 * time.Second
)

// Conns is the minimal view of the registry the supervisor needs: the set
// of currently connected connections, and the ability to remove one that
// failed to ack.
type Conns interface {
	Connections() []net.Conn
	ForceDisconnect(conn net.Conn)
}

// Sender writes the keepalive control frame to a single connection.
type Sender func(conn net.Conn) error

// Supervisor runs the round described above in the background once
// started. New replaces a zero Interval or Grace with the defaults;
// callers that want keepalive disabled simply do not call Start.
type Supervisor struct {
	Interval time.Duration
	Grace    time.Duration

	conns Conns
	send  Sender

	// onRound, if set, is called once per mark/sweep round after the
	// keepalive frame has gone out to every connection. Used to feed a
	// metrics counter; nil is fine, meaning no one is listening.
	onRound func()

	mu      sync.Mutex
	pending map[net.Conn]struct{}

	stop chan struct{}
	done chan struct{}
}

// New builds a Supervisor. interval/grace of zero fall back to the
// defaults; callers that want keepalive disabled entirely simply never
// call Start. onRound, if non-nil, is invoked once per round (see
// Supervisor.onRound).
func New(conns Conns, send Sender, interval, grace time.Duration, onRound func()) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Supervisor{
		Interval: interval,
		Grace:    grace,
		conns:    conns,
		send:     send,
		onRound:  onRound,
		pending:  make(map[net.Conn]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background round. Calling Start more than once is a
// programmer error.
func (s *Supervisor) Start() {
	go s.run()
}

// Stop signals the round to exit and blocks until it has.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
}

// Ack removes conn from the awaiting-ack set in response to a $KEEPACK$
// from that client.
func (s *Supervisor) Ack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, conn)
}

func (s *Supervisor) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-time.After(s.Interval):
		}

		s.mark()

		select {
		case <-s.stop:
			return
		case <-time.After(s.Grace):
		}

		s.sweep()
	}
}

func (s *Supervisor) mark() {
	conns := s.conns.Connections()

	s.mu.Lock()
	s.pending = make(map[net.Conn]struct{}, len(conns))
	for _, c := range conns {
		s.pending[c] = struct{}{}
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := s.send(c); err != nil {
			wirelog.Warn("keepalive: sending to %v: %v", c.RemoteAddr(), err)
		}
	}

	if s.onRound != nil {
		s.onRound()
	}
}

func (s *Supervisor) sweep() {
	s.mu.Lock()
	expired := make([]net.Conn, 0, len(s.pending))
	for c := range s.pending {
		expired = append(expired, c)
	}
	s.pending = make(map[net.Conn]struct{})
	s.mu.Unlock()

	for _, c := range expired {
		wirelog.Warn("keepalive: %v did not ack in time, disconnecting", c.RemoteAddr())
		s.conns.ForceDisconnect(c)
	}
}
