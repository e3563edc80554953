// Package client implements the single-connection counterpart to package
// server: handshake, the background update loop that classifies and
// dispatches inbound frames, and the send/recv surface built on the same
// internal/dispatch.Table the server uses.
package client

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"

	"github.com/nodegraph/wiresock/internal/addr"
	"github.com/nodegraph/wiresock/internal/control"
	"github.com/nodegraph/wiresock/internal/dispatch"
	"github.com/nodegraph/wiresock/internal/typecast"
	"github.com/nodegraph/wiresock/internal/wire"
	"github.com/nodegraph/wiresock/internal/wsockerr"
	"github.com/nodegraph/wiresock/pkg/wirelog"
)

// Client is one TCP connection to a wiresock server.
type Client struct {
	cfg config

	conn net.Conn

	serverAddr addr.Address
	clientAddr addr.Address

	initialName  string
	initialGroup string

	mu    sync.Mutex
	name  string
	group string

	dispatch *dispatch.Table

	helloOnce sync.Once
	sendMu    sync.Mutex

	// getClientMu serializes GetClient calls: the $GETCLT$ reply is a bare
	// JSON payload with no command envelope to correlate it by, so only
	// one lookup may be in flight at a time.
	getClientMu sync.Mutex
	getClientCh chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// New dials host:port, sends the $CLTHELLO$ handshake exactly once, and
// starts the background update loop. Connection failure surfaces as
// ServerNotRunning, per spec.
func New(host string, port int, opts ...Option) (*Client, error) {
	a, err := addr.New(host, port)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := net.Dial("tcp4", addr.ToString(a))
	if err != nil {
		return nil, wsockerr.Wrap(wsockerr.ServerNotRunning, err, "connecting")
	}

	c := &Client{
		cfg:          cfg,
		conn:         conn,
		serverAddr:   a,
		initialName:  cfg.name,
		initialGroup: cfg.group,
		name:         cfg.name,
		group:        cfg.group,
		dispatch:     dispatch.New(dispatch.SideClient, cfg.cacheSize),
		getClientCh:  make(chan []byte, 1),
		closed:       make(chan struct{}),
	}

	if host, port, ok := splitTCPAddr(conn.LocalAddr()); ok {
		if ca, err := addr.New(host, port); err == nil {
			c.clientAddr = ca
		}
	}

	if err := c.sendHello(); err != nil {
		conn.Close()
		return nil, err
	}

	go c.updateLoop()

	return c, nil
}

// On registers a handler for command. Reserved names (client_connect,
// client_disconnect, force_disconnect) may not be registered by the user
// except via override.
func (c *Client) On(command string, fn dispatch.HandlerFunc, params []dispatch.ParamSpec, threaded, override bool) error {
	return c.dispatch.Register(command, fn, params, threaded, override)
}

// GetServerAddr returns the address this client connected to.
func (c *Client) GetServerAddr() addr.Address { return c.serverAddr }

// GetClientAddr returns this client's own local address, as derived from
// the socket at construction time.
func (c *Client) GetClientAddr() addr.Address { return c.clientAddr }

func (c *Client) sendHello() error {
	var err error
	c.helloOnce.Do(func() {
		data, marshalErr := json.Marshal(struct {
			Name  string `json:"name"`
			Group string `json:"group"`
		}{Name: c.cfg.name, Group: c.cfg.group})
		if marshalErr != nil {
			err = marshalErr
			return
		}
		err = c.write(append([]byte(control.PrefixCltHello), data...))
	})
	return err
}

func (c *Client) write(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wire.SendFrame(c.conn, payload, c.cfg.headerLen)
}

// updateLoop blocks in wire.ReceiveFrame, the idiomatic Go substitute for
// the would-block non-blocking-poll-per-turn loop: the blocking read only
// ever blocks this goroutine, never the caller.
func (c *Client) updateLoop() {
	for {
		frame, err := wire.ReceiveFrame(c.conn, c.cfg.headerLen)
		if err != nil {
			c.teardown()
			return
		}
		c.handleFrame(frame.Payload)
	}
}

func (c *Client) handleFrame(payload []byte) {
	s := string(payload)

	switch {
	case strings.HasPrefix(s, control.PrefixKeepAlive):
		if err := c.write([]byte(control.PrefixKeepAck)); err != nil {
			wirelog.Warn("client: acking keepalive: %v", err)
		}
		return

	case strings.HasPrefix(s, control.PrefixDisconn):
		c.dispatch.DispatchReservedHandler("force_disconnect", dispatch.Context{})
		c.teardown()
		return

	case strings.HasPrefix(s, control.PrefixCltConn):
		info, ok := decodeClientData(strings.TrimPrefix(s, control.PrefixCltConn))
		if ok {
			c.dispatch.DispatchReservedHandler("client_connect", dispatch.Context{ClientData: info})
		}
		return

	case strings.HasPrefix(s, control.PrefixCltDisconn):
		info, ok := decodeClientData(strings.TrimPrefix(s, control.PrefixCltDisconn))
		if ok {
			c.dispatch.DispatchReservedHandler("client_disconnect", dispatch.Context{ClientData: info})
		}
		return
	}

	if !strings.HasPrefix(s, control.PrefixCmd) {
		// The $GETCLT$ reply is the one piece of server traffic that is
		// bare JSON with no $CMD$ envelope. Route it to a waiting
		// GetClient call, if any; otherwise it is stray and dropped.
		select {
		case c.getClientCh <- payload:
		default:
		}
		return
	}

	command, content, ok := control.ParseCommandFrame(s)
	if !ok {
		wirelog.Warn("client: malformed frame from server")
		return
	}
	format, body := control.SplitFormatBody(content)
	c.dispatch.Dispatch(dispatch.Context{Command: command, Format: format, Body: body})
}

func decodeClientData(s string) (typecast.Value, bool) {
	s = strings.TrimPrefix(s, " ")
	var d control.ClientData
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return typecast.Value{}, false
	}
	v, err := typecast.NewDict(
		[]string{"address", "name", "group"},
		[]typecast.Value{
			typecast.NewString(d.Address),
			typecast.NewString(d.Name),
			typecast.NewString(d.Group),
		},
	)
	if err != nil {
		return typecast.Value{}, false
	}
	return v, true
}

// Send sends command/v to the server.
func (c *Client) Send(command string, v typecast.Value) error {
	format, body, err := typecast.Encode(v)
	if err != nil {
		return err
	}
	payload := []byte(control.BuildCommandFrame(command, control.JoinFormatBody(format, body)))
	return c.write(payload)
}

// Recv blocks until the next inbound command matching command (or any
// command, if empty) arrives, then coerces it to target.
func (c *Client) Recv(ctx context.Context, command string, target typecast.Kind) (typecast.Value, error) {
	return c.dispatch.Recv(ctx, command, target)
}

// ChangeName renames this client. An empty newName restores the name
// given at construction.
func (c *Client) ChangeName(newName string) error {
	c.mu.Lock()
	if newName == "" {
		newName = c.initialName
	}
	c.name = newName
	c.mu.Unlock()
	return c.write([]byte(control.PrefixChName + newName))
}

// ChangeGroup regroups this client. An empty newGroup restores the group
// given at construction.
func (c *Client) ChangeGroup(newGroup string) error {
	c.mu.Lock()
	if newGroup == "" {
		newGroup = c.initialGroup
	}
	c.group = newGroup
	c.mu.Unlock()
	return c.write([]byte(control.PrefixChGroup + newGroup))
}

// GetClient looks up a remote client by "ip:port" or name via $GETCLT$.
func (c *Client) GetClient(ctx context.Context, identifier string) (control.ClientData, error) {
	c.getClientMu.Lock()
	defer c.getClientMu.Unlock()

	if err := c.write([]byte(control.PrefixGetClt + identifier)); err != nil {
		return control.ClientData{}, err
	}

	var body []byte
	select {
	case body = <-c.getClientCh:
	case <-c.closed:
		return control.ClientData{}, wsockerr.New(wsockerr.ServerNotRunning, "connection closed while awaiting $GETCLT$ reply")
	case <-ctx.Done():
		return control.ClientData{}, ctx.Err()
	}

	if string(body) == control.NoExistTraceback {
		return control.ClientData{}, wsockerr.Newf(wsockerr.ClientNotFound, "no such client: %s", identifier)
	}
	var d control.ClientData
	if err := json.Unmarshal(body, &d); err != nil {
		return control.ClientData{}, wsockerr.Wrap(wsockerr.ClientException, err, "decoding $GETCLT$ reply")
	}
	return d, nil
}

// Close stops the update loop and closes the socket. emitLeave sends
// $USRCLOSE$ first so the server treats this as a graceful departure
// rather than a dropped connection.
func (c *Client) Close(emitLeave bool) error {
	if emitLeave {
		c.write([]byte(control.PrefixUsrClose))
	}
	c.teardown()
	return nil
}

func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func splitTCPAddr(a net.Addr) (string, int, bool) {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return "", 0, false
	}
	ip := tcpAddr.IP.To4()
	if ip == nil {
		return "", 0, false
	}
	return ip.String(), tcpAddr.Port, true
}
