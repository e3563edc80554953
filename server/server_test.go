package server

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nodegraph/wiresock/internal/control"
	"github.com/nodegraph/wiresock/internal/dispatch"
	"github.com/nodegraph/wiresock/internal/typecast"
	"github.com/nodegraph/wiresock/internal/wire"
)

const testHeaderLen = 16

func startTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	s, err := New("127.0.0.1", 0, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	t.Cleanup(func() {
		cancel()
		s.Close()
	})

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server never bound a listener")
	}
	return s, s.Addr().String()
}

type testConn struct {
	conn net.Conn
}

func dialTest(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &testConn{conn: conn}
}

func (c *testConn) hello(t *testing.T, name, group string) {
	t.Helper()
	body, _ := json.Marshal(struct {
		Name  string `json:"name"`
		Group string `json:"group"`
	}{name, group})
	payload := append([]byte(control.PrefixCltHello), body...)
	if err := wire.SendFrame(c.conn, payload, testHeaderLen); err != nil {
		t.Fatalf("hello: %v", err)
	}
}

func (c *testConn) send(t *testing.T, payload string) {
	t.Helper()
	if err := wire.SendFrame(c.conn, []byte(payload), testHeaderLen); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func dictField(v typecast.Value, key string) (string, bool) {
	keys, values, ok := v.AsDict()
	if !ok {
		return "", false
	}
	for i, k := range keys {
		if k == key {
			s, ok := values[i].AsString()
			return s, ok
		}
	}
	return "", false
}

func (c *testConn) recv(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReceiveFrame(c.conn, testHeaderLen)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return string(frame.Payload)
}

func TestHandshakeAndJoinHandler(t *testing.T) {
	s, addr := startTestServer(t)

	joined := make(chan typecast.Value, 1)
	if err := s.On("join", func(args []typecast.Value) error {
		joined <- args[0]
		return nil
	}, []dispatch.ParamSpec{{Role: dispatch.RoleClientData}}, false, true); err != nil {
		t.Fatalf("On(join): %v", err)
	}

	c := dialTest(t, addr)
	defer c.conn.Close()
	c.hello(t, "Alice", "g1")

	select {
	case v := <-joined:
		name, ok := dictField(v, "name")
		if !ok || name != "Alice" {
			t.Fatalf("join client_data name = %q, want Alice", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join handler never fired")
	}
}

func TestRename(t *testing.T) {
	s, addr := startTestServer(t)

	c := dialTest(t, addr)
	defer c.conn.Close()
	c.hello(t, "Alice", "g1")
	time.Sleep(50 * time.Millisecond)

	c.send(t, control.PrefixChName+"Bob")
	time.Sleep(50 * time.Millisecond)

	if _, err := s.GetClient("Bob"); err != nil {
		t.Fatalf("GetClient(Bob): %v", err)
	}
	if _, err := s.GetClient("Alice"); err == nil {
		t.Fatal("GetClient(Alice) should fail after rename")
	}
}

func TestGetClientLookup(t *testing.T) {
	_, addr := startTestServer(t)

	a := dialTest(t, addr)
	defer a.conn.Close()
	a.hello(t, "Alice", "g1")
	time.Sleep(50 * time.Millisecond)

	b := dialTest(t, addr)
	defer b.conn.Close()
	b.hello(t, "Bob", "g1")
	time.Sleep(50 * time.Millisecond)

	b.send(t, control.PrefixGetClt+"Alice")
	reply := b.recv(t)
	var data control.ClientData
	if err := json.Unmarshal([]byte(reply), &data); err != nil {
		t.Fatalf("decoding reply %q: %v", reply, err)
	}
	if data.Name != "Alice" {
		t.Fatalf("got name %q, want Alice", data.Name)
	}

	b.send(t, control.PrefixGetClt+"nobody")
	reply = b.recv(t)
	if reply != control.NoExistTraceback {
		t.Fatalf("got %q, want NoExistTraceback", reply)
	}
}

func TestSendAllClients(t *testing.T) {
	s, addr := startTestServer(t)

	conns := make([]*testConn, 3)
	for i := range conns {
		conns[i] = dialTest(t, addr)
		defer conns[i].conn.Close()
		conns[i].hello(t, "", "")
	}
	time.Sleep(50 * time.Millisecond)

	if err := s.SendAllClients("announce", typecast.NewString("hello")); err != nil {
		t.Fatalf("SendAllClients: %v", err)
	}

	for _, c := range conns {
		// Clients that joined earlier may first see $CLTCONN$ broadcasts
		// for the clients that joined after them.
		payload := c.recv(t)
		for strings.HasPrefix(payload, control.PrefixCltConn) {
			payload = c.recv(t)
		}
		command, content, ok := control.ParseCommandFrame(payload)
		if !ok || command != "announce" {
			t.Fatalf("got payload %q", payload)
		}
		format, body := control.SplitFormatBody(content)
		v, err := typecast.Decode(format, body)
		if err != nil {
			t.Fatalf("decoding: %v", err)
		}
		got, _ := v.AsString()
		if got != "hello" {
			t.Fatalf("got %q, want hello", got)
		}
	}
}

func TestDispatchUserCommand(t *testing.T) {
	s, addr := startTestServer(t)

	received := make(chan string, 1)
	if err := s.On("ping", func(args []typecast.Value) error {
		received <- "called"
		return nil
	}, nil, false, false); err != nil {
		t.Fatalf("On(ping): %v", err)
	}

	c := dialTest(t, addr)
	defer c.conn.Close()
	c.hello(t, "Alice", "g1")
	time.Sleep(50 * time.Millisecond)

	c.send(t, control.BuildCommandFrame("ping", ""))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("ping handler never fired")
	}
}

func TestDisconnectSendsDisconnFrame(t *testing.T) {
	s, addr := startTestServer(t)

	c := dialTest(t, addr)
	defer c.conn.Close()
	c.hello(t, "Alice", "g1")
	time.Sleep(50 * time.Millisecond)

	if err := s.DisconnectClient("Alice", true, true); err != nil {
		t.Fatalf("DisconnectClient: %v", err)
	}

	got := c.recv(t)
	if got != control.PrefixDisconn {
		t.Fatalf("got %q, want %q", got, control.PrefixDisconn)
	}
}
