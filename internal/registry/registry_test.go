package registry

import (
	"net"
	"testing"

	"github.com/nodegraph/wiresock/internal/addr"
	"github.com/nodegraph/wiresock/internal/wsockerr"
)

func fakeConn(t *testing.T) net.Conn {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() {
		c1.Close()
		c2.Close()
	})
	return c1
}

func TestInsertGetRemove(t *testing.T) {
	r := New()
	conn := fakeConn(t)
	a, _ := addr.New("10.0.0.1", 1234)
	info := ClientInfo{Addr: a, Name: "alice", Group: "blue"}

	if err := r.Insert(conn, info); err != nil {
		t.Fatal(err)
	}

	got, ok := r.Get(conn)
	if !ok || got != info {
		t.Fatalf("Get = %+v, %v; want %+v, true", got, ok, info)
	}

	removed, ok := r.Remove(conn)
	if !ok || removed != info {
		t.Fatalf("Remove = %+v, %v; want %+v, true", removed, ok, info)
	}

	if _, ok := r.Get(conn); ok {
		t.Fatal("expected conn to be gone after Remove")
	}
}

func TestInsertDuplicateFails(t *testing.T) {
	r := New()
	conn := fakeConn(t)
	a, _ := addr.New("10.0.0.1", 1234)
	info := ClientInfo{Addr: a}

	if err := r.Insert(conn, info); err != nil {
		t.Fatal(err)
	}
	err := r.Insert(conn, info)
	if !wsockerr.Is(err, wsockerr.ClientException) {
		t.Fatalf("expected ClientException, got %v", err)
	}
}

func TestRenameAndLookupByName(t *testing.T) {
	r := New()
	conn := fakeConn(t)
	a, _ := addr.New("10.0.0.1", 1234)
	if err := r.Insert(conn, ClientInfo{Addr: a, Name: "alice"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Rename(conn, "bob"); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := r.Lookup("alice", RoleName); ok {
		t.Fatal("old name should no longer resolve")
	}

	gotConn, info, ok := r.Lookup("bob", RoleName)
	if !ok || gotConn != conn || info.Name != "bob" {
		t.Fatalf("Lookup(bob) = %v, %+v, %v", gotConn, info, ok)
	}
}

func TestRegroupAndLookupByGroup(t *testing.T) {
	r := New()
	conn := fakeConn(t)
	a, _ := addr.New("10.0.0.2", 2222)
	if err := r.Insert(conn, ClientInfo{Addr: a, Group: "red"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Regroup(conn, "blue"); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := r.Lookup("red", RoleGroup); ok {
		t.Fatal("old group should no longer resolve")
	}
	if _, _, ok := r.Lookup("blue", RoleGroup); !ok {
		t.Fatal("new group should resolve")
	}
}

func TestLookupByAddress(t *testing.T) {
	r := New()
	conn := fakeConn(t)
	a, _ := addr.New("10.0.0.3", 3333)
	if err := r.Insert(conn, ClientInfo{Addr: a}); err != nil {
		t.Fatal(err)
	}

	gotConn, _, ok := r.Lookup("10.0.0.3:3333", RoleAddress)
	if !ok || gotConn != conn {
		t.Fatalf("Lookup by address failed: %v, %v", gotConn, ok)
	}
}

func TestRenameUnregisteredConnFails(t *testing.T) {
	r := New()
	conn := fakeConn(t)
	err := r.Rename(conn, "x")
	if !wsockerr.Is(err, wsockerr.ClientNotFound) {
		t.Fatalf("expected ClientNotFound, got %v", err)
	}
}

func TestMembers(t *testing.T) {
	r := New()
	c1, c2, c3 := fakeConn(t), fakeConn(t), fakeConn(t)
	a1, _ := addr.New("10.0.0.1", 1)
	a2, _ := addr.New("10.0.0.2", 2)
	a3, _ := addr.New("10.0.0.3", 3)
	r.Insert(c1, ClientInfo{Addr: a1, Group: "team"})
	r.Insert(c2, ClientInfo{Addr: a2, Group: "team"})
	r.Insert(c3, ClientInfo{Addr: a3, Group: "other"})

	members := r.Members("team")
	if len(members) != 2 {
		t.Fatalf("Members(team) = %d, want 2", len(members))
	}
}

func TestLen(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Fatal("new registry should be empty")
	}
	conn := fakeConn(t)
	a, _ := addr.New("10.0.0.1", 1)
	r.Insert(conn, ClientInfo{Addr: a})
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}
