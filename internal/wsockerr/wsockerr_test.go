package wsockerr

import (
	"errors"
	"testing"
)

func TestAsKind(t *testing.T) {
	err := New(ClientNotFound, "no such client: bob")

	kind, ok := AsKind(err)
	if !ok || kind != ClientNotFound {
		t.Fatalf("AsKind() = %v, %v; want ClientNotFound, true", kind, ok)
	}

	if !Is(err, ClientNotFound) {
		t.Fatal("Is(err, ClientNotFound) = false")
	}
	if Is(err, GroupNotFound) {
		t.Fatal("Is(err, GroupNotFound) = true")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Protocol, cause, "reading header")

	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}

	kind, ok := AsKind(err)
	if !ok || kind != Protocol {
		t.Fatalf("AsKind() = %v, %v; want Protocol, true", kind, ok)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Protocol, nil, "whatever") != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
}

func TestPlainErrorHasNoKind(t *testing.T) {
	if _, ok := AsKind(errors.New("plain")); ok {
		t.Fatal("plain error should not resolve a Kind")
	}
}
