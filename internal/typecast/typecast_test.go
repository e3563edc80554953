package typecast

import (
	"testing"

	"github.com/nodegraph/wiresock/internal/wsockerr"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	format, body, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(format, body)
	if err != nil {
		t.Fatalf("Decode(%q, %v): %v", format, body, err)
	}
	if !Equal(v, got) {
		t.Fatalf("round trip mismatch: got %+v, want %+v (format=%q)", got, v, format)
	}
	return got
}

func TestRoundTripString(t *testing.T) {
	roundTrip(t, NewString("hello world"))
	roundTrip(t, NewString(""))
}

func TestRoundTripBytes(t *testing.T) {
	roundTrip(t, NewBytes([]byte{0x00, 0xff, 0x10}))
	roundTrip(t, NewBytes(nil))
}

func TestRoundTripInt(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, -9999999, 1 << 40} {
		roundTrip(t, NewInt(n))
	}
}

func TestRoundTripFloat(t *testing.T) {
	for _, f := range []float32{0, 1.5, -3.25, 3.14159} {
		roundTrip(t, NewFloat(f))
	}
}

func TestFloatEncodingIsBigEndianIEEE754(t *testing.T) {
	v := NewFloat(1.0)
	_, body, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	// 1.0f32 = 0x3F800000
	want := []byte{0x3F, 0x80, 0x00, 0x00}
	if len(body) != 4 {
		t.Fatalf("float body length = %d, want 4", len(body))
	}
	for i := range want {
		if body[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, body[i], want[i])
		}
	}
}

func TestRoundTripBool(t *testing.T) {
	roundTrip(t, NewBool(true))
	roundTrip(t, NewBool(false))
}

func TestRoundTripNull(t *testing.T) {
	roundTrip(t, Null())
}

func TestRoundTripEmptyList(t *testing.T) {
	got := roundTrip(t, NewList(nil))
	elems, ok := got.AsSlice()
	if !ok || len(elems) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestRoundTripFlatList(t *testing.T) {
	roundTrip(t, NewList([]Value{NewInt(1), NewString("two"), NewBool(true)}))
}

func TestRoundTripTuple(t *testing.T) {
	roundTrip(t, NewTuple([]Value{NewFloat(1.5), Null()}))
}

func TestRoundTripNestedContainers(t *testing.T) {
	inner, err := NewDict([]string{"a", "b"}, []Value{NewInt(1), NewInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	outer := NewList([]Value{
		inner,
		NewTuple([]Value{NewString("x"), NewList([]Value{NewInt(1), NewInt(2), NewInt(3)})}),
		NewBytes([]byte{1, 2, 3}),
	})
	roundTrip(t, outer)
}

func TestRoundTripEmptyDict(t *testing.T) {
	d, err := NewDict(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, d)
}

func TestRoundTripDict(t *testing.T) {
	d, err := NewDict([]string{"name", "count"}, []Value{NewString("alice"), NewInt(3)})
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, d)
}

func TestNewDictRejectsDuplicateKeys(t *testing.T) {
	_, err := NewDict([]string{"a", "a"}, []Value{NewInt(1), NewInt(2)})
	if !wsockerr.Is(err, wsockerr.TypeCoercion) {
		t.Fatalf("expected TypeCoercion error, got %v", err)
	}
}

func TestNewDictRejectsLengthMismatch(t *testing.T) {
	_, err := NewDict([]string{"a"}, nil)
	if !wsockerr.Is(err, wsockerr.TypeCoercion) {
		t.Fatalf("expected TypeCoercion error, got %v", err)
	}
}

func TestCoerceWrongKind(t *testing.T) {
	format, body, err := Encode(NewInt(7))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Coerce(body, format, KindString)
	if !wsockerr.Is(err, wsockerr.TypeCoercion) {
		t.Fatalf("expected TypeCoercion error, got %v", err)
	}
}

func TestCoerceMatchingKind(t *testing.T) {
	format, body, err := Encode(NewString("ok"))
	if err != nil {
		t.Fatal(err)
	}
	v, err := Coerce(body, format, KindString)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := v.AsString()
	if !ok || s != "ok" {
		t.Fatalf("Coerce result = %+v", v)
	}
}

func TestDecodeMalformedFormatIsTypeCoercion(t *testing.T) {
	_, err := Decode("xs", []byte("a"))
	if !wsockerr.Is(err, wsockerr.TypeCoercion) {
		t.Fatalf("expected TypeCoercion error, got %v", err)
	}
}

func TestDecodeTruncatedBodyIsTypeCoercion(t *testing.T) {
	_, err := Decode("5s", []byte("ab"))
	if !wsockerr.Is(err, wsockerr.TypeCoercion) {
		t.Fatalf("expected TypeCoercion error, got %v", err)
	}
}

func TestDecodeUnclosedContainerIsTypeCoercion(t *testing.T) {
	// A list format missing its closing bracket.
	_, err := Decode("2[1s", []byte("a"))
	if !wsockerr.Is(err, wsockerr.TypeCoercion) {
		t.Fatalf("expected TypeCoercion error, got %v", err)
	}
}
