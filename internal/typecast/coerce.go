package typecast

import "github.com/nodegraph/wiresock/internal/wsockerr"

// Coerce decodes body/format and asserts the result matches target, the
// single entry point dispatch and recv use when a handler or a blocking
// receive declares the type it expects. It fails with TypeCoercion both
// when the wire data is malformed and when it decodes cleanly to the wrong
// Kind.
func Coerce(body []byte, format string, target Kind) (Value, error) {
	v, err := Decode(format, body)
	if err != nil {
		return Value{}, err
	}
	if v.kind != target {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "decoded value has kind %v, want %v", v.kind, target)
	}
	return v, nil
}
