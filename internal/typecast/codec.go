package typecast

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/nodegraph/wiresock/internal/wsockerr"
)

// leaf tags
const (
	tagString = 's'
	tagBytes  = 'b'
	tagInt    = 'i'
	tagFloat  = 'f'
	tagBool   = 'o'
	tagNull   = 'n'
)

// container tags / punctuation, indexed by Kind
const (
	tagList  = 'l'
	tagTuple = 't'
	tagDict  = 'd'
)

var openFor = map[byte]byte{tagList: '[', tagTuple: '(', tagDict: '{'}
var closeFor = map[byte]byte{tagList: ']', tagTuple: ')', tagDict: '}'}
var tagForOpen = map[byte]byte{'[': tagList, '(': tagTuple, '{': tagDict}

// Encode produces the (format, body) pair for v: a leaf emits
// "<len><tag>"; a container emits, at the top level, just
// "<container-tag><inner-fmt>" with no surrounding length or punctuation,
// and recursively "<body-len><open><inner-fmt><close>".
func Encode(v Value) (format string, body []byte, err error) {
	return encodeNode(v, true)
}

func encodeNode(v Value, top bool) (string, []byte, error) {
	switch v.kind {
	case KindString:
		b := []byte(v.str)
		return strconv.Itoa(len(b)) + string(rune(tagString)), b, nil
	case KindBytes:
		return strconv.Itoa(len(v.bytes)) + string(rune(tagBytes)), v.bytes, nil
	case KindInt:
		b := []byte(strconv.FormatInt(v.i, 10))
		return strconv.Itoa(len(b)) + string(rune(tagInt)), b, nil
	case KindFloat:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(v.f))
		return strconv.Itoa(len(b)) + string(rune(tagFloat)), b, nil
	case KindBool:
		b := []byte{0}
		if v.b {
			b[0] = 1
		}
		return strconv.Itoa(len(b)) + string(rune(tagBool)), b, nil
	case KindNull:
		return "0" + string(rune(tagNull)), nil, nil
	case KindList, KindTuple, KindDict:
		return encodeContainer(v, top)
	default:
		return "", nil, wsockerr.Newf(wsockerr.TypeCoercion, "cannot encode value of kind %v", v.kind)
	}
}

func containerTag(k Kind) byte {
	switch k {
	case KindList:
		return tagList
	case KindTuple:
		return tagTuple
	default:
		return tagDict
	}
}

func encodeContainer(v Value, top bool) (string, []byte, error) {
	tag := containerTag(v.kind)

	var innerFmt string
	var innerBody []byte

	appendChild := func(child Value) error {
		f, b, err := encodeNode(child, false)
		if err != nil {
			return err
		}
		innerFmt += f
		innerBody = append(innerBody, b...)
		return nil
	}

	if v.kind == KindDict {
		for i, k := range v.keys {
			if err := appendChild(NewString(k)); err != nil {
				return "", nil, err
			}
			if err := appendChild(v.values[i]); err != nil {
				return "", nil, err
			}
		}
	} else {
		for _, child := range v.elems {
			if err := appendChild(child); err != nil {
				return "", nil, err
			}
		}
	}

	if top {
		return string(rune(tag)) + innerFmt, innerBody, nil
	}

	open, close_ := openFor[tag], closeFor[tag]
	format := strconv.Itoa(len(innerBody)) + string(rune(open)) + innerFmt + string(rune(close_))
	return format, innerBody, nil
}

// Decode reconstructs a Value from a (format, body) pair produced by
// Encode. An empty format decodes to Null.
func Decode(format string, body []byte) (Value, error) {
	if format == "" {
		return Null(), nil
	}

	d := &decoder{format: format, body: body}

	switch format[0] {
	case tagList, tagTuple, tagDict:
		kind := format[0]
		d.fi = 1
		var children []Value
		for d.fi < len(d.format) {
			child, err := d.decodeNode()
			if err != nil {
				return Value{}, err
			}
			children = append(children, child)
		}
		if d.bi != len(d.body) {
			return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "trailing body data after top-level container: %d bytes", len(d.body)-d.bi)
		}
		switch kind {
		case tagList:
			return NewList(children), nil
		case tagTuple:
			return NewTuple(children), nil
		default:
			return buildDict(children)
		}
	default:
		v, err := d.decodeNode()
		if err != nil {
			return Value{}, err
		}
		if d.fi != len(d.format) || d.bi != len(d.body) {
			return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "format/body length mismatch decoding %q", format)
		}
		return v, nil
	}
}

func buildDict(children []Value) (Value, error) {
	if len(children)%2 != 0 {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "dict format has an odd number of entries (%d)", len(children))
	}
	keys := make([]string, 0, len(children)/2)
	values := make([]Value, 0, len(children)/2)
	for i := 0; i < len(children); i += 2 {
		k, ok := children[i].AsString()
		if !ok {
			return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "dict key at position %d is not a string", i/2)
		}
		keys = append(keys, k)
		values = append(values, children[i+1])
	}
	return NewDict(keys, values)
}

type decoder struct {
	format string
	fi     int
	body   []byte
	bi     int
}

func (d *decoder) decodeNode() (Value, error) {
	start := d.fi
	for d.fi < len(d.format) && d.format[d.fi] >= '0' && d.format[d.fi] <= '9' {
		d.fi++
	}
	if d.fi == start {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "expected length digits at offset %d in format %q", start, d.format)
	}
	length, err := strconv.Atoi(d.format[start:d.fi])
	if err != nil {
		return Value{}, wsockerr.Wrap(wsockerr.TypeCoercion, err, "parsing format length")
	}

	if d.fi >= len(d.format) {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "format %q truncated after length", d.format)
	}
	tag := d.format[d.fi]
	d.fi++

	if open, isContainer := tagForOpen[tag]; isContainer {
		_ = open
		return d.decodeContainerBody(tag, length)
	}

	if d.bi+length > len(d.body) {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "body too short: need %d bytes at offset %d, have %d", length, d.bi, len(d.body))
	}
	data := d.body[d.bi : d.bi+length]
	d.bi += length

	return decodeLeaf(tag, data)
}

func (d *decoder) decodeContainerBody(open byte, length int) (Value, error) {
	containerKind := tagForOpen[open]
	end := d.bi + length

	if end > len(d.body) {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "container body overruns available data")
	}

	wantClose := closeFor[containerKind]

	var children []Value
	for d.fi < len(d.format) && d.format[d.fi] != wantClose {
		child, err := d.decodeNode()
		if err != nil {
			return Value{}, err
		}
		children = append(children, child)
	}
	if d.bi != end {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "container children span %d body bytes, format declares %d", d.bi-(end-length), length)
	}

	if d.fi >= len(d.format) || d.format[d.fi] != wantClose {
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "expected closing %q at offset %d in format %q", string(wantClose), d.fi, d.format)
	}
	d.fi++

	switch containerKind {
	case tagList:
		return NewList(children), nil
	case tagTuple:
		return NewTuple(children), nil
	default:
		return buildDict(children)
	}
}

func decodeLeaf(tag byte, data []byte) (Value, error) {
	switch tag {
	case tagString:
		return NewString(string(data)), nil
	case tagBytes:
		return NewBytes(data), nil
	case tagInt:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return Value{}, wsockerr.Wrap(wsockerr.TypeCoercion, err, "decoding int leaf")
		}
		return NewInt(n), nil
	case tagFloat:
		if len(data) != 4 {
			return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "float leaf must be 4 bytes, got %d", len(data))
		}
		return NewFloat(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case tagBool:
		if len(data) != 1 {
			return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "bool leaf must be 1 byte, got %d", len(data))
		}
		return NewBool(data[0] != 0), nil
	case tagNull:
		return Null(), nil
	default:
		return Value{}, wsockerr.Newf(wsockerr.TypeCoercion, "unknown leaf tag %q", string(tag))
	}
}
