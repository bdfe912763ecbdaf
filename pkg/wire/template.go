package wire

import (
	"bytes"
	"fmt"
)

// Template is the query-shaped payload template of an event. It keeps
// whichever form it was given, raw bytes or a typed message, and produces the
// other on demand. A Template is not safe for concurrent use; it is owned by
// the event that holds it.
type Template struct {
	code Code
	raw  []byte
	msg  Message
}

// TemplateFromBytes wraps the undecoded body of a query message
func TemplateFromBytes(code Code, raw []byte) *Template {
	if raw == nil {
		raw = []byte{}
	}
	return &Template{code: code, raw: bytes.Clone(raw)}
}

// TemplateFromMessage wraps a typed query message
func TemplateFromMessage(msg Message) *Template {
	return &Template{code: msg.Code(), msg: msg}
}

// Code returns the query message code
func (t *Template) Code() Code {
	return t.code
}

// Bytes returns the encoded body, encoding the typed form once if needed
func (t *Template) Bytes() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	raw, err := t.msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode template %s: %w", t.code, err)
	}
	if raw == nil {
		raw = []byte{}
	}
	t.raw = raw
	return raw, nil
}

// Message returns the typed form, decoding the raw bytes once if needed
func (t *Template) Message(reg *Registry) (Message, error) {
	if t.msg != nil {
		return t.msg, nil
	}
	msg, err := reg.Decode(t.code, t.raw)
	if err != nil {
		return nil, err
	}
	t.msg = msg
	return msg, nil
}

// Equal compares code and encoded bytes
func (t *Template) Equal(o *Template) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.code != o.code {
		return false
	}
	a, errA := t.Bytes()
	b, errB := o.Bytes()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Clone returns an independent template holding the encoded form
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	raw, err := t.Bytes()
	if err != nil {
		return &Template{code: t.code, msg: t.msg}
	}
	return TemplateFromBytes(t.code, raw)
}
