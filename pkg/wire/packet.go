package wire

import (
	"encoding"
	"fmt"

	"github.com/cuemby/herald/pkg/types"
)

// Packet layout: code(2) | destination(4) | source(4) | body
const (
	HeaderSize        = 10
	destinationOffset = 2
	sourceOffset      = 6
)

// Message is a typed wire message body
type Message interface {
	Code() Code
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Header is the routing prefix of every packet
type Header struct {
	Code        Code
	Destination types.Address
	Source      types.Address
}

// Packet is a received frame with its body still encoded
type Packet struct {
	Header
	Body []byte
}

// Marshal encodes msg into a full packet addressed from src to dst
func Marshal(dst, src types.Address, msg Message) ([]byte, error) {
	body, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Code(), err)
	}

	w := &writer{buf: make([]byte, 0, HeaderSize+len(body))}
	w.u16(uint16(msg.Code()))
	putAddress(w, dst)
	putAddress(w, src)
	w.buf = append(w.buf, body...)
	return w.buf, nil
}

// Unmarshal splits a raw frame into header and body. The body aliases buf.
func Unmarshal(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: packet of %d bytes", ErrShortBuffer, len(buf))
	}
	r := newReader(buf[:HeaderSize])
	p := Packet{Body: buf[HeaderSize:]}
	p.Code = Code(r.u16())
	p.Destination = getAddress(r)
	p.Source = getAddress(r)
	return p, r.finish()
}

// Decode decodes the body with the registry's factory for the packet code
func (p Packet) Decode(reg *Registry) (Message, error) {
	return reg.Decode(p.Code, p.Body)
}

// PatchDestination rewrites the destination of an encoded packet in place
func PatchDestination(buf []byte, dst types.Address) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: packet of %d bytes", ErrShortBuffer, len(buf))
	}
	buf[destinationOffset] = dst.Subsystem
	buf[destinationOffset+1] = dst.Node
	buf[destinationOffset+2] = dst.Component
	buf[destinationOffset+3] = dst.Instance
	return nil
}

// PeekDestination reads the destination of an encoded packet
func PeekDestination(buf []byte) (types.Address, error) {
	if len(buf) < HeaderSize {
		return types.Address{}, fmt.Errorf("%w: packet of %d bytes", ErrShortBuffer, len(buf))
	}
	return addressAt(buf, destinationOffset), nil
}

// PeekSource reads the source of an encoded packet
func PeekSource(buf []byte) (types.Address, error) {
	if len(buf) < HeaderSize {
		return types.Address{}, fmt.Errorf("%w: packet of %d bytes", ErrShortBuffer, len(buf))
	}
	return addressAt(buf, sourceOffset), nil
}

func addressAt(buf []byte, off int) types.Address {
	return types.NewAddress(buf[off], buf[off+1], buf[off+2], buf[off+3])
}

func putAddress(w *writer, a types.Address) {
	w.u8(a.Subsystem)
	w.u8(a.Node)
	w.u8(a.Component)
	w.u8(a.Instance)
}

func getAddress(r *reader) types.Address {
	return types.NewAddress(r.u8(), r.u8(), r.u8(), r.u8())
}

// EncodeEmbedded encodes msg as code(2) | body, the form carried inside an
// Event envelope so the reported message type travels with its bytes
func EncodeEmbedded(msg Message) ([]byte, error) {
	body, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Code(), err)
	}
	w := &writer{buf: make([]byte, 0, 2+len(body))}
	w.u16(uint16(msg.Code()))
	w.buf = append(w.buf, body...)
	return w.buf, nil
}

// DecodeEmbedded reverses EncodeEmbedded
func DecodeEmbedded(buf []byte, reg *Registry) (Message, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: embedded message of %d bytes", ErrShortBuffer, len(buf))
	}
	r := newReader(buf[:2])
	code := Code(r.u16())
	return reg.Decode(code, buf[2:])
}
