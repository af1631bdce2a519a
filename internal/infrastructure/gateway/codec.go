package gateway

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Subprotocol names. A client selects its frame codec by offering one of them
// in Sec-WebSocket-Protocol.
const (
	SubprotocolJSON = "netgate.json"
	SubprotocolCBOR = "netgate.cbor"
)

// Codec encodes gateway frames.
type Codec interface {
	Name() string
	MessageType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) MessageType() int                   { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// cborCodec uses Core Deterministic Encoding and decodes untyped maps as
// map[string]any so parameters look the same as under JSON.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() (*cborCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}
	return &cborCodec{enc: enc, dec: dec}, nil
}

func (*cborCodec) Name() string                         { return "cbor" }
func (*cborCodec) MessageType() int                     { return websocket.BinaryMessage }
func (c *cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c *cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// codecs indexes the available codecs by subprotocol and by name.
type codecs struct {
	bySubprotocol map[string]Codec
	byName        map[string]Codec
}

func newCodecs() (*codecs, error) {
	cb, err := newCBORCodec()
	if err != nil {
		return nil, err
	}
	js := jsonCodec{}
	return &codecs{
		bySubprotocol: map[string]Codec{SubprotocolJSON: js, SubprotocolCBOR: cb},
		byName:        map[string]Codec{js.Name(): js, cb.Name(): cb},
	}, nil
}

// pick returns the codec for a negotiated subprotocol, or fallback by name.
func (c *codecs) pick(subprotocol, fallback string) (Codec, error) {
	if codec, ok := c.bySubprotocol[subprotocol]; ok {
		return codec, nil
	}
	if codec, ok := c.byName[fallback]; ok {
		return codec, nil
	}
	return nil, fmt.Errorf("unknown codec %q", fallback)
}
