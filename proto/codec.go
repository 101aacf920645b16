package proto

import (
	"bytes"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"
)

// Codec turns messages into frame payloads and back.
type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte, v interface{}) error
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCborCodec()
)

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, errors.NotValidf("codec=%q (valid: json, cbor)", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string                            { return "json" }
func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCborCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("code error cbor EncMode err=" + err.Error())
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("code error cbor DecMode err=" + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string                              { return "cbor" }
func (c cborCodec) Marshal(v interface{}) ([]byte, error)   { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(b []byte, v interface{}) error { return c.dec.Unmarshal(b, v) }

// bodyFunc decodes the value under a tag into v.
type bodyFunc func(v interface{}) error

func noBody(tag string) bodyFunc {
	return func(interface{}) error {
		return errors.NotValidf("tag=%s without body", tag)
	}
}

func splitJSON(b []byte) (string, bodyFunc, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var tag string
		if err := json.Unmarshal(b, &tag); err != nil {
			return "", nil, err
		}
		return tag, noBody(tag), nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, errors.NotValidf("tagged union with %d tags", len(m))
	}
	for tag, raw := range m {
		raw := raw
		return tag, func(v interface{}) error { return json.Unmarshal(raw, v) }, nil
	}
	panic("unreachable")
}

func splitCBOR(b []byte) (string, bodyFunc, error) {
	var tag string
	if err := cbor.Unmarshal(b, &tag); err == nil {
		return tag, noBody(tag), nil
	}
	var m map[string]cbor.RawMessage
	if err := cbor.Unmarshal(b, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, errors.NotValidf("tagged union with %d tags", len(m))
	}
	for tag, raw := range m {
		raw := raw
		return tag, func(v interface{}) error { return cbor.Unmarshal(raw, v) }, nil
	}
	panic("unreachable")
}

func isJSONNull(b []byte) bool { return string(bytes.TrimSpace(b)) == "null" }
func isCBORNull(b []byte) bool { return len(b) == 1 && (b[0] == 0xf6 || b[0] == 0xf7) }

func (s *DeviceState) decodeTag(tag string, body bodyFunc) error {
	*s = DeviceState{}
	switch tag {
	case "DimmableLight":
		s.DimmableLight = new(DimmableLightState)
		return body(s.DimmableLight)
	}
	s.Unknown = tag
	return nil
}

func (u *AttributeUpdate) decodeTag(tag string, body bodyFunc) error {
	*u = AttributeUpdate{}
	switch tag {
	case "Power":
		u.Power = new(PowerUpdate)
		return body(u.Power)
	case "Brightness":
		u.Brightness = new(BrightnessUpdate)
		return body(u.Brightness)
	}
	u.Unknown = tag
	return nil
}

func (m *ServerBound) decodeTag(tag string, body bodyFunc) error {
	*m = ServerBound{}
	switch tag {
	case "Identify":
		m.Identify = new(DeviceID)
		return body(m.Identify)
	case "UpdateNotification":
		m.UpdateNotification = new(UpdateNotification)
		return body(m.UpdateNotification)
	}
	m.Unknown = tag
	return nil
}

func (m *DeviceBound) decodeTag(tag string, body bodyFunc) error {
	*m = DeviceBound{}
	switch tag {
	case "UpdateCommand":
		m.UpdateCommand = new(UpdateCommand)
		return body(m.UpdateCommand)
	case "StateQuery":
		m.StateQuery = new(StateQuery)
		return body(m.StateQuery)
	}
	m.Unknown = tag
	return nil
}

type tagDecoder interface {
	decodeTag(tag string, body bodyFunc) error
}

func unmarshalTaggedJSON(b []byte, d tagDecoder) error {
	if isJSONNull(b) {
		return nil
	}
	tag, body, err := splitJSON(b)
	if err != nil {
		return err
	}
	return d.decodeTag(tag, body)
}

func unmarshalTaggedCBOR(b []byte, d tagDecoder) error {
	if isCBORNull(b) {
		return nil
	}
	tag, body, err := splitCBOR(b)
	if err != nil {
		return err
	}
	return d.decodeTag(tag, body)
}

func (s *DeviceState) UnmarshalJSON(b []byte) error     { return unmarshalTaggedJSON(b, s) }
func (s *DeviceState) UnmarshalCBOR(b []byte) error     { return unmarshalTaggedCBOR(b, s) }
func (u *AttributeUpdate) UnmarshalJSON(b []byte) error { return unmarshalTaggedJSON(b, u) }
func (u *AttributeUpdate) UnmarshalCBOR(b []byte) error { return unmarshalTaggedCBOR(b, u) }
func (m *ServerBound) UnmarshalJSON(b []byte) error     { return unmarshalTaggedJSON(b, m) }
func (m *ServerBound) UnmarshalCBOR(b []byte) error     { return unmarshalTaggedCBOR(b, m) }
func (m *DeviceBound) UnmarshalJSON(b []byte) error     { return unmarshalTaggedJSON(b, m) }
func (m *DeviceBound) UnmarshalCBOR(b []byte) error     { return unmarshalTaggedCBOR(b, m) }
