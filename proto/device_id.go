package proto

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"
)

const DeviceIDMaxLen = 64

var ErrInvalidDeviceID = errors.New("invalid device id")

// DeviceID is immutable after construction, zero value is invalid.
type DeviceID struct{ s string }

func ParseDeviceID(s string) (DeviceID, error) {
	if s == "" {
		return DeviceID{}, errors.Wrapf(nil, ErrInvalidDeviceID, "device id is empty")
	}
	if len(s) > DeviceIDMaxLen {
		return DeviceID{}, errors.Wrapf(nil, ErrInvalidDeviceID, "device id length=%d max=%d", len(s), DeviceIDMaxLen)
	}
	for i := 0; i < len(s); i++ {
		if !deviceIDByte(s[i]) {
			return DeviceID{}, errors.Wrapf(nil, ErrInvalidDeviceID, "device id=%q invalid byte=%#02x at=%d", s, s[i], i)
		}
	}
	return DeviceID{s: s}, nil
}

func MustDeviceID(s string) DeviceID {
	id, err := ParseDeviceID(s)
	if err != nil {
		panic("code error " + err.Error())
	}
	return id
}

func IsInvalidDeviceID(err error) bool { return errors.Cause(err) == ErrInvalidDeviceID }

func (id DeviceID) String() string            { return id.s }
func (id DeviceID) IsZero() bool              { return id.s == "" }
func (id DeviceID) Equal(other DeviceID) bool { return id.s == other.s }

func (id DeviceID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return nil, errors.Wrapf(nil, ErrInvalidDeviceID, "marshal zero device id")
	}
	return json.Marshal(id.s)
}

func (id *DeviceID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Annotate(err, "device id")
	}
	parsed, err := ParseDeviceID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id DeviceID) MarshalCBOR() ([]byte, error) {
	if id.IsZero() {
		return nil, errors.Wrapf(nil, ErrInvalidDeviceID, "marshal zero device id")
	}
	return cbor.Marshal(id.s)
}

func (id *DeviceID) UnmarshalCBOR(b []byte) error {
	var s string
	if err := cbor.Unmarshal(b, &s); err != nil {
		return errors.Annotate(err, "device id")
	}
	parsed, err := ParseDeviceID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func deviceIDByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '_', b == '.', b == ':':
		return true
	}
	return false
}
