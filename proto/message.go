// Package proto is the shared schema between the light and its control server.
//
// Tagged unions are structs of pointers, exactly one non-nil.
// Wire shape is externally tagged: {"Tag":{...}} or "Tag" for variants without body.
// Tags this firmware does not know decode without error into Unknown.
package proto

import (
	"fmt"
)

type DimmableLightState struct {
	Power      bool  `json:"power"`
	Brightness uint8 `json:"brightness"`
}

type DeviceState struct {
	DimmableLight *DimmableLightState `json:"DimmableLight,omitempty"`
	Unknown       string              `json:"-"`
}

// NewDimmableLightState derives power from brightness.
func NewDimmableLightState(brightness uint8) DeviceState {
	return DeviceState{DimmableLight: &DimmableLightState{
		Power:      brightness > 0,
		Brightness: brightness,
	}}
}

func (s DeviceState) String() string {
	switch {
	case s.DimmableLight != nil:
		return fmt.Sprintf("DimmableLight(power=%t brightness=%d)", s.DimmableLight.Power, s.DimmableLight.Brightness)
	case s.Unknown != "":
		return "unknown:" + s.Unknown
	}
	return "empty"
}

type PowerUpdate struct {
	Power bool `json:"power"`
}

type BrightnessUpdate struct {
	Brightness uint8 `json:"brightness"`
}

type UpdateKind uint8

const (
	UpdateUnknown UpdateKind = iota
	UpdatePower
	UpdateBrightness
)

type AttributeUpdate struct {
	Power      *PowerUpdate      `json:"Power,omitempty"`
	Brightness *BrightnessUpdate `json:"Brightness,omitempty"`
	Unknown    string            `json:"-"`
}

func NewPowerUpdate(on bool) AttributeUpdate {
	return AttributeUpdate{Power: &PowerUpdate{Power: on}}
}

func NewBrightnessUpdate(b uint8) AttributeUpdate {
	return AttributeUpdate{Brightness: &BrightnessUpdate{Brightness: b}}
}

func (u AttributeUpdate) Kind() UpdateKind {
	switch {
	case u.Power != nil:
		return UpdatePower
	case u.Brightness != nil:
		return UpdateBrightness
	}
	return UpdateUnknown
}

func (u AttributeUpdate) String() string {
	switch u.Kind() {
	case UpdatePower:
		return fmt.Sprintf("Power(%t)", u.Power.Power)
	case UpdateBrightness:
		return fmt.Sprintf("Brightness(%d)", u.Brightness.Brightness)
	}
	return "unknown:" + u.Unknown
}

type UpdateNotification struct {
	DeviceID  DeviceID    `json:"device_id"`
	Reachable bool        `json:"reachable"`
	NewState  DeviceState `json:"new_state"`
}

// ServerBound is sent by the device.
type ServerBound struct {
	Identify           *DeviceID           `json:"Identify,omitempty"`
	UpdateNotification *UpdateNotification `json:"UpdateNotification,omitempty"`
	Unknown            string              `json:"-"`
}

func NewIdentify(id DeviceID) ServerBound {
	return ServerBound{Identify: &id}
}

// NewUpdateNotification always asserts reachable=true, there is no disconnect announce.
func NewUpdateNotification(id DeviceID, state DeviceState) ServerBound {
	return ServerBound{UpdateNotification: &UpdateNotification{
		DeviceID:  id,
		Reachable: true,
		NewState:  state,
	}}
}

func (m ServerBound) String() string {
	switch {
	case m.Identify != nil:
		return fmt.Sprintf("Identify(%s)", m.Identify.String())
	case m.UpdateNotification != nil:
		n := m.UpdateNotification
		return fmt.Sprintf("UpdateNotification(device=%s reachable=%t state=%s)", n.DeviceID.String(), n.Reachable, n.NewState.String())
	}
	return "unknown:" + m.Unknown
}

type UpdateCommand struct {
	DeviceID DeviceID        `json:"device_id"`
	Update   AttributeUpdate `json:"update"`
}

type StateQuery struct {
	DeviceID DeviceID `json:"device_id"`
}

// DeviceBound is sent by the server.
type DeviceBound struct {
	UpdateCommand *UpdateCommand `json:"UpdateCommand,omitempty"`
	StateQuery    *StateQuery    `json:"StateQuery,omitempty"`
	Unknown       string         `json:"-"`
}

func NewUpdateCommand(id DeviceID, update AttributeUpdate) DeviceBound {
	return DeviceBound{UpdateCommand: &UpdateCommand{DeviceID: id, Update: update}}
}

func NewStateQuery(id DeviceID) DeviceBound {
	return DeviceBound{StateQuery: &StateQuery{DeviceID: id}}
}

func (m DeviceBound) String() string {
	switch {
	case m.UpdateCommand != nil:
		return fmt.Sprintf("UpdateCommand(device=%s update=%s)", m.UpdateCommand.DeviceID.String(), m.UpdateCommand.Update.String())
	case m.StateQuery != nil:
		return fmt.Sprintf("StateQuery(device=%s)", m.StateQuery.DeviceID.String())
	}
	return "unknown:" + m.Unknown
}
