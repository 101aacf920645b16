package tele

import (
	"fmt"

	"github.com/temoto/lightd/proto"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateActive
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateFaulted:
		return "FAULTED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventConnected
	EventMessage
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is transport loop output, consumed by device control.
// Message is set for EventMessage, Err for EventDisconnected.
type Event struct {
	Kind    EventKind
	Session string
	Message proto.DeviceBound
	Err     error
}

func (e Event) String() string {
	switch e.Kind {
	case EventMessage:
		return fmt.Sprintf("%s session=%s %s", e.Kind, e.Session, e.Message.String())
	case EventDisconnected:
		return fmt.Sprintf("%s session=%s err=%v", e.Kind, e.Session, e.Err)
	}
	return fmt.Sprintf("%s session=%s", e.Kind, e.Session)
}

// Reply is device answer bound to session of the event it answers.
// Empty Session goes to whatever session is active.
type Reply struct {
	Session string
	Message proto.ServerBound
}

func (r Reply) String() string { return fmt.Sprintf("session=%s %s", r.Session, r.Message.String()) }

// Handler is inline (monolithic) event consumer.
// Returned message, if any, is sent by transport loop.
type Handler interface {
	HandleEvent(Event) *proto.ServerBound
}

type HandlerFunc func(Event) *proto.ServerBound

func (f HandlerFunc) HandleEvent(e Event) *proto.ServerBound { return f(e) }
