package link

import (
	"github.com/juju/errors"
	"github.com/temoto/lightd/auth"
)

// Error kinds of the secure channel. All of them are connection fatal.
// Classify with errors.Cause(err) == ErrX.
var (
	ErrIO            = errors.New("io")
	ErrProtocol      = errors.New("protocol")
	ErrSerialization = errors.New("serialization")
	ErrAuth          = errors.New("authentication")
)

// Kind returns short error kind name for logs.
func Kind(err error) string {
	switch errors.Cause(err) {
	case nil:
		return "ok"
	case ErrIO:
		return "io"
	case ErrProtocol:
		return "protocol"
	case ErrSerialization:
		return "serialization"
	case ErrAuth, auth.ErrCrypto:
		return "authentication"
	}
	return "other"
}

// Fatal reports whether err belongs to channel error taxonomy.
func Fatal(err error) bool {
	switch errors.Cause(err) {
	case ErrIO, ErrProtocol, ErrSerialization, ErrAuth, auth.ErrCrypto:
		return true
	}
	return false
}
