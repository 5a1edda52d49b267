package types

import (
	"github.com/pkg/errors"
)

// error taxonomy of the consensus core; wrap with errors.Wrap and classify
// with errors.Cause.
var (
	ErrValidation    = errors.New("validation error")
	ErrDuplicate     = errors.New("duplicate transaction")
	ErrTopology      = errors.New("topology error")
	ErrLivenessFault = errors.New("liveness fault")
	ErrTransport     = errors.New("transport error")

	ErrDuplicateSignature = errors.New("duplicate signature")
	ErrStatusRegression   = errors.New("event status can not go backwards")
	ErrUnknownCommand     = errors.New("unknown command")
)

func IsValidation(err error) bool {
	return errors.Cause(err) == ErrValidation
}

func IsDuplicate(err error) bool {
	return errors.Cause(err) == ErrDuplicate
}

func IsTopology(err error) bool {
	return errors.Cause(err) == ErrTopology
}

func IsLivenessFault(err error) bool {
	return errors.Cause(err) == ErrLivenessFault
}

func IsTransport(err error) bool {
	return errors.Cause(err) == ErrTransport
}

// ResponseCode is the acknowledgement a peer returns for a delivered message.
type ResponseCode uint8

const (
	CodeOK ResponseCode = iota
	CodeInvalidSig
	CodeErrConn
)

func (c ResponseCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidSig:
		return "INVALID_SIG"
	case CodeErrConn:
		return "ERRCONN"
	default:
		return "UNKNOWN"
	}
}

// ResponseCodeOf maps an error of the taxonomy to a response code.
func ResponseCodeOf(err error) ResponseCode {
	switch {
	case err == nil, IsDuplicate(err):
		return CodeOK
	case IsTransport(err):
		return CodeErrConn
	default:
		return CodeInvalidSig
	}
}
