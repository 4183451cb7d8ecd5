package dispatcher

import (
	"errors"
	"fmt"

	"github.com/morezero/device-capabilities/pkg/transport"
)

// Classification is the outcome of a dispatched call as seen by the timeout policy.
type Classification int

const (
	// Success means the call returned normally.
	Success Classification = iota
	// GenuineFailure means the call failed for a reason other than a read timeout.
	GenuineFailure
	// AmbiguousTimeout means the read window elapsed with no other signal.
	AmbiguousTimeout
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case GenuineFailure:
		return "genuine failure"
	case AmbiguousTimeout:
		return "ambiguous timeout"
	}
	return fmt.Sprintf("classification(%d)", int(c))
}

// Classify inspects a transport error. Only a read timeout is ambiguous;
// connect timeouts and every other kind are genuine failures.
func Classify(err error) Classification {
	if err == nil {
		return Success
	}
	if kind, ok := transport.KindOf(err); ok && kind == transport.KindReadTimeout {
		return AmbiguousTimeout
	}
	return GenuineFailure
}

// fromTransport converts a transport failure into a DispatchError keeping the
// transport error as cause.
func fromTransport(req *VersionedRequest, err error) *DispatchError {
	var te *transport.Error
	if !errors.As(err, &te) {
		return &DispatchError{Code: CodeIOFailure, Message: err.Error(), Cause: err}
	}

	code := CodeIOFailure
	switch te.Kind {
	case transport.KindConnect:
		code = CodeConnectFailure
	case transport.KindConnectTimeout:
		code = CodeConnectTimeout
	case transport.KindReadTimeout:
		code = CodeReadTimeout
	case transport.KindHTTPStatus:
		code = CodeHTTPError
	}

	return &DispatchError{
		Code:    code,
		Message: fmt.Sprintf("%s %s (v%s): %v", req.Capability(), req.Endpoint(), req.Version(), te),
		Status:  te.Status,
		Cause:   err,
	}
}
