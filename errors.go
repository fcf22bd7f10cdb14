package forum

import "errors"

var (
	// ErrMalformedFrame marks an inbound payload that could not be decoded.
	ErrMalformedFrame = errors.New("forum: malformed frame")
	// ErrUnknownFrameType marks an inbound frame with an unrecognised type.
	ErrUnknownFrameType = errors.New("forum: unknown frame type")
	// ErrInvalidConfig is returned by constructors given an invalid config.
	ErrInvalidConfig = errors.New("forum: invalid config")
	// ErrConnectSuperseded is returned by Connect when Disconnect ran before the
	// connection was announced online.
	ErrConnectSuperseded = errors.New("forum: connect superseded by disconnect")
)
