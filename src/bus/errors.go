package bus

import "errors"

var (
	// ErrReadTimeout is returned by a Transport when no byte arrived
	// within the requested window.
	ErrReadTimeout = errors.New("transport read timed out")

	// ErrChannelTimeout is returned when an action gave up waiting for
	// exclusive channel access.
	ErrChannelTimeout = errors.New("timed out waiting for channel access")

	// ErrNoResponse is returned by TransmitUntilResponse when every
	// attempt timed out waiting for a reply.
	ErrNoResponse = errors.New("no response after maximum attempts")

	// ErrNoAccessToken is reported when an action tries to use or release
	// the channel without ever having been granted access.
	ErrNoAccessToken = errors.New("action does not hold the access token")

	// ErrTokenReleased is reported when an access token is released twice.
	ErrTokenReleased = errors.New("access token already released")

	// ErrShutdown is returned by pipeline operations after Shutdown.
	ErrShutdown = errors.New("pipeline is shut down")

	// ErrPayloadTooLarge is returned when an encoded payload exceeds the
	// bus packet limit.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum bus packet size")

	// ErrSerialUnavailable is returned while a dropped serial port is
	// waiting out its reconnect backoff.
	ErrSerialUnavailable = errors.New("serial port unavailable")
)
