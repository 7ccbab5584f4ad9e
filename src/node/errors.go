package node

import "errors"

var (
	// ErrPortBound is returned when a binding is registered on a port
	// that already has one.
	ErrPortBound = errors.New("port already bound")

	// ErrUnknownPort is returned when no binding exists for a port.
	ErrUnknownPort = errors.New("no binding for port")

	// ErrReservedPort is returned when a binding targets the reserved
	// reset port.
	ErrReservedPort = errors.New("port is reserved")

	// ErrNameTaken is returned by Attach when a node with the same name
	// is already registered; use Replace to swap it.
	ErrNameTaken = errors.New("node name already attached")

	// ErrNotAttached is returned by Replace when no node with that name
	// is registered yet.
	ErrNotAttached = errors.New("node name not attached")

	// ErrAddressSpaceFull is returned when no free address remains in
	// the configured range.
	ErrAddressSpaceFull = errors.New("no free address in range")

	// ErrEmptyGroup is returned when a group is created without members.
	ErrEmptyGroup = errors.New("group needs at least one member")

	// ErrArityMismatch is returned when a distributed tuple argument does
	// not have one element per group member.
	ErrArityMismatch = errors.New("tuple argument arity does not match group size")
)
