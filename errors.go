package vecseg

import (
	"errors"
)

var (
	// ErrInvalidArgument is returned for an unrecognized capability or scope.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSegmentNotFound is returned when the system-of-record holds no
	// descriptor of a known kind for a collection and scope.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrUnknownSegmentType is returned when a kind has no implementation in
	// the manager's catalog.
	ErrUnknownSegmentType = errors.New("unknown segment type")

	// ErrCapabilityMismatch is returned when an instance does not implement
	// the capability it was requested for.
	ErrCapabilityMismatch = errors.New("segment does not implement the requested capability")
)
