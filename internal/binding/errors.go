package binding

import "errors"

// Domain errors for the binding package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, binding.ErrDeviceBound) {
//	    // another user already holds the device
//	}
var (
	// ErrDeviceNotFound is returned when the referenced device does not exist.
	ErrDeviceNotFound = errors.New("binding: device not found")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("binding: user not found")

	// ErrBindingNotFound is returned when no binding row exists for a
	// (user, device) pair.
	ErrBindingNotFound = errors.New("binding: not found")

	// ErrDeviceBound is returned when a bind is attempted on a device that
	// already has an active binding held by a different user.
	ErrDeviceBound = errors.New("binding: device already bound")

	// ErrAlreadyBound is returned when a user binds a device they already
	// hold. Double-bind is rejected, not treated as a no-op.
	ErrAlreadyBound = errors.New("binding: already bound to this user")

	// ErrBindingInactive is returned when unbinding a pair whose binding
	// is already inactive.
	ErrBindingInactive = errors.New("binding: already inactive")

	// ErrDeviceUnbound is returned when resolving the owner of a device
	// that has no active binding.
	ErrDeviceUnbound = errors.New("binding: device has no active binding")
)
