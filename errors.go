package fieldsignals

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the umbrella for every registration-time failure. All
// sentinels below (and field-resolution failures from the schema package) wrap
// it, so callers can match the whole class with errors.Is(err, ErrConfiguration).
var ErrConfiguration = errors.New("fieldsignals: invalid configuration")

var (
	// ErrNotReady is returned when signals are connected before the host marks
	// its model registry ready. Connect signals at the end of application
	// startup, once model metadata is queryable.
	ErrNotReady = fmt.Errorf("%w: model registry is not ready; connect signals after host startup completes", ErrConfiguration)

	// ErrUnsupportedOption is returned when weak-reference delivery is
	// requested. Listeners are wrapped in closures that must stay alive
	// independently of the caller's reference, so weak delivery cannot work.
	ErrUnsupportedOption = fmt.Errorf("%w: weak reference delivery is not supported", ErrConfiguration)

	// ErrInvalidSender is returned when the sender is nil or an instance
	// rather than a model.
	ErrInvalidSender = fmt.Errorf("%w: sender must be a model", ErrConfiguration)

	// ErrNilListener is returned when no listener function is supplied.
	ErrNilListener = fmt.Errorf("%w: listener must not be nil", ErrConfiguration)

	// ErrDuplicateRegistration is returned when a listener is already
	// connected on this channel for the same model.
	ErrDuplicateRegistration = fmt.Errorf("%w: listener is already connected for this model", ErrConfiguration)
)
