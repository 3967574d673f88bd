package envgen

import "errors"

var (
	// ErrInvalidConfig is returned when a build parameter fails validation
	ErrInvalidConfig = errors.New("invalid build configuration")

	// ErrInvalidScript is returned when a generated step is not valid shell
	ErrInvalidScript = errors.New("invalid step script")
)
