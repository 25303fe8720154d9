package maintenance

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a cleanup loop that is running.
	ErrAlreadyStarted = errors.New("maintenance: cleanup already running")

	// ErrNotStarted is returned by Stop on a cleanup loop that was never started.
	ErrNotStarted = errors.New("maintenance: cleanup not running")
)
