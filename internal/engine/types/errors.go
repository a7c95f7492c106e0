package types

import "errors"

// ErrSessionActive is returned by Start while a session of the same kind is running
var ErrSessionActive = errors.New("a session is already active")
