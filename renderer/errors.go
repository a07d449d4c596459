package renderer

import "errors"

var (
	ErrSessionLive    = errors.New("renderer: another render session is still live")
	ErrSessionClosed  = errors.New("renderer: session has been closed")
	ErrNotStarted     = errors.New("renderer: session has not been started")
	ErrAlreadyStarted = errors.New("renderer: session already started")
	ErrNotStopped     = errors.New("renderer: session must be stopped first")
	ErrAlreadyStopped = errors.New("renderer: session already stopped")
)
