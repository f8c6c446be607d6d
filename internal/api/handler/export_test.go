package handler

import "time"

// SetPongWait shortens the stream keepalive window for a test
func SetPongWait(d time.Duration) (restore func()) {
	prev := pongWait
	pongWait = d
	return func() { pongWait = prev }
}
