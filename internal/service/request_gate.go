package service

import "sync/atomic"

// RequestGate hands out monotonically increasing tokens so a caller can drop
// responses that were overtaken by a newer request. The zero value is ready
// to use.
type RequestGate struct {
	current atomic.Uint64
}

// Begin issues a new token and makes it the current one.
func (g *RequestGate) Begin() uint64 {
	return g.current.Add(1)
}

// IsCurrent reports whether token is the most recently issued one.
func (g *RequestGate) IsCurrent(token uint64) bool {
	return token != 0 && g.current.Load() == token
}
