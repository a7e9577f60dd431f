package signalcli

import "sync/atomic"

// RequestIDs allocates JSON-RPC request ids. Ids are strictly
// increasing and never reused for the process lifetime; the allocator
// is shared between the event loop and the outbound gateway, so
// Next must be safe under concurrent use.
type RequestIDs struct {
	last atomic.Int64
}

// NewRequestIDs returns an allocator starting at 1.
func NewRequestIDs() *RequestIDs {
	return &RequestIDs{}
}

// Next returns the next request id.
func (r *RequestIDs) Next() int64 {
	return r.last.Add(1)
}
