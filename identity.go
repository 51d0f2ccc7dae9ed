package magma

import "sync/atomic"

// FlowID identifies a flow for the lifetime of its Engine.
type FlowID uint64

// IDIssuer hands out sequential flow identities, starting at zero.
type IDIssuer struct {
	next atomic.Uint64
}

// NewIDIssuer creates an issuer whose first identity is zero.
func NewIDIssuer() *IDIssuer {
	return &IDIssuer{}
}

// Next returns the next identity.
func (i *IDIssuer) Next() FlowID {
	return FlowID(i.next.Add(1) - 1)
}
