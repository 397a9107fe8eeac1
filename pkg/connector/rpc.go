package connector

import (
	"sync/atomic"

	"github.com/cuemby/canopy/pkg/value"
)

// Counters holds the per-application sequences. Both only ever grow.
type Counters struct {
	ids atomic.Uint64
	seq atomic.Uint64
}

// NextID returns the next connector id number.
func (c *Counters) NextID() uint64 { return c.ids.Add(1) - 1 }

// NextSeq returns the next RPC sequence number.
func (c *Counters) NextSeq() uint64 { return c.seq.Add(1) }

// Invocation is one queued server-to-client method call. It is immutable
// once created.
type Invocation struct {
	seq    uint64
	target Connector
	iface  string
	method string
	params []value.Value
}

func newInvocation(seq uint64, target Connector, iface, method string, params []value.Value) *Invocation {
	return &Invocation{
		seq:    seq,
		target: target,
		iface:  iface,
		method: method,
		params: append([]value.Value(nil), params...),
	}
}

// Seq returns the application-wide sequence number the call was queued with.
func (i *Invocation) Seq() uint64 { return i.seq }

// Target returns the connector the call is addressed to.
func (i *Invocation) Target() Connector { return i.target }

// Interface returns the client RPC interface name.
func (i *Invocation) Interface() string { return i.iface }

// Method returns the method name within Interface.
func (i *Invocation) Method() string { return i.method }

// Params returns a copy of the call parameters.
func (i *Invocation) Params() []value.Value {
	return append([]value.Value(nil), i.params...)
}

// CollectPending takes the queued calls of c, leaving its queue empty.
func CollectPending(c Connector) []*Invocation {
	b := c.ConnectorBase()
	out := b.pending
	b.pending = nil
	return out
}

// MergeInvocations merges two lists that are each sorted by sequence number
// into one sorted list in linear time. On equal numbers a's entry comes
// first.
func MergeInvocations(a, b []*Invocation) []*Invocation {
	out := make([]*Invocation, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].seq <= b[j].seq {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
