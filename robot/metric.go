package robot

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a client connection.
// Counters can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// StateRecvCount indicates the number of robot states received on the
	// realtime channel.
	StateRecvCount atomic.Uint64
	// CommandSendCount indicates the number of robot commands sent on the
	// realtime channel.
	CommandSendCount atomic.Uint64
	// RequestSendCount indicates the number of requests sent on the command
	// channel.
	RequestSendCount atomic.Uint64
	// ResponseRecvCount indicates the number of responses received on the
	// command channel.
	ResponseRecvCount atomic.Uint64
	// RecvTimeoutCount indicates the number of bounded receives that expired.
	RecvTimeoutCount atomic.Uint64
}

func (m *Metrics) incStateRecvCount() {
	m.StateRecvCount.Add(1)
}

func (m *Metrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *Metrics) incRequestSendCount() {
	m.RequestSendCount.Add(1)
}

func (m *Metrics) incResponseRecvCount() {
	m.ResponseRecvCount.Add(1)
}

func (m *Metrics) incRecvTimeoutCount() {
	m.RecvTimeoutCount.Add(1)
}
