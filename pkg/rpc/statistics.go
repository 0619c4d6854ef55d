/*
Copyright 2024 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rpc

import (
	"sync/atomic"
)

// Statistics holds runtime counters. fields are accessed atomically
type Statistics struct {
	FramesSent       uint64
	FramesReceived   uint64
	BatchesCommitted uint64
	BatchesExecuted  uint64
	BatchesAborted   uint64
	BatchesDropped   uint64
	CallsExecuted    uint64
	CallsFailed      uint64
	ResultsResolved  uint64
	ResultsDropped   uint64
	PushFailures     uint64
	ProtocolErrors   uint64
}

// Snapshot returns a consistent-per-field copy of the counters
func (s *Statistics) Snapshot() Statistics {
	return Statistics{
		FramesSent:       atomic.LoadUint64(&s.FramesSent),
		FramesReceived:   atomic.LoadUint64(&s.FramesReceived),
		BatchesCommitted: atomic.LoadUint64(&s.BatchesCommitted),
		BatchesExecuted:  atomic.LoadUint64(&s.BatchesExecuted),
		BatchesAborted:   atomic.LoadUint64(&s.BatchesAborted),
		BatchesDropped:   atomic.LoadUint64(&s.BatchesDropped),
		CallsExecuted:    atomic.LoadUint64(&s.CallsExecuted),
		CallsFailed:      atomic.LoadUint64(&s.CallsFailed),
		ResultsResolved:  atomic.LoadUint64(&s.ResultsResolved),
		ResultsDropped:   atomic.LoadUint64(&s.ResultsDropped),
		PushFailures:     atomic.LoadUint64(&s.PushFailures),
		ProtocolErrors:   atomic.LoadUint64(&s.ProtocolErrors),
	}
}

// DiffFrom returns the counters accumulated since prev
func (s *Statistics) DiffFrom(prev *Statistics) Statistics {
	current := s.Snapshot()
	previous := prev.Snapshot()

	return Statistics{
		FramesSent:       current.FramesSent - previous.FramesSent,
		FramesReceived:   current.FramesReceived - previous.FramesReceived,
		BatchesCommitted: current.BatchesCommitted - previous.BatchesCommitted,
		BatchesExecuted:  current.BatchesExecuted - previous.BatchesExecuted,
		BatchesAborted:   current.BatchesAborted - previous.BatchesAborted,
		BatchesDropped:   current.BatchesDropped - previous.BatchesDropped,
		CallsExecuted:    current.CallsExecuted - previous.CallsExecuted,
		CallsFailed:      current.CallsFailed - previous.CallsFailed,
		ResultsResolved:  current.ResultsResolved - previous.ResultsResolved,
		ResultsDropped:   current.ResultsDropped - previous.ResultsDropped,
		PushFailures:     current.PushFailures - previous.PushFailures,
		ProtocolErrors:   current.ProtocolErrors - previous.ProtocolErrors,
	}
}
