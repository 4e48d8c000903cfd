// Package drivertest provides an in-memory driver implementation with a
// call-order log, for testing code written against package driver.
//
// Fences signal after a configurable GPU latency measured from submission,
// swapchains hand out images round-robin the way a flip-model swapchain
// reports its current back buffer, and every create, wait, submit, present
// and destroy is appended to a shared Log.
package drivertest

import (
	"fmt"
	"sync"
)

// Call is one logged driver call.
type Call struct {
	Op     string
	Object string
	Value  uint64
}

func (c Call) String() string {
	if c.Value != 0 {
		return fmt.Sprintf("%s %s %d", c.Op, c.Object, c.Value)
	}
	return fmt.Sprintf("%s %s", c.Op, c.Object)
}

// Log operations.
const (
	OpCreate    = "create"
	OpDestroy   = "destroy"
	OpWait      = "wait"
	OpSubmit    = "submit"
	OpAcquire   = "acquire"
	OpPresent   = "present"
	OpUpload    = "upload"
	OpWaitIdle  = "wait-idle"
	OpWriteData = "write"
)

// Log is an append-only, goroutine-safe record of driver calls.
type Log struct {
	mu    sync.Mutex
	calls []Call
}

func (l *Log) add(op, object string, value uint64) {
	l.mu.Lock()
	l.calls = append(l.calls, Call{Op: op, Object: object, Value: value})
	l.mu.Unlock()
}

// Calls returns a copy of every call logged so far.
func (l *Log) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many calls with the given op were logged.
func (l *Log) Count(op string) int {
	n := 0
	for _, c := range l.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Filter returns the calls with the given op, in order.
func (l *Log) Filter(op string) []Call {
	var out []Call
	for _, c := range l.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the first call matching op and object at or
// after from, or -1.
func (l *Log) Index(op, object string, from int) int {
	calls := l.Calls()
	for i := from; i < len(calls); i++ {
		if calls[i].Op == op && calls[i].Object == object {
			return i
		}
	}
	return -1
}

// Reset drops every logged call.
func (l *Log) Reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}
