package endpoint

import (
	"sync"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// MessageInterceptor mirrors the stack's six symmetric hooks so the
// application can observe or cancel any message crossing the Outbox or
// Inbox (spec.md Section 6). Returning true from a hook cancels the
// message: the Outbox/Inbox stops processing it and it never reaches the
// connector or the deliverer. Panics raised by a hook are caught and
// logged at the call site rather than allowed to cross into the stack
// (spec.md Section 7).
type MessageInterceptor interface {
	SendRequest(ex *exchange.Exchange, req *message.Request) (cancel bool)
	SendResponse(ex *exchange.Exchange, resp *message.Response) (cancel bool)
	SendEmpty(ex *exchange.Exchange, empty *message.Empty) (cancel bool)
	ReceiveRequest(ex *exchange.Exchange, req *message.Request) (cancel bool)
	ReceiveResponse(ex *exchange.Exchange, resp *message.Response) (cancel bool)
	ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) (cancel bool)
}

// BaseInterceptor provides no-op implementations of all six hooks so
// callers only need to override the ones they care about, the same way
// stack.BaseLayer works for Layer.
type BaseInterceptor struct{}

func (BaseInterceptor) SendRequest(*exchange.Exchange, *message.Request) bool    { return false }
func (BaseInterceptor) SendResponse(*exchange.Exchange, *message.Response) bool  { return false }
func (BaseInterceptor) SendEmpty(*exchange.Exchange, *message.Empty) bool        { return false }
func (BaseInterceptor) ReceiveRequest(*exchange.Exchange, *message.Request) bool { return false }
func (BaseInterceptor) ReceiveResponse(*exchange.Exchange, *message.Response) bool {
	return false
}
func (BaseInterceptor) ReceiveEmpty(*exchange.Exchange, *message.Empty) bool { return false }

// interceptorList is a concurrent snapshot-readable collection (spec.md
// Section 5: "shared resources ... are concurrent snapshot-readable
// collections"). Add copies the backing slice so iteration never races a
// concurrent registration.
type interceptorList struct {
	mu   sync.Mutex
	list []MessageInterceptor
}

func (l *interceptorList) Add(i MessageInterceptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]MessageInterceptor, len(l.list)+1)
	copy(next, l.list)
	next[len(l.list)] = i
	l.list = next
}

func (l *interceptorList) snapshot() []MessageInterceptor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list
}

func safeCall(log func(format string, args ...interface{}), name string, fn func() bool) (cancel bool) {
	defer func() {
		if r := recover(); r != nil {
			log("interceptor %s panicked: %v", name, r)
			cancel = false
		}
	}()
	return fn()
}

// runSendRequest fans req through every registered interceptor in order,
// stopping early once one of them cancels.
func (l *interceptorList) runSendRequest(log func(string, ...interface{}), ex *exchange.Exchange, req *message.Request) bool {
	for _, i := range l.snapshot() {
		if safeCall(log, "SendRequest", func() bool { return i.SendRequest(ex, req) }) {
			return true
		}
	}
	return false
}

func (l *interceptorList) runSendResponse(log func(string, ...interface{}), ex *exchange.Exchange, resp *message.Response) bool {
	for _, i := range l.snapshot() {
		if safeCall(log, "SendResponse", func() bool { return i.SendResponse(ex, resp) }) {
			return true
		}
	}
	return false
}

func (l *interceptorList) runSendEmpty(log func(string, ...interface{}), ex *exchange.Exchange, empty *message.Empty) bool {
	for _, i := range l.snapshot() {
		if safeCall(log, "SendEmpty", func() bool { return i.SendEmpty(ex, empty) }) {
			return true
		}
	}
	return false
}

func (l *interceptorList) runReceiveRequest(log func(string, ...interface{}), ex *exchange.Exchange, req *message.Request) bool {
	for _, i := range l.snapshot() {
		if safeCall(log, "ReceiveRequest", func() bool { return i.ReceiveRequest(ex, req) }) {
			return true
		}
	}
	return false
}

func (l *interceptorList) runReceiveResponse(log func(string, ...interface{}), ex *exchange.Exchange, resp *message.Response) bool {
	for _, i := range l.snapshot() {
		if safeCall(log, "ReceiveResponse", func() bool { return i.ReceiveResponse(ex, resp) }) {
			return true
		}
	}
	return false
}

func (l *interceptorList) runReceiveEmpty(log func(string, ...interface{}), ex *exchange.Exchange, empty *message.Empty) bool {
	for _, i := range l.snapshot() {
		if safeCall(log, "ReceiveEmpty", func() bool { return i.ReceiveEmpty(ex, empty) }) {
			return true
		}
	}
	return false
}
