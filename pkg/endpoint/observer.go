package endpoint

import "sync"

// EndpointObserver is notified of Endpoint lifecycle transitions (spec.md
// Section 6). All three callbacks are invoked from whichever goroutine
// performed the transition; Started/Stopped fire at the end of Start/Stop
// after sub-components are fully up or down, Destroyed fires at the end
// of Destroy.
type EndpointObserver interface {
	Started(ep *Endpoint)
	Stopped(ep *Endpoint)
	Destroyed(ep *Endpoint)
}

// EndpointObserverFuncs adapts plain functions to EndpointObserver for
// callers that only care about one transition.
type EndpointObserverFuncs struct {
	OnStarted   func(ep *Endpoint)
	OnStopped   func(ep *Endpoint)
	OnDestroyed func(ep *Endpoint)
}

func (f EndpointObserverFuncs) Started(ep *Endpoint) {
	if f.OnStarted != nil {
		f.OnStarted(ep)
	}
}

func (f EndpointObserverFuncs) Stopped(ep *Endpoint) {
	if f.OnStopped != nil {
		f.OnStopped(ep)
	}
}

func (f EndpointObserverFuncs) Destroyed(ep *Endpoint) {
	if f.OnDestroyed != nil {
		f.OnDestroyed(ep)
	}
}

// observerList is the same copy-on-write snapshot pattern as
// interceptorList, grounded on the teacher's OnStateChanged callback
// fan-out in pkg/matter/node.go.
type observerList struct {
	mu   sync.Mutex
	list []EndpointObserver
}

func (l *observerList) Add(o EndpointObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]EndpointObserver, len(l.list)+1)
	copy(next, l.list)
	next[len(l.list)] = o
	l.list = next
}

func (l *observerList) snapshot() []EndpointObserver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list
}

func (l *observerList) notifyStarted(ep *Endpoint) {
	for _, o := range l.snapshot() {
		o.Started(ep)
	}
}

func (l *observerList) notifyStopped(ep *Endpoint) {
	for _, o := range l.snapshot() {
		o.Stopped(ep)
	}
}

func (l *observerList) notifyDestroyed(ep *Endpoint) {
	for _, o := range l.snapshot() {
		o.Destroyed(ep)
	}
}
