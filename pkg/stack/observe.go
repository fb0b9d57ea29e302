package stack

import (
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/replaydetector"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
)

// ObserveFreshnessWindow is the 128-second freshness window RFC 7641
// Section 3.4 uses to fall back to arrival order once the 24-bit sequence
// space could plausibly have wrapped.
const ObserveFreshnessWindow = 128 * time.Second

// replayWindowSize bounds how far out of order a notification may arrive
// and still be accepted; chosen generously since CoAP notifications are
// rare relative to the Observe sequence space.
const replayWindowSize = 64

// NotificationListener is fanned out on every accepted observe
// notification, independent of the deliverer (spec.md Section 6).
type NotificationListener interface {
	OnNotification(req *message.Request, resp *message.Response)
}

// NotificationListenerFunc adapts a function to NotificationListener.
type NotificationListenerFunc func(req *message.Request, resp *message.Response)

func (f NotificationListenerFunc) OnNotification(req *message.Request, resp *message.Response) {
	f(req, resp)
}

// observation tracks one client-side Observe registration: the request
// that registered it, the KeyURI it holds in the shared exchange.Store,
// and the unwrapped sequence number of the last notification accepted.
type observation struct {
	req      *message.Request
	ex       *exchange.Exchange
	uriKey   exchange.KeyURI
	detector replaydetector.ReplayDetector

	mu       sync.Mutex
	lastRaw  uint32
	highExt  uint64
	lastSeen time.Time
	started  bool
}

// peek extends a 24-bit wire sequence number into an unwrapped counter
// relative to the last *accepted* notification, using the half-space
// comparison RFC 7641 Appendix A.2 specifies for "is raw more recent than
// last". It does not mutate state: callers decide whether to commit.
func (o *observation) peek(raw uint32) uint64 {
	if !o.started {
		return uint64(raw)
	}
	const space = uint32(1) << 24
	diff := (raw - o.lastRaw) & (space - 1)
	if diff < space/2 {
		return o.highExt + uint64(diff)
	}
	back := (space - diff) & (space - 1)
	if uint64(back) > o.highExt {
		return 0
	}
	return o.highExt - uint64(back)
}

// commit records raw/ext as the last accepted notification.
func (o *observation) commit(raw uint32, ext uint64) {
	o.started = true
	o.lastRaw = raw
	o.highExt = ext
}

// ObserveLayer is the top layer of the stack (spec.md Section 4.2, RFC
// 7641). An outbound GET carrying Observe=0 registers an observation;
// inbound responses carrying an Observe option on a registered exchange
// are checked for freshness before being delivered upward and fanned out
// to NotificationListeners. Stale notifications (scenario E) are dropped
// silently.
//
// Identity for an observation is the KeyURI spec.md Section 3 defines:
// (observe-URI, token). That table lives in the shared exchange.Store,
// the same one the Matcher uses for KeyMID/KeyToken, so "observers may
// share tokens only if their KeyURI differs" is enforced by
// Store.RegisterURI rather than re-implemented here. byToken is a
// same-process cache on top of it: CancelObservation and inbound
// notification lookup only ever have a token to go on, and re-deriving a
// KeyURI from a bare token isn't possible, so this module keeps the O(1)
// token -> observation index spec.md's ObservationStore prose implies.
type ObserveLayer struct {
	BaseLayer

	store *exchange.Store
	log   logging.LeveledLogger

	mu      sync.Mutex
	byToken map[string]*observation

	listenersMu sync.RWMutex
	listeners   []NotificationListener
}

// NewObserveLayer builds an ObserveLayer backed by store's KeyURI table.
// loggerFactory may be nil.
func NewObserveLayer(store *exchange.Store, loggerFactory logging.LoggerFactory) *ObserveLayer {
	l := &ObserveLayer{store: store, byToken: make(map[string]*observation)}
	if loggerFactory != nil {
		l.log = loggerFactory.NewLogger("stack-observe")
	} else {
		l.log = logging.NewDefaultLoggerFactory().NewLogger("stack-observe")
	}
	return l
}

// AddNotificationListener registers l to be fanned out to on every
// accepted notification. Safe for concurrent use with notification
// delivery; readers see a consistent snapshot (spec.md Section 5).
func (o *ObserveLayer) AddNotificationListener(l NotificationListener) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	snapshot := make([]NotificationListener, len(o.listeners), len(o.listeners)+1)
	copy(snapshot, o.listeners)
	o.listeners = append(snapshot, l)
}

func (o *ObserveLayer) snapshotListeners() []NotificationListener {
	o.listenersMu.RLock()
	defer o.listenersMu.RUnlock()
	return o.listeners
}

// SendRequest registers an observation when req carries Observe=0. The
// registration is rejected up front, before anything is sent, if a
// different live Exchange already owns this (URI, token) KeyURI pair
// (spec.md Section 3: "observers may share tokens only if their KeyURI
// differs").
func (o *ObserveLayer) SendRequest(ex *exchange.Exchange, req *message.Request, next Sender) error {
	v, ok := req.Options.Observe()
	if !ok || v == 1 {
		if err := next.SendRequest(ex, req); err != nil {
			return err
		}
		if ok && v == 1 {
			o.deregister(req.Token)
		}
		return nil
	}

	key := exchange.NewKeyURI(ex.RemoteAddr, req.Options.URIPath(), req.Token)
	if existing, found := o.store.FindByURI(key); found && existing != ex {
		return exchange.ErrDuplicateURI
	}

	if err := next.SendRequest(ex, req); err != nil {
		return err
	}
	if err := o.store.RegisterURI(key, ex); err != nil {
		return err
	}

	obs := &observation{
		req:      req,
		ex:       ex,
		uriKey:   key,
		detector: replaydetector.New(replayWindowSize, 1<<32),
	}
	o.mu.Lock()
	o.byToken[string(req.Token)] = obs
	o.mu.Unlock()
	ex.ObserveState = obs
	ex.OnComplete(func(*exchange.Exchange) { o.deregister(req.Token) })
	return nil
}

// CancelObservation deregisters the observation for token, if any, and
// marks its Exchange done so the matcher's store releases it (spec.md
// Section 4.1's cancel_observation operation).
func (o *ObserveLayer) CancelObservation(token []byte) error {
	o.mu.Lock()
	obs, ok := o.byToken[string(token)]
	delete(o.byToken, string(token))
	o.mu.Unlock()
	if !ok {
		return ErrNoObservation
	}
	o.store.RemoveURI(obs.uriKey)
	obs.ex.Cancel()
	return nil
}

func (o *ObserveLayer) deregister(token []byte) {
	o.mu.Lock()
	obs, ok := o.byToken[string(token)]
	delete(o.byToken, string(token))
	o.mu.Unlock()
	if ok {
		o.store.RemoveURI(obs.uriKey)
	}
}

func (o *ObserveLayer) lookup(token []byte) (*observation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	obs, ok := o.byToken[string(token)]
	return obs, ok
}

// ReceiveResponse checks a notification's freshness before delivering it.
// A response with no Observe option, or for a token with no registered
// observation, passes through unchanged.
func (o *ObserveLayer) ReceiveResponse(ex *exchange.Exchange, resp *message.Response, next Receiver) error {
	raw32, hasObserve := resp.Options.Observe()
	obs, tracked := o.lookup(resp.Token)
	if !tracked || !hasObserve {
		return next.ReceiveResponse(ex, resp)
	}

	obs.mu.Lock()
	// RFC 7641 Section 3.4: once more than ObserveFreshnessWindow has
	// elapsed since the last accepted notification, the 24-bit sequence
	// space could plausibly have wrapped, so the half-space comparison can
	// no longer tell recent from stale. Fall back to arrival order: accept
	// this notification as the new baseline regardless of its sequence
	// number, and reset the replay detector along with it since the
	// detector's window is expressed in the old baseline's terms.
	if obs.started && time.Since(obs.lastSeen) > ObserveFreshnessWindow {
		o.log.Debugf("observe: freshness window elapsed, falling back to arrival order")
		obs.started = false
		obs.detector = replaydetector.New(replayWindowSize, 1<<32)
	}

	ext := obs.peek(raw32)
	if obs.started && ext <= obs.highExt {
		obs.mu.Unlock()
		o.log.Debugf("observe: dropping out-of-order notification seq=%d", raw32)
		return nil
	}
	accept, ok := obs.detector.Check(ext)
	if !ok {
		obs.mu.Unlock()
		o.log.Debugf("observe: dropping replayed notification seq=%d", raw32)
		return nil
	}
	accept()
	obs.commit(raw32, ext)
	obs.lastSeen = time.Now()
	obs.mu.Unlock()

	if err := next.ReceiveResponse(ex, resp); err != nil {
		return err
	}
	for _, l := range o.snapshotListeners() {
		l.OnNotification(obs.req, resp)
	}
	return nil
}
