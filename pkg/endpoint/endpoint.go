package endpoint

import (
	"net"
	"sync"

	"github.com/backkem/coap/pkg/config"
	"github.com/backkem/coap/pkg/connector"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/stack"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Endpoint binds a Connector, Matcher, Store and protocol Stack into the
// unit of CoAP communication described by spec.md Section 4.1: a
// lifecycle state machine, an Inbox that reposts inbound frames onto the
// protocol stage, and an Outbox that registers, intercepts and writes
// outbound messages. id is a per-process, per-construction identifier
// returned by ID; the component loggers do not include it in their log
// lines.
type Endpoint struct {
	id        string
	cfg       *config.Config
	conn      connector.Connector
	log       logging.LeveledLogger
	loggerFac logging.LoggerFactory

	mu       sync.Mutex
	state    State
	executor Executor
	ownsExec bool

	store   *exchange.Store
	matcher exchange.Matcher
	codec   message.Codec

	deliverer MessageDeliverer
	defDeliv  *defaultDeliverer

	interceptors *interceptorList
	observers    *observerList

	stk    *stack.Stack
	reliab *stack.ReliabilityLayer
	block  *stack.BlockwiseLayer
	obs    *stack.ObserveLayer

	ob *outbox
	ib *inbox
}

// New creates an Endpoint over conn, using cfg for timing/size parameters
// (config.New() if cfg is nil) and loggerFactory for every component's
// logger (logging.NewDefaultLoggerFactory() if nil).
func New(conn connector.Connector, cfg *config.Config, loggerFactory logging.LoggerFactory) *Endpoint {
	if cfg == nil {
		cfg = config.New()
	}
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	ep := &Endpoint{
		id:           uuid.NewString(),
		cfg:          cfg,
		conn:         conn,
		log:          loggerFactory.NewLogger("endpoint"),
		loggerFac:    loggerFactory,
		state:        StateCreated,
		interceptors: &interceptorList{},
		observers:    &observerList{},
		codec:        message.CodecFor(conn.Scheme()),
	}
	return ep
}

// ID returns the Endpoint's process-local identifier, a UUID assigned at
// construction. It is not added to the log lines of its components.
func (ep *Endpoint) ID() string { return ep.id }

// State returns the Endpoint's current lifecycle state.
func (ep *Endpoint) State() State {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.state
}

// SetDeliverer installs the application's MessageDeliverer. Must be
// called before Start; if never called, Start installs a default
// client-side deliverer.
func (ep *Endpoint) SetDeliverer(d MessageDeliverer) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.deliverer = d
}

// SetExecutor installs a custom protocol-stage Executor. Rejected while
// the Endpoint is started (spec.md Section 9's open question on
// set_executor is resolved this way: replacement is forbidden rather
// than silently tearing down the previous executor).
func (ep *Endpoint) SetExecutor(e Executor) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.state.IsRunning() {
		return ErrExecutorImmutableWhileRunning
	}
	ep.executor = e
	ep.ownsExec = false
	return nil
}

// AddInterceptor registers a MessageInterceptor. Safe to call at any
// time; the Outbox and Inbox always iterate a fresh snapshot.
func (ep *Endpoint) AddInterceptor(i MessageInterceptor) {
	ep.interceptors.Add(i)
}

// AddObserver registers an EndpointObserver.
func (ep *Endpoint) AddObserver(o EndpointObserver) {
	ep.observers.Add(o)
}

// AddNotificationListener registers a listener for accepted Observe
// notifications, delegated to the stack's ObserveLayer. Start creates a
// new ObserveLayer each time it runs, so a listener added before the
// first Start is dropped, and listeners do not carry over a restart.
func (ep *Endpoint) AddNotificationListener(l stack.NotificationListener) {
	ep.mu.Lock()
	obs := ep.obs
	ep.mu.Unlock()
	if obs != nil {
		obs.AddNotificationListener(l)
	}
}

// LocalAddr returns the underlying connector's bound address.
func (ep *Endpoint) LocalAddr() net.Addr {
	return ep.conn.LocalAddr()
}

// Start brings the Endpoint up (spec.md Section 4.1): install a default
// deliverer, exchange store, matcher and executor if none were set, build
// the stack, mark Started, start the connector, notify observers, then
// submit a no-op to force executor thread creation before the first real
// task. On any failure, Stop releases whatever was already started
// and the original failure is returned.
func (ep *Endpoint) Start() error {
	ep.mu.Lock()
	if !ep.state.CanStart() {
		ep.mu.Unlock()
		return ErrAlreadyStarted
	}
	ep.state = StateStarting

	if ep.deliverer == nil {
		ep.defDeliv = newDefaultDeliverer()
		ep.deliverer = ep.defDeliv
	}
	if ep.store == nil {
		ep.store = exchange.NewStore(ep.cfg.ExchangeLifetime)
	}
	if ep.matcher == nil {
		ep.matcher = ep.newMatcherForScheme()
	}
	if ep.executor == nil {
		ep.executor = NewSerialExecutor(64)
		ep.ownsExec = true
	}

	ep.reliab = stack.NewReliabilityLayer(ep.cfg, ep.loggerFac)
	ep.block = stack.NewBlockwiseLayer(ep.cfg, ep.loggerFac)
	ep.obs = stack.NewObserveLayer(ep.store, ep.loggerFac)

	ep.ob = newOutbox(ep.matcher, ep.conn, ep.codec, ep.interceptors, ep.loggerFac.NewLogger("outbox"))
	deliv := &delivererAdapter{d: ep.deliverer}
	ep.stk = stack.New(ep.ob, deliv, ep.obs, ep.block, ep.reliab)
	ep.ib = newInbox(ep.matcher, ep.codec, ep.stk, ep.ob, ep.interceptors, ep.executor, ep.loggerFac.NewLogger("inbox"))

	ep.conn.SetRawDataReceiver(ep.ib.Deliver)

	ep.state = StateStarted
	ep.mu.Unlock()

	if err := ep.conn.Start(); err != nil {
		ep.log.Errorf("endpoint: connector failed to start: %v", err)
		_ = ep.stopLocked(true)
		return err
	}

	ep.observers.notifyStarted(ep)

	// Force executor thread creation before any real work arrives.
	done := make(chan struct{})
	if err := ep.executor.Submit(func() { close(done) }); err != nil {
		ep.log.Warnf("endpoint: failed to prime executor: %v", err)
	} else {
		<-done
	}

	return nil
}

func (ep *Endpoint) newMatcherForScheme() exchange.Matcher {
	if ep.conn.Scheme().IsStream() {
		return exchange.NewTcpMatcher(ep.store, ep.cfg)
	}
	return exchange.NewUdpMatcher(ep.store, ep.cfg)
}

// Stop releases the connector and executor but leaves the Endpoint
// restartable.
func (ep *Endpoint) Stop() error {
	ep.mu.Lock()
	if !ep.state.CanStop() {
		ep.mu.Unlock()
		return ErrNotStarted
	}
	ep.mu.Unlock()
	return ep.stopLocked(false)
}

func (ep *Endpoint) stopLocked(fromFailedStart bool) error {
	ep.mu.Lock()
	ep.state = StateStopping
	ep.mu.Unlock()

	err := ep.conn.Stop()

	ep.mu.Lock()
	if ep.ownsExec && ep.executor != nil {
		ep.executor.Stop()
		ep.executor = nil
		ep.ownsExec = false
	}
	ep.state = StateStopped
	ep.mu.Unlock()

	if !fromFailedStart {
		ep.observers.notifyStopped(ep)
	}
	return err
}

// Destroy permanently releases the Endpoint's resources. Terminal: no
// further operation may be performed afterward.
func (ep *Endpoint) Destroy() error {
	ep.mu.Lock()
	if !ep.state.CanDestroy() {
		ep.mu.Unlock()
		return ErrDestroyed
	}
	running := ep.state.IsRunning()
	ep.mu.Unlock()

	if running {
		if err := ep.Stop(); err != nil {
			ep.log.Warnf("endpoint: stop during destroy failed: %v", err)
		}
	}

	err := ep.conn.Destroy()

	ep.mu.Lock()
	ep.state = StateDestroyed
	ep.mu.Unlock()

	ep.observers.notifyDestroyed(ep)
	return err
}

// SendRequest implements send_request (spec.md Section 4.1): always
// posted to the protocol stage executor, returning once the request has
// been handed to the stack. peer is the destination; req.Token, if nil,
// is assigned by the matcher.
func (ep *Endpoint) SendRequest(req *message.Request, peer net.Addr) (*exchange.Exchange, <-chan *message.Response, error) {
	ep.mu.Lock()
	if !ep.state.IsRunning() {
		ep.mu.Unlock()
		return nil, nil, ErrNotRunning
	}
	executor, defDeliv := ep.executor, ep.defDeliv
	ep.mu.Unlock()

	if peer == nil {
		return nil, nil, ErrInvalidDestination
	}

	ex := exchange.NewExchange(exchange.OriginLocal, peer)
	var respCh <-chan *message.Response
	if defDeliv != nil {
		respCh = defDeliv.register(ex)
	}

	errCh := make(chan error, 1)
	submitErr := executor.Submit(func() {
		errCh <- ep.stk.SendRequest(ex, req)
	})
	if submitErr != nil {
		return nil, nil, submitErr
	}
	if err := <-errCh; err != nil {
		return ex, respCh, err
	}
	return ex, respCh, nil
}

// SendResponse implements send_response: runs synchronously on the
// caller's thread unless the Exchange was marked CustomExecutor, in which
// case it is posted to the protocol stage instead (spec.md Section
// 4.1/7). The default (caller's thread) case matters in practice because
// a deliverer's DeliverRequest callback, which builds and sends the
// response, itself runs on the protocol stage: posting unconditionally
// would have it wait on its own executor to free up.
func (ep *Endpoint) SendResponse(ex *exchange.Exchange, resp *message.Response) error {
	ep.mu.Lock()
	if !ep.state.IsRunning() {
		ep.mu.Unlock()
		return ErrNotRunning
	}
	executor := ep.executor
	ep.mu.Unlock()

	if !ex.CustomExecutor {
		return ep.stk.SendResponse(ex, resp)
	}

	errCh := make(chan error, 1)
	if err := executor.Submit(func() { errCh <- ep.stk.SendResponse(ex, resp) }); err != nil {
		return err
	}
	return <-errCh
}

// SendEmptyMessage implements send_empty_message: always synchronous on
// the caller's thread, completing before it returns (spec.md Section
// 4.1, invariant "send_empty_message completes on caller's thread before
// returning").
func (ep *Endpoint) SendEmptyMessage(ex *exchange.Exchange, empty *message.Empty) error {
	ep.mu.Lock()
	running := ep.state.IsRunning()
	ep.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return ep.stk.SendEmpty(ex, empty)
}

// CancelObservation implements cancel_observation, delegated to the
// ObserveLayer keyed by the original request's token.
func (ep *Endpoint) CancelObservation(token []byte) error {
	ep.mu.Lock()
	obs := ep.obs
	ep.mu.Unlock()
	if obs == nil {
		return ErrNotRunning
	}
	return obs.CancelObservation(token)
}

// delivererAdapter adapts a MessageDeliverer to stack.Receiver, the shape
// the Stack expects at the top of its receive path. Empty messages carry
// nothing for the application: reaching the top of the stack means a bare
// ACK/RST was already consumed by the lower layers (timer disarm), so
// there is nothing left to deliver.
type delivererAdapter struct {
	d MessageDeliverer
}

func (a *delivererAdapter) ReceiveRequest(ex *exchange.Exchange, req *message.Request) error {
	a.d.DeliverRequest(ex, req)
	return nil
}

func (a *delivererAdapter) ReceiveResponse(ex *exchange.Exchange, resp *message.Response) error {
	a.d.DeliverResponse(ex, resp)
	return nil
}

func (a *delivererAdapter) ReceiveEmpty(ex *exchange.Exchange, empty *message.Empty) error {
	return nil
}
