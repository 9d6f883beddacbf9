package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeviceUpdate is a freshly loaded device list plus its difference to the previous one.
type DeviceUpdate struct {
	Kind    models.ListKind
	Devices []models.DeviceDescriptor
	Added   []models.DeviceDescriptor
	Removed []models.DeviceDescriptor
}

// Display is the front-end driven by the Coordinator. Calls are made one at a
// time. PromptCredential may block on user input; on Close it is abandoned
// and may still be blocked while the remaining status events are shown.
type Display interface {
	ShowStatus(message string)
	ShowDevices(update DeviceUpdate)
	PromptCredential(host string, reason PromptReason) (credential string, ok bool)
}

type eventKind int

const (
	eventStatus eventKind = iota
	eventDevices
	eventCredentialRequest
)

type credentialReply struct {
	credential string
	ok         bool
}

type coordinatorEvent struct {
	kind    eventKind
	message string
	update  DeviceUpdate
	reason  PromptReason
	reply   chan credentialReply
}

// Coordinator sequences device operations for one host. A single goroutine owns the
// Display; remote work runs on a worker pool and reaches the Display only
// through events. Workers that need a credential send a request event and
// block until the coordinator goroutine answers.
type Coordinator struct {
	session    *Session
	controller *ElevationController
	registry   *DeviceRegistry
	notifier   Notifier
	display    Display
	pool       *utils.WorkerPool
	logger     zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan coordinatorEvent
	stop     chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
	loading  atomic.Bool
	started  atomic.Bool
	closing  sync.Once
}

// NewCoordinator initializes a Coordinator. notifier may be nil.
func NewCoordinator(session *Session, registry *DeviceRegistry, notifier Notifier, display Display, workers int, logger zerolog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		session:  session,
		registry: registry,
		notifier: notifier,
		display:  display,
		pool:     utils.NewWorkerPool(workers),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan coordinatorEvent, 16),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.controller = NewElevationController(session, c, logger)
	return c
}

// Start launches the coordinator goroutine.
func (c *Coordinator) Start() {
	if c.started.CompareAndSwap(false, true) {
		go c.loop()
	}
}

// Wait blocks until every submitted operation has finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Close cancels running operations and waits for them, then stops the
// coordinator goroutine after it has handled every pending event. An open
// credential prompt does not hold it up.
func (c *Coordinator) Close() {
	c.closing.Do(func() {
		c.cancel()
		c.pool.Shutdown()
		close(c.stop)
		if c.started.Load() {
			<-c.loopDone
		}
	})
}

// Registry exposes the latest device lists.
func (c *Coordinator) Registry() *DeviceRegistry {
	return c.registry
}

// Connect loads the attached list and then the available list on a single
// worker, so at most one credential prompt can be open. It shares the guard
// of PeriodicRefresh; a tick never starts a second load next to it.
func (c *Coordinator) Connect() error {
	c.post(coordinatorEvent{kind: eventStatus, message: fmt.Sprintf("Connected to %s", c.session.Host())})
	_, err := c.submitLoadAll()
	return err
}

// RefreshAttached reloads the attached device list.
func (c *Coordinator) RefreshAttached() error {
	c.post(coordinatorEvent{kind: eventStatus, message: constants.StatusRefreshAttached})
	return c.submit(func(ctx context.Context) { c.load(ctx, models.ListAttached) })
}

// RefreshAvailable reloads the available device list.
func (c *Coordinator) RefreshAvailable() error {
	c.post(coordinatorEvent{kind: eventStatus, message: constants.StatusRefreshAvailable})
	return c.submit(func(ctx context.Context) { c.load(ctx, models.ListAvailable) })
}

// PeriodicRefresh runs a sequential load unless another one started by
// Connect or an earlier tick is still running. It reports whether a load was
// scheduled.
func (c *Coordinator) PeriodicRefresh() bool {
	scheduled, err := c.submitLoadAll()
	return scheduled && err == nil
}

// submitLoadAll schedules loadAll unless one is already running.
func (c *Coordinator) submitLoadAll() (bool, error) {
	if !c.loading.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("Device lists already loading, skipping")
		return false, nil
	}
	err := c.submit(func(ctx context.Context) {
		defer c.loading.Store(false)
		c.loadAll(ctx)
	})
	if err != nil {
		c.loading.Store(false)
		return false, err
	}
	return true, nil
}

// Attach attaches id to the VM and reloads both lists.
func (c *Coordinator) Attach(id models.DeviceID) error {
	return c.action(constants.OperationAttach, "Attaching", id, c.session.Attach)
}

// Detach detaches id from the VM and reloads both lists.
func (c *Coordinator) Detach(id models.DeviceID) error {
	return c.action(constants.OperationDetach, "Detaching", id, c.session.Detach)
}

// Reconnect re-attaches id and reloads both lists.
func (c *Coordinator) Reconnect(id models.DeviceID) error {
	return c.action(constants.OperationReconnect, "Reconnecting", id, c.session.Reconnect)
}

// RequestCredential implements CredentialPrompter for worker goroutines. It
// must never be called from the coordinator goroutine.
func (c *Coordinator) RequestCredential(ctx context.Context, host string, reason PromptReason) (string, bool) {
	reply := make(chan credentialReply, 1)
	if !c.post(coordinatorEvent{kind: eventCredentialRequest, reason: reason, reply: reply}) {
		return "", false
	}

	select {
	case r := <-reply:
		return r.credential, r.ok
	case <-ctx.Done():
		return "", false
	case <-c.stop:
		return "", false
	}
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-c.stop:
			for {
				select {
				case ev := <-c.events:
					c.handle(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) handle(ev coordinatorEvent) {
	switch ev.kind {
	case eventStatus:
		c.display.ShowStatus(ev.message)
	case eventDevices:
		c.display.ShowDevices(ev.update)
	case eventCredentialRequest:
		ev.reply <- c.prompt(ev.reason)
	}
}

// prompt asks the display for a credential. The read itself may block on the
// terminal indefinitely, so it is abandoned once the coordinator stops.
func (c *Coordinator) prompt(reason PromptReason) credentialReply {
	select {
	case <-c.stop:
		return credentialReply{}
	default:
	}

	answer := make(chan credentialReply, 1)
	go func() {
		credential, ok := c.display.PromptCredential(c.session.Host(), reason)
		answer <- credentialReply{credential: credential, ok: ok}
	}()

	select {
	case r := <-answer:
		return r
	case <-c.stop:
		c.logger.Debug().Msg("Abandoned credential prompt on shutdown")
		return credentialReply{}
	}
}

// post hands ev to the coordinator goroutine. It returns false once the
// coordinator is stopping.
func (c *Coordinator) post(ev coordinatorEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	case <-c.stop:
		return false
	}
}

func (c *Coordinator) submit(task func(ctx context.Context)) error {
	c.inflight.Add(1)
	err := c.pool.Submit(func() {
		defer c.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Msgf("Recovered from panic: %v", r)
				c.post(coordinatorEvent{kind: eventStatus, message: fmt.Sprintf("Internal error: %v", r)})
			}
		}()
		task(c.ctx)
	})
	if err != nil {
		c.inflight.Done()
		return err
	}
	return nil
}

func (c *Coordinator) loadAll(ctx context.Context) {
	c.load(ctx, models.ListAttached)
	if ctx.Err() != nil {
		return
	}
	c.load(ctx, models.ListAvailable)
}

func (c *Coordinator) load(ctx context.Context, kind models.ListKind) {
	name, op := constants.OperationListAttached, RemoteOperation(c.session.ListAttached)
	if kind == models.ListAvailable {
		name, op = constants.OperationListAvailable, c.session.ListAvailable
	}

	result := c.controller.Execute(ctx, name, op)
	if !result.Success {
		c.post(coordinatorEvent{kind: eventStatus, message: result.Error})
		return
	}

	devices, err := models.DecodeDevices(result.Payload, kind)
	if err != nil {
		c.logger.Warn().Err(err).Str("list", string(kind)).Msg("Unexpected device list payload")
		c.post(coordinatorEvent{kind: eventStatus, message: constants.StatusFailedLoadDevices})
		return
	}

	added, removed := c.registry.Replace(kind, devices)
	c.post(coordinatorEvent{kind: eventDevices, update: DeviceUpdate{
		Kind:    kind,
		Devices: devices,
		Added:   added,
		Removed: removed,
	}})
	c.post(coordinatorEvent{kind: eventStatus, message: constants.StatusLoadedDevices})

	if c.notifier != nil {
		snapshot := models.DeviceSnapshot{
			Host:      c.session.Host(),
			Kind:      kind,
			Devices:   devices,
			Timestamp: time.Now(),
		}
		if err := c.notifier.PublishDevices(snapshot); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to publish device snapshot")
		}
	}
}

func (c *Coordinator) action(operation, progress string, id models.DeviceID, op func(context.Context, models.DeviceID) models.RemoteCommandResult) error {
	c.post(coordinatorEvent{kind: eventStatus, message: fmt.Sprintf("%s %s...", progress, id)})

	return c.submit(func(ctx context.Context) {
		result := c.controller.Execute(ctx, operation, func(ctx context.Context) models.RemoteCommandResult {
			return op(ctx, id)
		})

		message, ok := actionStatus(operation, id, result)
		c.post(coordinatorEvent{kind: eventStatus, message: message})

		if c.notifier != nil {
			event := models.OperationEvent{
				ID:        uuid.NewString(),
				Host:      c.session.Host(),
				Operation: operation,
				Device:    id.String(),
				Success:   ok,
				Message:   message,
				Timestamp: time.Now(),
			}
			if err := c.notifier.PublishEvent(event); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to publish operation event")
			}
		}

		c.loadAll(ctx)
	})
}

var actionVerbs = map[string]string{
	constants.OperationAttach:    "Attached",
	constants.OperationDetach:    "Detached",
	constants.OperationReconnect: "Reconnected",
}

// actionStatus renders the status line for a finished device action.
func actionStatus(operation string, id models.DeviceID, result models.RemoteCommandResult) (string, bool) {
	if !result.Success {
		return result.Error, false
	}

	var response models.ActionResponse
	if err := result.Decode(&response); err == nil && response.Success != nil && !*response.Success {
		if response.Error != "" {
			return response.Error, false
		}
		return fmt.Sprintf("Failed to %s device.", operation), false
	}
	return fmt.Sprintf("%s %s", actionVerbs[operation], id), true
}
