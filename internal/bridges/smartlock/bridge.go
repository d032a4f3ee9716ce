package smartlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-lockbridge/internal/device"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lockbridge/internal/lock"
)

const (
	qosAtLeastOnce byte = 1

	defaultCommandTimeout = 30 * time.Second
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the subset of the MQTT client used by the bridge.
type MQTTClient interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// DeviceRegistry records lock devices and their state in the host registry.
type DeviceRegistry interface {
	EnsureDevice(ctx context.Context, d *device.Device) (bool, error)
	SetDeviceState(ctx context.Context, id string, state device.State) error
	SetDeviceHealth(ctx context.Context, id string, status device.HealthStatus) error
	ListByProtocol(ctx context.Context, protocol device.Protocol) ([]device.Device, error)
}

// StateHistory stores the audit trail of lock state changes.
type StateHistory interface {
	RecordStateChange(ctx context.Context, deviceID string, state device.State, source string) error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]device.StateHistoryEntry, error)
}

// Metrics receives lock telemetry. Implementations must not block.
type Metrics interface {
	WriteLockState(deviceID, lockID string, locked bool, bolt string)
	WriteCommandResult(deviceID, command string, success bool, took time.Duration)
}

// StateListener is called after a lock's state is applied.
type StateListener func(LockStatus)

// LockStatus is a point-in-time view of one managed lock.
type LockStatus struct {
	DeviceID string `json:"device_id"`
	LockID   string `json:"lock_id"`
	Name     string `json:"name"`
	Locked   bool   `json:"locked"`

	// Bolt is the last known bolt state, "unknown" until first read.
	Bolt string `json:"bolt"`

	// Reachable is false after the last vendor call for the lock failed.
	Reachable bool       `json:"reachable"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DeviceState returns the registry and MQTT representation of the status.
func (s LockStatus) DeviceState() device.State {
	return device.State{"locked": s.Locked, "bolt": s.Bolt}
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// MQTTClient publishes state and receives commands. Required.
	MQTTClient MQTTClient

	// Registry is optional. When set, locks are seeded as devices and
	// their state and health kept current.
	Registry DeviceRegistry

	// History is optional and records every applied state.
	History StateHistory

	// Metrics is optional.
	Metrics Metrics

	Logger Logger

	// DeviceIDs maps vendor lock IDs to registry device IDs. Locks not
	// listed use DefaultDeviceID.
	DeviceIDs map[string]string

	// Backend names the vendor service in device addresses, e.g. "cloud".
	Backend string

	// PollInterval is how often every lock is refreshed. Zero disables
	// polling after the startup refresh.
	PollInterval time.Duration

	HealthInterval time.Duration

	// CommandTimeout bounds MQTT-initiated commands. Default: 30 seconds.
	CommandTimeout time.Duration

	Version string
}

// DefaultDeviceID returns the device ID used for a lock with no explicit
// mapping.
func DefaultDeviceID(lockID string) string {
	return "lock-" + strings.ToLower(lockID)
}

type managedLock struct {
	deviceID string
	lockID   string
	name     string
	adapter  *lock.Adapter

	// Guarded by Bridge.mu.
	state     lock.State
	applied   bool
	failed    bool
	updatedAt time.Time
}

// Bridge connects lock adapters to MQTT, the device registry and the API.
// It implements lock.Registrar.
type Bridge struct {
	mqtt     MQTTClient
	registry DeviceRegistry
	history  StateHistory
	metrics  Metrics
	health   *HealthReporter

	deviceIDs      map[string]string
	backend        string
	pollInterval   time.Duration
	commandTimeout time.Duration

	// opMu serialises every adapter call.
	opMu sync.Mutex

	// regMu serialises Register so the duplicate check and insert are
	// atomic across concurrent callers.
	regMu sync.Mutex

	mu        sync.RWMutex
	locks     map[string]*managedLock
	listeners []StateListener

	commandsTotal  atomic.Uint64
	commandsFailed atomic.Uint64
	pollsTotal     atomic.Uint64
	pollsFailed    atomic.Uint64

	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
	stopped   atomic.Bool
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a Bridge. Locks are added through Register.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("smartlock: MQTT client is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:           opts.MQTTClient,
		registry:       opts.Registry,
		history:        opts.History,
		metrics:        opts.Metrics,
		deviceIDs:      opts.DeviceIDs,
		backend:        opts.Backend,
		pollInterval:   opts.PollInterval,
		commandTimeout: opts.CommandTimeout,
		locks:          make(map[string]*managedLock),
		ctx:            ctx,
		ctxCancel:      cancel,
		done:           make(chan struct{}),
		logger:         opts.Logger,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.commandTimeout <= 0 {
		b.commandTimeout = defaultCommandTimeout
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    b,
	})
	b.health.SetLogger(b.logger)
	return b, nil
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// OnStateChange adds a listener called after each applied state.
// Listeners run synchronously and must not call back into the bridge.
func (b *Bridge) OnStateChange(fn StateListener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Register adds adapters to the bridge and seeds a registry device for
// each. Locks registered after Start are refreshed immediately.
func (b *Bridge) Register(ctx context.Context, adapters []*lock.Adapter) error {
	b.regMu.Lock()
	defer b.regMu.Unlock()

	var added []*managedLock
	for _, a := range adapters {
		if a == nil {
			continue
		}

		m := &managedLock{
			deviceID: b.deviceIDFor(a.LockID()),
			lockID:   a.LockID(),
			name:     a.Name(),
			adapter:  a,
		}
		if strings.TrimSpace(m.name) == "" {
			m.name = m.lockID
		}

		b.mu.RLock()
		_, exists := b.locks[m.deviceID]
		b.mu.RUnlock()
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateLock, m.deviceID)
		}

		if err := b.seedDevice(ctx, m); err != nil {
			return err
		}

		b.mu.Lock()
		b.locks[m.deviceID] = m
		b.mu.Unlock()
		added = append(added, m)

		b.getLogger().Info("lock added to bridge", "device_id", m.deviceID, "lock_id", m.lockID, "name", m.name)
	}

	if b.started.Load() && len(added) > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.refresh(b.ctx, added, device.StateHistorySourceStartup)
		}()
	}
	return nil
}

func (b *Bridge) seedDevice(ctx context.Context, m *managedLock) error {
	if b.registry == nil {
		return nil
	}

	address := device.Address{"lock_id": m.lockID}
	if b.backend != "" {
		address["backend"] = b.backend
	}
	d := &device.Device{
		ID:           m.deviceID,
		Name:         m.name,
		Slug:         device.GenerateSlug(m.deviceID),
		Type:         device.DeviceTypeDoorLock,
		Domain:       device.DomainSecurity,
		Protocol:     device.ProtocolSmartLock,
		Address:      address,
		Capabilities: []device.Capability{device.CapLockUnlock},
		State:        device.State{},
		HealthStatus: device.HealthStatusUnknown,
	}

	created, err := b.registry.EnsureDevice(ctx, d)
	if err != nil {
		return fmt.Errorf("seeding device %s: %w", m.deviceID, err)
	}
	if created {
		b.getLogger().Info("lock device created", "device_id", m.deviceID)
	}
	return nil
}

func (b *Bridge) deviceIDFor(lockID string) string {
	if id, ok := b.deviceIDs[lockID]; ok && id != "" {
		return id
	}
	return DefaultDeviceID(lockID)
}

// Start subscribes to commands, begins health reporting and starts the
// poll loop. Every registered lock is refreshed once on startup.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		select {
		case <-ctx.Done():
			b.ctxCancel()
		case <-b.done:
		}
	}()

	if err := b.health.PublishStarting(); err != nil {
		b.getLogger().Warn("failed to publish starting status", "error", err)
	}

	topic := mqtt.Topics{}.ProtocolCommands(Protocol)
	if err := b.mqtt.Subscribe(topic, qosAtLeastOnce, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	b.markOrphans(ctx)
	b.health.Start(b.ctx)

	b.wg.Add(1)
	go b.pollLoop()

	b.getLogger().Info("smartlock bridge started",
		"locks", b.DeviceCount(),
		"poll_interval", b.pollInterval.String(),
	)
	return nil
}

// markOrphans sets registry lock devices that no adapter manages to
// offline. They are left over from runs with a different lock ID.
func (b *Bridge) markOrphans(ctx context.Context) {
	if b.registry == nil {
		return
	}
	devices, err := b.registry.ListByProtocol(ctx, device.ProtocolSmartLock)
	if err != nil {
		b.getLogger().Warn("failed to list lock devices", "error", err)
		return
	}
	for i := range devices {
		d := &devices[i]
		if _, managed := b.lookup(d.ID); managed || d.HealthStatus == device.HealthStatusOffline {
			continue
		}
		if err := b.registry.SetDeviceHealth(ctx, d.ID, device.HealthStatusOffline); err != nil {
			b.getLogger().Warn("failed to mark unmanaged lock offline", "device_id", d.ID, "error", err)
			continue
		}
		b.getLogger().Info("unmanaged lock device marked offline", "device_id", d.ID)
	}
}

// Stop halts polling and health reporting and waits for in-flight work.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		if b.started.Load() {
			topic := mqtt.Topics{}.ProtocolCommands(Protocol)
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.getLogger().Warn("failed to unsubscribe from commands", "topic", topic, "error", err)
			}
		}
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()
		b.getLogger().Info("smartlock bridge stopped")
	})
}

func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	b.refresh(b.ctx, b.managed(), device.StateHistorySourceStartup)
	if err := b.health.PublishNow(); err != nil {
		b.getLogger().Warn("failed to publish health", "error", err)
	}

	if b.pollInterval <= 0 {
		return
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.refresh(b.ctx, b.managed(), device.StateHistorySourcePoll)
		}
	}
}

// refresh updates each lock in turn; failures are logged and counted.
func (b *Bridge) refresh(ctx context.Context, locks []*managedLock, source string) {
	for _, m := range locks {
		if ctx.Err() != nil {
			return
		}
		if _, err := b.run(ctx, m, CommandRefresh, source); err != nil {
			b.getLogger().Warn("lock refresh failed", "device_id", m.deviceID, "source", source, "error", err)
		}
	}
}

// Execute runs a lock, unlock or refresh command on a managed lock and
// returns its resulting status.
func (b *Bridge) Execute(ctx context.Context, deviceID, command string) (LockStatus, error) {
	m, ok := b.lookup(deviceID)
	if !ok {
		return LockStatus{}, fmt.Errorf("%w: %s", ErrUnknownLock, deviceID)
	}
	return b.run(ctx, m, command, device.StateHistorySourceCommand)
}

func (b *Bridge) run(ctx context.Context, m *managedLock, command, source string) (LockStatus, error) {
	if b.stopped.Load() {
		return b.status(m), ErrStopped
	}

	var op func(context.Context) error
	switch command {
	case CommandLock:
		op = m.adapter.Lock
	case CommandUnlock:
		op = m.adapter.Unlock
	case CommandRefresh:
		op = m.adapter.Update
	default:
		return b.status(m), fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	start := time.Now()
	err := op(ctx)
	took := time.Since(start)
	state := m.adapter.State()

	b.countCall(source, err)
	if b.metrics != nil {
		b.metrics.WriteCommandResult(m.deviceID, command, err == nil, took)
	}

	if err != nil {
		// A failed logout leaves the command executed and the adapter
		// holding the new state, so the vendor is reachable and the state
		// is recorded before the error is reported.
		closeOnly := errors.Is(err, lock.ErrSessionClose) && !errors.Is(err, lock.ErrCommandFailed)
		b.markFailed(ctx, m, !closeOnly)

		status := b.status(m)
		if b.stateMoved(m, state) {
			status = b.apply(ctx, m, state, source)
		}
		return status, fmt.Errorf("%s %s: %w", command, m.deviceID, err)
	}

	b.markFailed(ctx, m, false)
	return b.apply(ctx, m, state, source), nil
}

// stateMoved reports whether the adapter holds a known state the bridge has
// not recorded yet.
func (b *Bridge) stateMoved(m *managedLock, state lock.State) bool {
	if state == lock.StateUnknown {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !m.applied || m.state != state
}

func (b *Bridge) countCall(source string, err error) {
	if source == device.StateHistorySourcePoll {
		b.pollsTotal.Add(1)
		if err != nil {
			b.pollsFailed.Add(1)
		}
		return
	}
	b.commandsTotal.Add(1)
	if err != nil {
		b.commandsFailed.Add(1)
	}
}

func (b *Bridge) markFailed(ctx context.Context, m *managedLock, failed bool) {
	b.mu.Lock()
	changed := m.failed != failed
	m.failed = failed
	b.mu.Unlock()

	if b.registry == nil {
		return
	}
	health := device.HealthStatusOnline
	if failed {
		health = device.HealthStatusOffline
	}
	if err := b.registry.SetDeviceHealth(ctx, m.deviceID, health); err != nil {
		b.getLogger().Warn("failed to update device health", "device_id", m.deviceID, "error", err)
	}
	if changed {
		b.getLogger().Info("lock reachability changed", "device_id", m.deviceID, "health", string(health))
	}
}

// apply records a successfully read or commanded state. Polls that
// observe no change stop after updating the in-memory timestamp.
func (b *Bridge) apply(ctx context.Context, m *managedLock, state lock.State, source string) LockStatus {
	b.mu.Lock()
	changed := !m.applied || m.state != state
	m.state = state
	m.applied = true
	m.updatedAt = time.Now().UTC()
	status := m.statusLocked()
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	if !changed && source == device.StateHistorySourcePoll {
		return status
	}

	deviceState := status.DeviceState()
	if b.registry != nil {
		if err := b.registry.SetDeviceState(ctx, m.deviceID, deviceState); err != nil {
			b.getLogger().Warn("failed to update device state", "device_id", m.deviceID, "error", err)
		}
	}
	if b.history != nil {
		if err := b.history.RecordStateChange(ctx, m.deviceID, deviceState, source); err != nil {
			b.getLogger().Warn("failed to record state history", "device_id", m.deviceID, "error", err)
		}
	}
	if b.metrics != nil {
		b.metrics.WriteLockState(m.deviceID, m.lockID, status.Locked, status.Bolt)
	}
	b.publishState(status)

	for _, fn := range listeners {
		fn(status)
	}

	if changed {
		b.getLogger().Info("lock state changed", "device_id", m.deviceID, "bolt", status.Bolt, "source", source)
	}
	return status
}

func (b *Bridge) publishState(status LockStatus) {
	payload, err := json.Marshal(NewStateMessage(status))
	if err != nil {
		b.getLogger().Error("failed to marshal state", "device_id", status.DeviceID, "error", err)
		return
	}
	topic := mqtt.Topics{}.BridgeState(Protocol, status.DeviceID)
	if err := b.mqtt.Publish(topic, payload, qosAtLeastOnce, true); err != nil {
		b.getLogger().Warn("failed to publish state", "topic", topic, "error", err)
	}
}

// handleCommand processes a command received on
// graylogic/command/smartlock/{device_id}.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parsing command on %s: %w", topic, err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topic[strings.LastIndex(topic, "/")+1:]
	}

	b.getLogger().Debug("command received",
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"command_id", cmd.ID,
		"source", cmd.Source,
	)

	m, ok := b.lookup(cmd.DeviceID)
	if !ok {
		b.publishAck(NewAckError(cmd, "", ErrCodeNotConfigured, "lock not managed by this bridge"))
		return nil
	}

	switch cmd.Command {
	case CommandLock, CommandUnlock, CommandRefresh:
	default:
		b.publishAck(NewAckError(cmd, m.lockID, ErrCodeInvalidCommand,
			fmt.Sprintf("unsupported command %q", cmd.Command)))
		return nil
	}

	b.publishAck(NewAckMessage(cmd, AckAccepted, m.lockID))

	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	if _, err := b.run(ctx, m, cmd.Command, device.StateHistorySourceCommand); err != nil {
		code := ErrCodeDeviceUnreachable
		switch {
		case errors.Is(err, ErrStopped):
			code = ErrCodeBridgeError
		case errors.Is(err, lock.ErrSessionClose) && !errors.Is(err, lock.ErrCommandFailed):
			code = ErrCodeSessionError
		}
		b.publishAck(NewAckError(cmd, m.lockID, code, err.Error()))
		b.getLogger().Error("command failed", "device_id", cmd.DeviceID, "command", cmd.Command, "error", err)
		return nil
	}

	b.publishAck(NewAckMessage(cmd, AckCompleted, m.lockID))
	return nil
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.getLogger().Error("failed to marshal ack", "device_id", ack.DeviceID, "error", err)
		return
	}
	topic := mqtt.Topics{}.BridgeAck(Protocol, ack.DeviceID)
	if err := b.mqtt.Publish(topic, payload, qosAtLeastOnce, false); err != nil {
		b.getLogger().Warn("failed to publish ack", "topic", topic, "error", err)
	}
}

// List returns the status of every managed lock ordered by device ID.
func (b *Bridge) List() []LockStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LockStatus, 0, len(b.locks))
	for _, m := range b.locks {
		out = append(out, m.statusLocked())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Get returns the status of one managed lock.
func (b *Bridge) Get(deviceID string) (LockStatus, error) {
	m, ok := b.lookup(deviceID)
	if !ok {
		return LockStatus{}, fmt.Errorf("%w: %s", ErrUnknownLock, deviceID)
	}
	return b.status(m), nil
}

// History returns recorded state changes for a managed lock, newest first.
func (b *Bridge) History(ctx context.Context, deviceID string, limit int) ([]device.StateHistoryEntry, error) {
	if _, ok := b.lookup(deviceID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLock, deviceID)
	}
	if b.history == nil {
		return []device.StateHistoryEntry{}, nil
	}
	return b.history.GetHistory(ctx, deviceID, limit)
}

// Statistics implements StatusSource.
func (b *Bridge) Statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsTotal:  b.commandsTotal.Load(),
		CommandsFailed: b.commandsFailed.Load(),
		PollsTotal:     b.pollsTotal.Load(),
		PollsFailed:    b.pollsFailed.Load(),
	}
}

// DeviceCount implements StatusSource.
func (b *Bridge) DeviceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.locks)
}

// Unreachable implements StatusSource.
func (b *Bridge) Unreachable() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ids []string
	for id, m := range b.locks {
		if m.failed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (b *Bridge) lookup(deviceID string) (*managedLock, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.locks[deviceID]
	return m, ok
}

func (b *Bridge) managed() []*managedLock {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*managedLock, 0, len(b.locks))
	for _, m := range b.locks {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].deviceID < out[j].deviceID })
	return out
}

func (b *Bridge) status(m *managedLock) LockStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return m.statusLocked()
}

// statusLocked must be called with Bridge.mu held.
func (m *managedLock) statusLocked() LockStatus {
	s := LockStatus{
		DeviceID:  m.deviceID,
		LockID:    m.lockID,
		Name:      m.name,
		Locked:    m.state == lock.StateLocked,
		Bolt:      m.state.String(),
		Reachable: !m.failed,
	}
	if m.applied {
		t := m.updatedAt
		s.UpdatedAt = &t
	}
	return s
}
