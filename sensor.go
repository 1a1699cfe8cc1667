package bletemp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

const (
	defaultNameMatch = "Temperature"
	defaultScanDwell = 2 * time.Second
)

// Sensor denotes the acquisition pipeline for a BLE temperature sensor
type Sensor struct {
	nameMatch  string
	scanDwell  time.Duration
	decodeMode DecodeMode

	open    OpenFunc
	manager Manager

	started atomic.Bool

	mu               sync.RWMutex
	connectionStatus ConnectionStatus
	peripheralInfo   PeripheralInfo

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus

	logger Logger
}

// New instantiates a new Sensor struct, executing functional options, if any
func New(options ...func(*Sensor)) (*Sensor, error) {

	// Initialize a new instance of a Sensor
	f := &Sensor{
		nameMatch: defaultNameMatch,
		scanDwell: defaultScanDwell,
		logger:    &NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(f)
	}

	if f.open == nil && f.manager == nil {
		return nil, errors.New("neither a BLE stack nor a function to open one was provided")
	}
	if f.nameMatch == "" {
		return nil, errors.New("empty peripheral name match")
	}
	if f.scanDwell < 0 {
		return nil, fmt.Errorf("invalid negative scan dwell %v", f.scanDwell)
	}

	return f, nil
}

// ConnectionStatus returns the current status of the acquisition pipeline
func (f *Sensor) ConnectionStatus() ConnectionStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connectionStatus
}

// Peripheral returns information about the selected peripheral (empty until one was selected)
func (f *Sensor) Peripheral() PeripheralInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.peripheralInfo
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (f *Sensor) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	f.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes (non-blocking)
func (f *Sensor) SetStateChangeChannel(ch chan ConnectionStatus) {
	f.stateChangeChan = ch
}

// Run acquires the BLE stack, connects to the first matching temperature
// sensor and hands every decoded sample to emit, followed by a call to wake
// (if non-nil). It returns nil once the notification stream ends and may
// only be called once per Sensor
func (f *Sensor) Run(ctx context.Context, emit func(float32) error, wake func()) (err error) {
	if !f.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	f.setStatus(StateInit, nil)

	var teardown []func() error
	defer func() {
		if closeErr := closeAll(teardown...); closeErr != nil {
			f.logger.Warnf("failed to release BLE resources: %s", closeErr)
		}
		f.setStatus(StateTerminated, err)
		if err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Errorf("acquisition terminated: %s", err)
		}
	}()

	manager, err := f.acquireManager(ctx)
	if err != nil {
		return err
	}

	adapter, err := f.selectAdapter(ctx, manager)
	if err != nil {
		return err
	}
	teardown = append(teardown, adapter.Close)

	p, err := f.scan(ctx, adapter)
	if err != nil {
		return err
	}

	f.logger.Infof("connecting to sensor: %s", p.Address())
	if err := p.Connect(ctx); err != nil {
		return fmt.Errorf("%w `%s`: %w", ErrConnectFailed, p.Address(), err)
	}
	f.setStatus(StateConnected, nil)
	teardown = append(teardown, p.Disconnect)

	f.logger.Infof("discovering services")
	if err := p.DiscoverServices(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDiscoverFailed, err)
	}
	f.setStatus(StateDiscovered, nil)

	f.logger.Infof("locating temperature characteristic")
	c, err := findCharacteristic(p.Characteristics())
	if err != nil {
		return err
	}

	f.logger.Infof("subscribing to characteristic %s", c.UUID)
	notifications, err := p.Subscribe(ctx, c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	f.setStatus(StateSubscribed, nil)

	return f.stream(ctx, notifications, emit, wake)
}

////////////////////////////////////////////////////////////////////////////////

func (f *Sensor) acquireManager(ctx context.Context) (Manager, error) {
	if f.manager != nil {
		return f.manager, nil
	}

	manager, err := f.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBleStack, err)
	}
	if manager == nil {
		return nil, ErrNoBleStack
	}

	return manager, nil
}

func (f *Sensor) selectAdapter(ctx context.Context, manager Manager) (Adapter, error) {
	adapters, err := manager.Adapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAdapter, err)
	}
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}

	// The first adapter wins
	adapter := adapters[0]
	for _, unused := range adapters[1:] {
		if err := unused.Close(); err != nil {
			f.logger.Warnf("failed to release unused adapter `%s`: %s", unused.ID(), err)
		}
	}

	f.logger.Infof("selected adapter: %s", adapter.ID())
	f.setStatus(StateAdapterReady, nil)

	return adapter, nil
}

func (f *Sensor) scan(ctx context.Context, adapter Adapter) (Peripheral, error) {
	if err := adapter.StartScan(ctx); err != nil {
		return nil, fmt.Errorf("%w on adapter `%s`: %w", ErrScanFailed, adapter.ID(), err)
	}
	f.setStatus(StateScanning, nil)

	// Stop scanning once we've got the peripheral we're looking for (or failed to)
	defer func() {
		if err := adapter.StopScan(); err != nil {
			f.logger.Warnf("failed to stop scanning: %s", err)
		}
	}()

	// Enumeration is not immediate on all platforms, so advertisements are
	// accumulated for a fixed time before looking at them
	timer := time.NewTimer(f.scanDwell)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p, err := f.findSensor(ctx, adapter)
	if err != nil {
		return nil, err
	}
	f.setStatus(StateSelected, nil)

	return p, nil
}

func (f *Sensor) findSensor(ctx context.Context, adapter Adapter) (Peripheral, error) {
	peripherals, err := adapter.Peripherals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSensor, err)
	}

	for _, p := range peripherals {
		props, err := p.Properties(ctx)
		if err != nil {
			f.logger.Warnf("failed to obtain properties of peripheral `%s`: %s", p.Address(), err)
			continue
		}
		if props == nil || props.LocalName == "" {
			continue
		}

		f.logger.Infof("discovered sensor: %s", props.LocalName)
		if strings.Contains(props.LocalName, f.nameMatch) {
			f.mu.Lock()
			f.peripheralInfo = PeripheralInfo{
				Address:   p.Address(),
				LocalName: props.LocalName,
			}
			f.mu.Unlock()

			return p, nil
		}
	}

	return nil, fmt.Errorf("%w (none of %d peripherals matched `%s`)", ErrNoSensor, len(peripherals), f.nameMatch)
}

func findCharacteristic(characteristics []Characteristic) (Characteristic, error) {
	for _, c := range characteristics {
		if c.UUID == TemperatureMeasurementUUID {
			return c, nil
		}
	}
	return Characteristic{}, ErrNoCharacteristic
}

func (f *Sensor) stream(ctx context.Context, notifications <-chan []byte, emit func(float32) error, wake func()) error {
	f.setStatus(StateStreaming, nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-notifications:
			if !ok {
				f.logger.Infof("notification stream ended")
				return nil
			}

			raw, value, ok := parseTemperatureData(data, f.decodeMode)
			if !ok {
				f.logger.Debugf("dropping malformed payload (%d bytes)", len(data))
				continue
			}
			f.logger.Debugf("temp: %d", raw)

			if err := emit(value); err != nil {
				return fmt.Errorf("%w: %w", ErrUIGone, err)
			}
			if wake != nil {
				wake()
			}
		}
	}
}

func (f *Sensor) setStatus(state State, err error) {
	f.mu.Lock()
	f.connectionStatus = ConnectionStatus{
		State: state,
		Error: err,
	}
	status := f.connectionStatus
	f.mu.Unlock()

	// Call handler function, if any
	if f.stateChangeHandler != nil {
		f.stateChangeHandler(status)
	}

	// Put state change on channel, if any
	if f.stateChangeChan != nil {
		select {
		case f.stateChangeChan <- status:
		default:
		}
	}
}

// closeAll releases a set of resources in reverse order of acquisition, combining all errors
func closeAll(closers ...func() error) (err error) {
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return
}
