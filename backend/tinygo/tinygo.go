// Package tinygo implements a BLE central on top of tinygo.org/x/bluetooth,
// i.e. BlueZ (via D-Bus) on Linux, CoreBluetooth on macOS and WinRT on Windows
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bletemp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/multierr"
	"tinygo.org/x/bluetooth"
)

const (
	defaultAdapterID = "default"
	scanStartGrace   = 50 * time.Millisecond
)

var (

	// ErrNotConnected is returned by operations that require a connection
	ErrNotConnected = errors.New("peripheral not connected")

	// ErrUnknownCharacteristic is returned when subscribing to a characteristic
	// that was not discovered on the peripheral
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
)

// Manager denotes the platform BLE stack. The platform only exposes its
// default adapter
type Manager struct {
	adapter *Adapter
	logger  bletemp.Logger
}

// New instantiates a new Manager, executing functional options, if any
func New(options ...func(*Manager)) *Manager {
	m := &Manager{
		logger: &bletemp.NullLogger{},
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// WithLogger sets a logger
func WithLogger(logger bletemp.Logger) func(*Manager) {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Open enables the default adapter. It fails if the platform BLE service
// (e.g. BlueZ / D-Bus) is not reachable
func (m *Manager) Open(ctx context.Context) (bletemp.Manager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := bluetooth.DefaultAdapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable default adapter: %w", err)
	}

	m.adapter = &Adapter{
		btAdapter:           bluetooth.DefaultAdapter,
		logger:              m.logger,
		peripherals:         orderedmap.New[string, *Peripheral](),
		enableNotifications: enableNotifications,
	}
	m.adapter.btAdapter.SetConnectHandler(m.adapter.onConnectionChange)

	return m, nil
}

// Adapters returns the default adapter
func (m *Manager) Adapters(ctx context.Context) ([]bletemp.Adapter, error) {
	if m.adapter == nil {
		return nil, nil
	}
	return []bletemp.Adapter{m.adapter}, nil
}

////////////////////////////////////////////////////////////////////////////////

// Adapter denotes the default bluetooth adapter of the platform
type Adapter struct {
	btAdapter *bluetooth.Adapter
	logger    bletemp.Logger

	enableNotifications func(bluetooth.DeviceCharacteristic, func([]byte)) error

	mu          sync.Mutex
	scanDone    chan error
	peripherals *orderedmap.OrderedMap[string, *Peripheral]
}

// ID returns the adapter identifier
func (a *Adapter) ID() string {
	return defaultAdapterID
}

// StartScan starts an unfiltered scan in the background
func (a *Adapter) StartScan(ctx context.Context) error {
	a.mu.Lock()
	if a.scanDone != nil {
		a.mu.Unlock()
		return nil
	}
	scanDone := make(chan error, 1)
	a.scanDone = scanDone
	a.mu.Unlock()

	go func() {
		scanDone <- a.btAdapter.Scan(a.onScanResult)
	}()

	// Scanning fails early if the adapter rejects it
	timer := time.NewTimer(scanStartGrace)
	defer timer.Stop()

	select {
	case err := <-scanDone:
		a.resetScan()
		return err
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return multierr.Append(ctx.Err(), a.StopScan())
	}
}

// StopScan stops an ongoing scan and waits for it to end
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	done := a.scanDone
	a.scanDone = nil
	a.mu.Unlock()

	if done == nil {
		return nil
	}
	if err := a.btAdapter.StopScan(); err != nil {
		return err
	}
	return <-done
}

// Peripherals returns all peripherals discovered so far, in discovery order
func (a *Adapter) Peripherals(ctx context.Context) ([]bletemp.Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := make([]bletemp.Peripheral, 0, a.peripherals.Len())
	for pair := a.peripherals.Oldest(); pair != nil; pair = pair.Next() {
		res = append(res, pair.Value)
	}
	return res, nil
}

// Close stops scanning. The default adapter itself stays enabled
func (a *Adapter) Close() error {
	return a.StopScan()
}

func (a *Adapter) resetScan() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanDone = nil
}

func (a *Adapter) onScanResult(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
	address := result.Address.String()

	a.mu.Lock()
	defer a.mu.Unlock()

	if known, exists := a.peripherals.Get(address); exists {
		known.update(result.LocalName(), int(result.RSSI))
		return
	}

	a.logger.Debugf("discovered device `%s/%s`", result.LocalName(), address)
	a.peripherals.Set(address, &Peripheral{
		adapter:   a,
		btAddress: result.Address,
		address:   address,
		name:      result.LocalName(),
		rssi:      int(result.RSSI),
	})
}

func (a *Adapter) onConnectionChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}

	a.mu.Lock()
	p, exists := a.peripherals.Get(device.Address.String())
	a.mu.Unlock()

	if exists {
		a.logger.Debugf("disconnected peripheral `%s`", p.address)
		p.disconnected()
	}
}

func enableNotifications(c bluetooth.DeviceCharacteristic, callback func([]byte)) error {
	return c.EnableNotifications(callback)
}
