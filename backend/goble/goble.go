//go:build linux

// Package goble implements a BLE central on top of github.com/go-ble/ble
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/internal/hci"
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/multierr"
)

const (
	bleTimeout     = 20 * time.Second
	scanStartGrace = 50 * time.Millisecond
)

var (

	// ErrNotConnected is returned by operations that require a connection
	ErrNotConnected = errors.New("peripheral not connected")

	// ErrUnknownCharacteristic is returned when subscribing to a characteristic
	// that was not discovered on the peripheral
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
)

// Manager denotes the go-ble based BLE stack
type Manager struct {
	devices   func() ([]hci.Device, error)
	newDevice func(id int) (ble.Device, error)

	logger bletemp.Logger
}

// New instantiates a new Manager, executing functional options, if any
func New(options ...func(*Manager)) *Manager {
	m := &Manager{
		devices:   hci.Devices,
		newDevice: newDevice,
		logger:    &bletemp.NullLogger{},
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

// Open fulfils the bletemp.OpenFunc signature. It fails if the kernel lacks
// a bluetooth subsystem
func (m *Manager) Open(ctx context.Context) (bletemp.Manager, error) {
	if _, err := m.devices(); err != nil {
		return nil, err
	}
	return m, ctx.Err()
}

// Adapters returns one adapter per HCI controller, ordered by index. No
// controller is opened before scanning is started on it
func (m *Manager) Adapters(ctx context.Context) ([]bletemp.Adapter, error) {
	devices, err := m.devices()
	if err != nil {
		return nil, err
	}

	adapters := make([]bletemp.Adapter, 0, len(devices))
	for _, dev := range devices {
		adapters = append(adapters, &Adapter{
			hciDevice:   dev,
			manager:     m,
			peripherals: orderedmap.New[string, *Peripheral](),
		})
	}
	return adapters, nil
}

func newDevice(id int) (ble.Device, error) {
	return linux.NewDevice(ble.OptDeviceID(id), ble.OptDialerTimeout(bleTimeout))
}

////////////////////////////////////////////////////////////////////////////////

// Adapter denotes a single HCI controller
type Adapter struct {
	hciDevice hci.Device
	manager   *Manager

	mu          sync.Mutex
	device      ble.Device
	stopScan    context.CancelFunc
	scanDone    chan error
	peripherals *orderedmap.OrderedMap[string, *Peripheral]
}

// ID returns the name of the HCI controller
func (a *Adapter) ID() string {
	return a.hciDevice.Name
}

// StartScan opens the controller (if required) and starts an unfiltered scan
// in the background
func (a *Adapter) StartScan(ctx context.Context) error {
	a.mu.Lock()
	if a.stopScan != nil {
		a.mu.Unlock()
		return nil
	}
	if a.device == nil {
		device, err := a.manager.newDevice(a.hciDevice.ID)
		if err != nil {
			a.mu.Unlock()
			return fmt.Errorf("failed to open `%s`: %w", a.hciDevice.Name, err)
		}
		a.device = device
	}

	// Duplicates are allowed so that names from scan responses are picked up
	scanCtx, cancel := context.WithCancel(context.Background())
	scanDone := make(chan error, 1)
	go func(device ble.Device) {
		scanDone <- device.Scan(scanCtx, true, a.onAdvertisement)
	}(a.device)
	a.stopScan, a.scanDone = cancel, scanDone
	a.mu.Unlock()

	// Scanning fails early if the controller rejects it
	timer := time.NewTimer(scanStartGrace)
	defer timer.Stop()

	select {
	case err := <-scanDone:
		a.resetScan()
		return err
	case <-timer.C:
		return nil
	case <-ctx.Done():
		a.resetScan()
		<-scanDone
		return ctx.Err()
	}
}

// StopScan stops an ongoing scan and waits for it to end
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	stop, done := a.stopScan, a.scanDone
	a.stopScan, a.scanDone = nil, nil
	a.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
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

// Close releases the controller
func (a *Adapter) Close() error {
	err := a.StopScan()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		err = multierr.Append(err, a.device.Stop())
		a.device = nil
	}

	return err
}

func (a *Adapter) onAdvertisement(adv ble.Advertisement) {
	address := adv.Addr().String()

	a.mu.Lock()
	defer a.mu.Unlock()

	if known, exists := a.peripherals.Get(address); exists {
		known.update(adv.LocalName(), adv.RSSI())
		return
	}

	a.manager.logger.Debugf("discovered device `%s/%s`", adv.LocalName(), address)
	a.peripherals.Set(address, &Peripheral{
		adapter: a,
		address: address,
		name:    adv.LocalName(),
		rssi:    adv.RSSI(),
	})
}

func (a *Adapter) resetScan() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopScan != nil {
		a.stopScan()
	}
	a.stopScan, a.scanDone = nil, nil
}

func (a *Adapter) bleDevice() ble.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}
