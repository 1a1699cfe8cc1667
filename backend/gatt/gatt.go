//go:build linux

// Package gatt implements a BLE central on top of github.com/fako1024/gatt,
// talking to the HCI controllers of the Linux kernel directly
package gatt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/internal/hci"
	gattlib "github.com/fako1024/gatt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/multierr"
)

const (
	defaultPowerOnTimeout = 5 * time.Second
	defaultConnectTimeout = 20 * time.Second
)

// Manager denotes the HCI based BLE stack
type Manager struct {
	devices        func() ([]hci.Device, error)
	powerOnTimeout time.Duration
	connectTimeout time.Duration

	logger bletemp.Logger
}

// New instantiates a new Manager, executing functional options, if any
func New(options ...func(*Manager)) *Manager {
	m := &Manager{
		devices:        hci.Devices,
		powerOnTimeout: defaultPowerOnTimeout,
		connectTimeout: defaultConnectTimeout,
		logger:         &bletemp.NullLogger{},
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

// WithConnectTimeout sets the maximum time to wait for a connection to be established
func WithConnectTimeout(timeout time.Duration) func(*Manager) {
	return func(m *Manager) {
		m.connectTimeout = timeout
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

////////////////////////////////////////////////////////////////////////////////

// Adapter denotes a single HCI controller
type Adapter struct {
	hciDevice hci.Device
	manager   *Manager

	mu          sync.Mutex
	btDevice    gattlib.Device
	scanning    bool
	peripherals *orderedmap.OrderedMap[string, *Peripheral]
}

// ID returns the name of the HCI controller
func (a *Adapter) ID() string {
	return a.hciDevice.Name
}

// StartScan opens the controller (if required) and starts an unfiltered scan
// as soon as it is powered on
func (a *Adapter) StartScan(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.btDevice != nil {
		if err := a.btDevice.Scan([]gattlib.UUID{}, false); err != nil {
			return err
		}
		a.scanning = true
		return nil
	}

	btDevice, err := gattlib.NewDevice(
		gattlib.LnxMaxConnections(1),
		gattlib.LnxDeviceID(a.hciDevice.ID, true),
	)
	if err != nil {
		return fmt.Errorf("failed to open `%s`: %w", a.hciDevice.Name, err)
	}

	// Register handlers
	btDevice.Handle(
		gattlib.AddPeripheralDiscovered(a.onPeriphDiscovered),
		gattlib.AddPeripheralConnected(a.onPeriphConnected),
		gattlib.AddPeripheralDisconnected(a.onPeriphDisconnected),
	)

	poweredOn := make(chan error, 1)
	if err := btDevice.Init(func(d gattlib.Device, s gattlib.State) {
		switch s {
		case gattlib.StatePoweredOn:
			err := d.Scan([]gattlib.UUID{}, false)
			select {
			case poweredOn <- err:
			default:
			}
		default:
			a.manager.logger.Debugf("adapter `%s` changed state to %v", a.hciDevice.Name, s)
		}
	}); err != nil {
		return fmt.Errorf("failed to initialize `%s`: %w", a.hciDevice.Name, err)
	}
	a.btDevice = btDevice

	timer := time.NewTimer(a.manager.powerOnTimeout)
	defer timer.Stop()

	select {
	case err := <-poweredOn:
		if err != nil {
			return err
		}
	case <-timer.C:
		return fmt.Errorf("adapter `%s` was not powered on within %v", a.hciDevice.Name, a.manager.powerOnTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	a.scanning = true
	return nil
}

// StopScan stops an ongoing scan
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.scanning {
		return nil
	}
	a.scanning = false
	return a.btDevice.StopScanning()
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
func (a *Adapter) Close() (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.btDevice == nil {
		return nil
	}
	if a.scanning {
		err = multierr.Append(err, a.btDevice.StopScanning())
		a.scanning = false
	}
	err = multierr.Append(err, a.btDevice.RemoveAllServices())
	a.btDevice = nil

	return
}

////////////////////////////////////////////////////////////////////////////////

func (a *Adapter) onPeriphDiscovered(p gattlib.Peripheral, adv *gattlib.Advertisement, rssi int) {
	a.manager.logger.Debugf("discovered device `%s/%s`", p.Name(), p.ID())

	a.mu.Lock()
	defer a.mu.Unlock()

	name := p.Name()
	if adv != nil && adv.LocalName != "" {
		name = adv.LocalName
	}

	if known, exists := a.peripherals.Get(p.ID()); exists {
		known.update(name, rssi)
		return
	}

	a.peripherals.Set(p.ID(), &Peripheral{
		adapter:     a,
		address:     p.ID(),
		btPeriph:    p,
		name:        name,
		rssi:        rssi,
		connectedCh: make(chan error, 1),
	})
}

func (a *Adapter) onPeriphConnected(p gattlib.Peripheral, err error) {
	periph := a.lookup(p)
	if periph == nil {
		return
	}

	a.manager.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())
	periph.connected(p, err)
}

func (a *Adapter) onPeriphDisconnected(p gattlib.Peripheral, err error) {
	periph := a.lookup(p)
	if periph == nil {
		return
	}

	a.manager.logger.Debugf("disconnected peripheral `%s/%s`: %v", p.Name(), p.ID(), err)
	periph.disconnected()
}

func (a *Adapter) lookup(p gattlib.Peripheral) *Peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()

	periph, _ := a.peripherals.Get(p.ID())
	return periph
}

func (a *Adapter) device() gattlib.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.btDevice
}
