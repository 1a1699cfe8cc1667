// Package sim provides an in-process BLE stack with scripted thermometer
// peripherals. Peripherals only become visible once scanning has been
// running for their configured delay.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotConnected is returned by operations that require a connected peripheral
var ErrNotConnected = errors.New("peripheral not connected")

// Generator produces the payload of the n-th synthetic notification
type Generator func(n int) []byte

// PeripheralSpec describes a simulated peripheral
type PeripheralSpec struct {
	Address      string
	LocalName    string
	RSSI         int
	NoProperties bool

	// AppearAfter denotes how long scanning must run before the peripheral is discovered
	AppearAfter time.Duration

	// Characteristics defaults to the temperature measurement characteristic if nil
	Characteristics []uuid.UUID

	// Payloads are notified in order, then the stream ends unless a Generator is set
	Payloads  [][]byte
	Generator Generator
	Interval  time.Duration

	ConnectErr   error
	DiscoverErr  error
	SubscribeErr error
}

// AdapterSpec describes a simulated adapter
type AdapterSpec struct {
	ID          string
	ScanErr     error
	Peripherals []PeripheralSpec
}

// Stack denotes a simulated BLE stack
type Stack struct {
	adapters    []*Adapter
	adaptersErr error
}

// New instantiates a simulated BLE stack with the given adapters
func New(adapters ...AdapterSpec) *Stack {
	s := &Stack{}
	for i, spec := range adapters {
		if spec.ID == "" {
			spec.ID = fmt.Sprintf("sim%d", i)
		}
		a := &Adapter{
			spec:        spec,
			peripherals: orderedmap.New[string, *Peripheral](),
		}
		for j, ps := range spec.Peripherals {
			if ps.Address == "" {
				ps.Address = fmt.Sprintf("00:00:00:00:%02X:%02X", i, j)
			}
			if ps.Characteristics == nil {
				ps.Characteristics = []uuid.UUID{bletemp.TemperatureMeasurementUUID}
			}
			a.peripherals.Set(ps.Address, &Peripheral{spec: ps})
		}
		s.adapters = append(s.adapters, a)
	}
	return s
}

// WithAdaptersError makes the enumeration of adapters fail
func (s *Stack) WithAdaptersError(err error) *Stack {
	s.adaptersErr = err
	return s
}

// Open fulfils the bletemp.OpenFunc signature
func (s *Stack) Open(ctx context.Context) (bletemp.Manager, error) {
	return s, ctx.Err()
}

// Adapters returns all simulated adapters
func (s *Stack) Adapters(ctx context.Context) ([]bletemp.Adapter, error) {
	if s.adaptersErr != nil {
		return nil, s.adaptersErr
	}

	adapters := make([]bletemp.Adapter, 0, len(s.adapters))
	for _, a := range s.adapters {
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// Adapter returns the i-th simulated adapter
func (s *Stack) Adapter(i int) *Adapter {
	return s.adapters[i]
}

////////////////////////////////////////////////////////////////////////////////

// Adapter denotes a simulated bluetooth controller
type Adapter struct {
	spec        AdapterSpec
	peripherals *orderedmap.OrderedMap[string, *Peripheral]

	mu          sync.Mutex
	scanStarted time.Time
	scanStopped time.Time
	scanning    bool
	scans       int
	closed      bool
}

// ID returns the adapter identifier
func (a *Adapter) ID() string {
	return a.spec.ID
}

// StartScan starts a simulated scan
func (a *Adapter) StartScan(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.spec.ScanErr != nil {
		return a.spec.ScanErr
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanStarted = time.Now()
	a.scanning = true
	a.scans++
	return nil
}

// StopScan stops a simulated scan
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanning {
		a.scanStopped = time.Now()
		a.scanning = false
	}
	return nil
}

// Peripherals returns all peripherals that appeared while scanning, in configuration order
func (a *Adapter) Peripherals(ctx context.Context) ([]bletemp.Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.scans == 0 {
		return nil, nil
	}
	elapsed := a.scanStopped.Sub(a.scanStarted)
	if a.scanning {
		elapsed = time.Since(a.scanStarted)
	}

	var res []bletemp.Peripheral
	for pair := a.peripherals.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.spec.AppearAfter <= elapsed {
			res = append(res, pair.Value)
		}
	}
	return res, nil
}

// Close releases the adapter
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Scans returns how often scanning was started on the adapter
func (a *Adapter) Scans() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans
}

// Scanning returns whether a scan is in progress
func (a *Adapter) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanning
}

// Closed returns whether the adapter was released
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Peripheral returns the simulated peripheral with the given address
func (a *Adapter) Peripheral(address string) *Peripheral {
	p, _ := a.peripherals.Get(address)
	return p
}

////////////////////////////////////////////////////////////////////////////////

// Peripheral denotes a simulated thermometer
type Peripheral struct {
	spec PeripheralSpec

	mu           sync.Mutex
	connected    bool
	discovered   bool
	subscribed   bool
	disconnects  int
	stream       *bletemp.NotificationStream
	disconnectCh chan struct{}
}

// Address returns the peripheral address
func (p *Peripheral) Address() string {
	return p.spec.Address
}

// Properties returns the advertised properties
func (p *Peripheral) Properties(ctx context.Context) (*bletemp.Properties, error) {
	if p.spec.NoProperties {
		return nil, nil
	}
	return &bletemp.Properties{
		LocalName: p.spec.LocalName,
		RSSI:      p.spec.RSSI,
	}, nil
}

// Connect connects to the simulated peripheral
func (p *Peripheral) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.spec.ConnectErr != nil {
		return p.spec.ConnectErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	p.disconnectCh = make(chan struct{})
	return nil
}

// DiscoverServices discovers the simulated characteristics
func (p *Peripheral) DiscoverServices(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	if p.spec.DiscoverErr != nil {
		return p.spec.DiscoverErr
	}
	p.discovered = true
	return nil
}

// Characteristics returns the discovered characteristics
func (p *Peripheral) Characteristics() []bletemp.Characteristic {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.discovered {
		return nil
	}

	res := make([]bletemp.Characteristic, 0, len(p.spec.Characteristics))
	for _, u := range p.spec.Characteristics {
		res = append(res, bletemp.Characteristic{
			UUID:    u,
			Service: healthThermometerServiceUUID,
		})
	}
	return res
}

// Subscribe starts delivering the scripted notifications
func (p *Peripheral) Subscribe(ctx context.Context, c bletemp.Characteristic) (<-chan []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.spec.SubscribeErr != nil {
		return nil, p.spec.SubscribeErr
	}

	p.subscribed = true
	p.stream = bletemp.NewNotificationStream(len(p.spec.Payloads) + 1)
	go p.notify(ctx, p.stream, p.disconnectCh)

	return p.stream.C(), nil
}

// Disconnect terminates the simulated connection
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}
	p.connected = false
	p.disconnects++
	close(p.disconnectCh)
	if p.stream != nil {
		p.stream.Close()
	}
	return nil
}

// Connected returns whether the peripheral is connected
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Subscribed returns whether notifications were enabled
func (p *Peripheral) Subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribed
}

// Disconnects returns how often the peripheral was disconnected
func (p *Peripheral) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

func (p *Peripheral) notify(ctx context.Context, stream *bletemp.NotificationStream, disconnected <-chan struct{}) {
	wait := func() bool {
		if p.spec.Interval <= 0 {
			return true
		}
		timer := time.NewTimer(p.spec.Interval)
		defer timer.Stop()
		select {
		case <-timer.C:
			return true
		case <-disconnected:
		case <-ctx.Done():
		}
		return false
	}

	for _, payload := range p.spec.Payloads {
		if !wait() || !stream.Push(payload) {
			return
		}
	}

	if p.spec.Generator == nil {

		// The peripheral goes away once the script is exhausted
		stream.Close()
		return
	}

	for n := 0; ; n++ {
		if !wait() || !stream.Push(p.spec.Generator(n)) {
			return
		}
	}
}
