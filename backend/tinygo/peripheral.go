package tinygo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bletemp"
	"tinygo.org/x/bluetooth"
)

// Peripheral denotes a remote device seen while scanning
type Peripheral struct {
	adapter   *Adapter
	btAddress bluetooth.Address
	address   string

	mu              sync.Mutex
	name            string
	rssi            int
	device          *bluetooth.Device
	characteristics []bletemp.Characteristic
	btChars         map[bletemp.Characteristic]bluetooth.DeviceCharacteristic
	stream          *bletemp.NotificationStream
}

// Address returns the platform address of the peripheral (MAC on Linux, UUID on OS X)
func (p *Peripheral) Address() string {
	return p.address
}

// Properties returns the properties of the latest advertisement
func (p *Peripheral) Properties(ctx context.Context) (*bletemp.Properties, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return &bletemp.Properties{
		LocalName: p.name,
		RSSI:      p.rssi,
	}, nil
}

// Connect connects to the peripheral, honoring the deadline of ctx (if any)
func (p *Peripheral) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	device, err := p.adapter.btAdapter.Connect(p.btAddress, params)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.device = &device
	p.mu.Unlock()

	return nil
}

// DiscoverServices discovers all services and their characteristics
func (p *Peripheral) DiscoverServices(ctx context.Context) error {
	device := p.connection()
	if device == nil {
		return ErrNotConnected
	}

	services, err := device.DiscoverServices(nil)
	if err != nil {
		return err
	}

	var (
		characteristics []bletemp.Characteristic
		btChars         = make(map[bletemp.Characteristic]bluetooth.DeviceCharacteristic)
	)
	for _, s := range services {
		if err := ctx.Err(); err != nil {
			return err
		}

		serviceUUID, err := bletemp.ParseUUID(s.UUID().String())
		if err != nil {
			return err
		}

		cs, err := s.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("failed to discover characteristics of service %s: %w", serviceUUID, err)
		}
		for _, c := range cs {
			charUUID, err := bletemp.ParseUUID(c.UUID().String())
			if err != nil {
				return err
			}

			char := bletemp.Characteristic{
				UUID:    charUUID,
				Service: serviceUUID,
			}
			characteristics = append(characteristics, char)
			btChars[char] = c
		}
	}

	p.mu.Lock()
	p.characteristics, p.btChars = characteristics, btChars
	p.mu.Unlock()

	return nil
}

// Characteristics returns the characteristics found by DiscoverServices
func (p *Peripheral) Characteristics() []bletemp.Characteristic {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]bletemp.Characteristic(nil), p.characteristics...)
}

// Subscribe enables notifications on the given characteristic
func (p *Peripheral) Subscribe(ctx context.Context, c bletemp.Characteristic) (<-chan []byte, error) {
	device := p.connection()
	if device == nil {
		return nil, ErrNotConnected
	}

	p.mu.Lock()
	btChar, exists := p.btChars[c]
	p.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, c.UUID)
	}

	stream, err := p.attachStream(device)
	if err != nil {
		return nil, err
	}
	if err := p.adapter.enableNotifications(btChar, func(buf []byte) {
		stream.Push(buf)
	}); err != nil {
		p.closeStream()
		return nil, err
	}

	// The link may have been lost while notifications were being enabled
	if p.connection() != device {
		p.closeStream()
	}

	return stream.C(), nil
}

// Disconnect terminates the connection to the peripheral
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	device := p.device
	p.mu.Unlock()

	if device == nil {
		return nil
	}

	err := device.Disconnect()
	p.disconnected()

	return err
}

////////////////////////////////////////////////////////////////////////////////

func (p *Peripheral) update(name string, rssi int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name != "" {
		p.name = name
	}
	p.rssi = rssi
}

func (p *Peripheral) disconnected() {
	p.mu.Lock()
	p.device = nil
	p.mu.Unlock()

	p.closeStream()
}

func (p *Peripheral) attachStream(device *bluetooth.Device) (*bletemp.NotificationStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != device {
		return nil, ErrNotConnected
	}
	if p.stream != nil {
		p.stream.Close()
	}
	p.stream = bletemp.NewNotificationStream(0)

	return p.stream, nil
}

func (p *Peripheral) closeStream() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
}

func (p *Peripheral) connection() *bluetooth.Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}
