//go:build linux

package gatt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/bletemp"
	gattlib "github.com/fako1024/gatt"
)

var (

	// ErrNotConnected is returned by operations that require a connection
	ErrNotConnected = errors.New("peripheral not connected")

	// ErrUnknownCharacteristic is returned when subscribing to a characteristic
	// that was not discovered on the peripheral
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
)

// Peripheral denotes a remote device discovered by an HCI controller
type Peripheral struct {
	adapter  *Adapter
	address  string
	btPeriph gattlib.Peripheral

	mu              sync.Mutex
	name            string
	rssi            int
	connectedCh     chan error
	conn            gattlib.Peripheral
	characteristics []bletemp.Characteristic
	btChars         map[bletemp.Characteristic]*gattlib.Characteristic
	stream          *bletemp.NotificationStream
}

// Address returns the MAC address of the peripheral
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

// Connect connects to the peripheral and waits for the connection to be established
func (p *Peripheral) Connect(ctx context.Context) error {
	btDevice := p.adapter.device()
	if btDevice == nil {
		return ErrNotConnected
	}

	if err := btDevice.Connect(p.btPeriph); err != nil {
		return err
	}

	timer := time.NewTimer(p.adapter.manager.connectTimeout)
	defer timer.Stop()

	select {
	case err := <-p.connectedCh:
		return err
	case <-timer.C:
		btDevice.CancelConnection(p.btPeriph)
		return fmt.Errorf("no connection to `%s` within %v", p.Address(), p.adapter.manager.connectTimeout)
	case <-ctx.Done():
		btDevice.CancelConnection(p.btPeriph)
		return ctx.Err()
	}
}

// DiscoverServices discovers all services and their characteristics
func (p *Peripheral) DiscoverServices(ctx context.Context) error {
	conn := p.connection()
	if conn == nil {
		return ErrNotConnected
	}

	ss, err := conn.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}

	var (
		characteristics []bletemp.Characteristic
		btChars         = make(map[bletemp.Characteristic]*gattlib.Characteristic)
	)
	for _, s := range ss {
		if err := ctx.Err(); err != nil {
			return err
		}

		serviceUUID, err := bletemp.ParseUUID(s.UUID().String())
		if err != nil {
			return err
		}

		cs, err := conn.DiscoverCharacteristics(nil, s)
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
	conn := p.connection()
	if conn == nil {
		return nil, ErrNotConnected
	}

	p.mu.Lock()
	btChar, exists := p.btChars[c]
	p.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, c.UUID)
	}

	// The client characteristic configuration descriptor is required to enable notifications
	if _, err := conn.DiscoverDescriptors(nil, btChar); err != nil {
		return nil, fmt.Errorf("failed to discover descriptors: %w", err)
	}

	stream, err := p.attachStream(conn)
	if err != nil {
		return nil, err
	}
	if err := conn.SetNotifyValue(btChar, func(_ *gattlib.Characteristic, data []byte, err error) {
		if err != nil {
			p.adapter.manager.logger.Debugf("notification error on `%s`: %s", p.Address(), err)
			return
		}
		stream.Push(data)
	}); err != nil {
		p.closeStream()
		return nil, err
	}

	// The link may have been lost while notifications were being enabled
	if p.connection() != conn {
		p.closeStream()
	}

	return stream.C(), nil
}

// Disconnect terminates the connection to the peripheral
func (p *Peripheral) Disconnect() error {
	conn := p.connection()
	if conn == nil {
		return nil
	}

	if btDevice := p.adapter.device(); btDevice != nil {
		btDevice.CancelConnection(conn)
	}
	p.disconnected()

	return nil
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

func (p *Peripheral) connected(conn gattlib.Peripheral, err error) {
	if err == nil {
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
	}

	select {
	case p.connectedCh <- err:
	default:
	}
}

func (p *Peripheral) disconnected() {
	p.mu.Lock()
	p.conn = nil
	p.mu.Unlock()

	p.closeStream()
}

func (p *Peripheral) attachStream(conn gattlib.Peripheral) (*bletemp.NotificationStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != conn {
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

func (p *Peripheral) connection() gattlib.Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}
