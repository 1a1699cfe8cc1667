//go:build linux

package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/fako1024/bletemp"
	"github.com/go-ble/ble"
	"go.uber.org/multierr"
)

// Peripheral denotes a remote device seen in an advertisement
type Peripheral struct {
	adapter *Adapter
	address string

	mu              sync.Mutex
	name            string
	rssi            int
	client          ble.Client
	characteristics []bletemp.Characteristic
	bleChars        map[bletemp.Characteristic]*ble.Characteristic
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

// Connect dials the peripheral
func (p *Peripheral) Connect(ctx context.Context) error {
	device := p.adapter.bleDevice()
	if device == nil {
		return ErrNotConnected
	}

	client, err := device.Dial(ctx, ble.NewAddr(p.address))
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	go p.watch(client)

	return nil
}

// DiscoverServices discovers the full GATT profile of the peripheral
func (p *Peripheral) DiscoverServices(ctx context.Context) error {
	client := p.connection()
	if client == nil {
		return ErrNotConnected
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return err
	}

	var (
		characteristics []bletemp.Characteristic
		bleChars        = make(map[bletemp.Characteristic]*ble.Characteristic)
	)
	for _, s := range profile.Services {
		serviceUUID, err := bletemp.ParseUUID(s.UUID.String())
		if err != nil {
			return err
		}
		for _, c := range s.Characteristics {
			charUUID, err := bletemp.ParseUUID(c.UUID.String())
			if err != nil {
				return err
			}

			char := bletemp.Characteristic{
				UUID:    charUUID,
				Service: serviceUUID,
			}
			characteristics = append(characteristics, char)
			bleChars[char] = c
		}
	}

	p.mu.Lock()
	p.characteristics, p.bleChars = characteristics, bleChars
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
	client := p.connection()
	if client == nil {
		return nil, ErrNotConnected
	}

	p.mu.Lock()
	bleChar, exists := p.bleChars[c]
	p.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, c.UUID)
	}

	// The stream is published before notifications are enabled so that a
	// link loss during the subscription still ends it
	stream, err := p.attachStream(client)
	if err != nil {
		return nil, err
	}
	if err := client.Subscribe(bleChar, false, func(data []byte) {
		stream.Push(data)
	}); err != nil {
		p.closeStream()
		return nil, err
	}
	if p.connection() != client {
		p.closeStream()
	}

	return stream.C(), nil
}

// Disconnect clears all subscriptions and terminates the connection
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}

	err := multierr.Combine(
		client.ClearSubscriptions(),
		client.CancelConnection(),
	)
	p.closeStream()

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

// watch ends the notification stream once the link is lost
func (p *Peripheral) watch(client ble.Client) {
	<-client.Disconnected()
	p.adapter.manager.logger.Debugf("disconnected peripheral `%s`", p.address)

	p.mu.Lock()
	if p.client == client {
		p.client = nil
	}
	p.mu.Unlock()

	p.closeStream()
}

func (p *Peripheral) attachStream(client ble.Client) (*bletemp.NotificationStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != client {
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

func (p *Peripheral) connection() ble.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}
