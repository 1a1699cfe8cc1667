//go:build linux

package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/internal/hci"
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/require"
)

type fakeAdvertisement struct {
	ble.Advertisement
	name string
	addr string
	rssi int
}

func (a fakeAdvertisement) LocalName() string { return a.name }
func (a fakeAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.addr) }
func (a fakeAdvertisement) RSSI() int         { return a.rssi }

type fakeClient struct {
	ble.Client

	profile         *ble.Profile
	disconnected    chan struct{}
	once            sync.Once
	dropOnSubscribe bool

	mu      sync.Mutex
	handler ble.NotificationHandler
}

func (c *fakeClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	return c.profile, nil
}

func (c *fakeClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	if c.dropOnSubscribe {
		return c.CancelConnection()
	}
	return nil
}

func (c *fakeClient) notify(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(data)
}

func (c *fakeClient) ClearSubscriptions() error { return nil }

func (c *fakeClient) CancelConnection() error {
	c.once.Do(func() { close(c.disconnected) })
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} { return c.disconnected }

type fakeDevice struct {
	ble.Device

	advertisements []ble.Advertisement
	client         *fakeClient
	scanErr        error

	mu      sync.Mutex
	stopped bool
	dialed  string
}

func (d *fakeDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	if d.scanErr != nil {
		return d.scanErr
	}
	for _, adv := range d.advertisements {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = a.String()
	return d.client, nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func newTestManager(dev *fakeDevice) *Manager {
	return New(func(m *Manager) {
		m.devices = func() ([]hci.Device, error) {
			return []hci.Device{{ID: 0, Name: "hci0"}}, nil
		}
		m.newDevice = func(id int) (ble.Device, error) {
			return dev, nil
		}
	})
}

func thermometerProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{{
			UUID: ble.UUID16(0x1809),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.UUID16(0x2a1e)},
				{UUID: ble.UUID16(0x2a1c)},
			},
		}},
	}
}

func TestSensorOverGoBLE(t *testing.T) {
	client := &fakeClient{
		disconnected: make(chan struct{}),
		profile:      thermometerProfile(),
	}
	dev := &fakeDevice{
		client: client,
		advertisements: []ble.Advertisement{
			fakeAdvertisement{addr: "11:11:11:11:11:11", name: "Speaker", rssi: -80},
			fakeAdvertisement{addr: "22:22:22:22:22:22", name: "", rssi: -50},
			fakeAdvertisement{addr: "22:22:22:22:22:22", name: "Temperature Probe", rssi: -48},
		},
	}

	sensor, err := bletemp.New(
		bletemp.WithOpenFunc(newTestManager(dev).Open),
		bletemp.WithScanDwell(10*time.Millisecond),
	)
	require.NoError(t, err)

	states := make(chan bletemp.ConnectionStatus, 16)
	sensor.SetStateChangeChannel(states)

	samples := make(chan float32, 4)
	done := make(chan error, 1)
	go func() {
		done <- sensor.Run(context.Background(), func(v float32) error {
			samples <- v
			return nil
		}, nil)
	}()

	for st := range states {
		if st.State == bletemp.StateStreaming {
			break
		}
	}
	require.Equal(t, "22:22:22:22:22:22", dev.dialed)
	require.Equal(t, bletemp.PeripheralInfo{Address: "22:22:22:22:22:22", LocalName: "Temperature Probe"}, sensor.Peripheral())

	client.notify([]byte{0x00, 0xd0, 0x5d, 0x00, 0x00})
	require.InDelta(t, 24.016, <-samples, 1e-4)

	// Losing the link ends the stream normally
	require.NoError(t, client.CancelConnection())
	require.NoError(t, <-done)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	require.True(t, dev.stopped)
}

func TestLinkLostWhileSubscribing(t *testing.T) {
	dev := &fakeDevice{
		client: &fakeClient{
			disconnected:    make(chan struct{}),
			profile:         thermometerProfile(),
			dropOnSubscribe: true,
		},
		advertisements: []ble.Advertisement{
			fakeAdvertisement{addr: "22:22:22:22:22:22", name: "Temperature Probe", rssi: -48},
		},
	}

	sensor, err := bletemp.New(
		bletemp.WithOpenFunc(newTestManager(dev).Open),
		bletemp.WithScanDwell(10*time.Millisecond),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- sensor.Run(context.Background(), func(float32) error { return nil }, nil)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run still blocked after the link was lost (state %s)", sensor.ConnectionStatus().State)
	}
}

func TestScanRejected(t *testing.T) {
	errRejected := errors.New("command disallowed")
	adapters, err := newTestManager(&fakeDevice{scanErr: errRejected}).Adapters(context.Background())
	require.NoError(t, err)
	require.Len(t, adapters, 1)

	require.ErrorIs(t, adapters[0].StartScan(context.Background()), errRejected)
	require.NoError(t, adapters[0].StopScan())
	require.NoError(t, adapters[0].Close())
}

func TestPeripheralNotConnected(t *testing.T) {
	p := &Peripheral{adapter: &Adapter{manager: New()}, address: "33:33:33:33:33:33"}

	require.ErrorIs(t, p.Connect(context.Background()), ErrNotConnected)
	require.ErrorIs(t, p.DiscoverServices(context.Background()), ErrNotConnected)
	_, err := p.Subscribe(context.Background(), bletemp.Characteristic{})
	require.ErrorIs(t, err, ErrNotConnected)
	require.NoError(t, p.Disconnect())
}
