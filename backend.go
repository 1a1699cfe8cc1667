package bletemp

import "context"

// OpenFunc acquires a handle to a platform BLE stack
type OpenFunc func(ctx context.Context) (Manager, error)

// Manager denotes a platform BLE stack
type Manager interface {

	// Adapters enumerates the local bluetooth controllers in platform order
	Adapters(ctx context.Context) ([]Adapter, error)
}

// Adapter denotes a local bluetooth controller
type Adapter interface {

	// ID returns a platform identifier of the adapter (e.g. hci0)
	ID() string

	// StartScan starts an unfiltered scan for advertising peripherals
	StartScan(ctx context.Context) error

	// StopScan stops an ongoing scan
	StopScan() error

	// Peripherals returns all peripherals discovered so far, in discovery order
	Peripherals(ctx context.Context) ([]Peripheral, error)

	// Close releases the adapter
	Close() error
}

// Peripheral denotes a discovered remote device
type Peripheral interface {

	// Address returns the platform address of the peripheral (MAC on Linux, UUID on OS X)
	Address() string

	// Properties returns the advertised properties, or nil if none are known
	Properties(ctx context.Context) (*Properties, error)

	// Connect establishes a connection to the peripheral
	Connect(ctx context.Context) error

	// DiscoverServices discovers all services and characteristics of the peripheral
	DiscoverServices(ctx context.Context) error

	// Characteristics returns the characteristics found by DiscoverServices
	Characteristics() []Characteristic

	// Subscribe enables notifications on a characteristic. The returned channel
	// is closed once the peripheral disconnects or the stack is torn down
	Subscribe(ctx context.Context, c Characteristic) (<-chan []byte, error)

	// Disconnect terminates the connection to the peripheral
	Disconnect() error
}
