//go:generate stringer -type=State -trimprefix=State
package bletemp

import (
	"fmt"

	"github.com/google/uuid"
)

// State denotes a state of the acquisition pipeline
type State int

const (

	// StateInit is active before the BLE stack has been acquired
	StateInit State = iota

	// StateAdapterReady is active once the first adapter has been selected
	StateAdapterReady

	// StateScanning is active while scanning for a bluetooth device
	StateScanning

	// StateSelected is active once a matching peripheral has been found
	StateSelected

	// StateConnected is active while being connected to the peripheral
	StateConnected

	// StateDiscovered is active once the peripheral's services have been discovered
	StateDiscovered

	// StateSubscribed is active once notifications have been enabled
	StateSubscribed

	// StateStreaming is active while samples are being received
	StateStreaming

	// StateTerminated is active after the pipeline has ended (normally or due to an error)
	StateTerminated
)

// ConnectionStatus denotes the current status of the acquisition pipeline
type ConnectionStatus struct {
	Error error
	State
}

// DecodeMode selects the interpretation of the numeric measurement field
type DecodeMode int

const (

	// DecodeMillidegree treats the low 24 bits as an unsigned millidegree value
	DecodeMillidegree DecodeMode = iota

	// DecodeIEEE11073 treats the field as an IEEE-11073 32-bit FLOAT
	DecodeIEEE11073
)

// String fulfils the Stringer interface
func (m DecodeMode) String() string {
	switch m {
	case DecodeMillidegree:
		return "millidegree"
	case DecodeIEEE11073:
		return "ieee11073"
	}
	return fmt.Sprintf("DecodeMode(%d)", int(m))
}

// ParseDecodeMode parses the textual representation of a DecodeMode
func ParseDecodeMode(s string) (DecodeMode, error) {
	switch s {
	case "millidegree", "":
		return DecodeMillidegree, nil
	case "ieee11073":
		return DecodeIEEE11073, nil
	}
	return 0, fmt.Errorf("unknown decode mode `%s`", s)
}

// Properties denotes the advertised properties of a discovered peripheral
type Properties struct {
	LocalName string
	RSSI      int
}

// Characteristic denotes a GATT characteristic of a connected peripheral
type Characteristic struct {
	UUID    uuid.UUID
	Service uuid.UUID
}

// PeripheralInfo denotes identifying information about the selected peripheral
type PeripheralInfo struct {
	Address   string
	LocalName string
}

// String fulfils the Stringer interface
func (p PeripheralInfo) String() string {
	return fmt.Sprintf("%s/%s", p.LocalName, p.Address)
}
