package bletemp

import "time"

// WithOpenFunc sets the function used to acquire the BLE stack
func WithOpenFunc(open OpenFunc) func(*Sensor) {
	return func(f *Sensor) {
		f.open = open
	}
}

// WithManager sets an already acquired BLE stack
func WithManager(manager Manager) func(*Sensor) {
	return func(f *Sensor) {
		f.manager = manager
	}
}

// WithNameMatch sets the substring a peripheral's local name must contain
func WithNameMatch(nameMatch string) func(*Sensor) {
	return func(f *Sensor) {
		f.nameMatch = nameMatch
	}
}

// WithScanDwell sets the time to accumulate advertisements before peripherals are enumerated
func WithScanDwell(dwell time.Duration) func(*Sensor) {
	return func(f *Sensor) {
		f.scanDwell = dwell
	}
}

// WithDecodeMode sets the interpretation of the measurement field
func WithDecodeMode(mode DecodeMode) func(*Sensor) {
	return func(f *Sensor) {
		f.decodeMode = mode
	}
}

// WithLogger sets a logger
func WithLogger(logger Logger) func(*Sensor) {
	return func(f *Sensor) {
		f.logger = logger
	}
}
