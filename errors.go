package bletemp

import "errors"

var (

	// ErrNoBleStack is returned if the platform BLE subsystem is unavailable
	ErrNoBleStack = errors.New("no BLE stack available")

	// ErrNoAdapter is returned if no bluetooth adapter was found
	ErrNoAdapter = errors.New("no bluetooth adapter found")

	// ErrScanFailed is returned if scanning could not be started
	ErrScanFailed = errors.New("failed to start scanning")

	// ErrNoSensor is returned if no discovered peripheral matches the name filter
	ErrNoSensor = errors.New("no temperature sensor found")

	// ErrConnectFailed is returned if the connection to the sensor failed
	ErrConnectFailed = errors.New("failed to connect to sensor")

	// ErrDiscoverFailed is returned if service discovery failed
	ErrDiscoverFailed = errors.New("failed to discover services")

	// ErrNoCharacteristic is returned if the sensor lacks the temperature measurement characteristic
	ErrNoCharacteristic = errors.New("temperature measurement characteristic not found")

	// ErrSubscribeFailed is returned if notifications could not be enabled
	ErrSubscribeFailed = errors.New("failed to subscribe to temperature measurements")

	// ErrUIGone is returned if a decoded sample could not be handed to the consumer
	ErrUIGone = errors.New("sample consumer is gone")

	// ErrAlreadyStarted is returned if Run is called more than once on the same Sensor
	ErrAlreadyStarted = errors.New("sensor has already been started")
)
