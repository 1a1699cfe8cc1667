package sim

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/fako1024/bletemp"
)

const (

	// ThermometerName is the local name advertised by the simulated thermometer
	ThermometerName = "Simulated Temperature Sensor"

	defaultSineAmplitude = 3.0
	defaultSinePeriod    = 60
)

var healthThermometerServiceUUID = bletemp.UUID16(0x1809)

// ThermometerConfig configures the simulated thermometer preset
type ThermometerConfig struct {
	AppearAfter time.Duration
	Interval    time.Duration
	BaseCelsius float64
	Fahrenheit  bool
}

// NewThermometer instantiates a single-adapter stack with a decoy peripheral
// and a thermometer notifying a sine wave around the configured base temperature
func NewThermometer(cfg ThermometerConfig) *Stack {
	return New(AdapterSpec{
		ID: "sim0",
		Peripherals: []PeripheralSpec{
			{
				Address:   "5E:00:00:00:00:01",
				LocalName: "Kitchen Speaker",
				RSSI:      -71,
			},
			{
				Address:     "5E:00:00:00:00:02",
				LocalName:   ThermometerName,
				RSSI:        -48,
				AppearAfter: cfg.AppearAfter,
				Interval:    cfg.Interval,
				Generator:   SineWave(cfg.BaseCelsius, defaultSineAmplitude, defaultSinePeriod, cfg.Fahrenheit),
			},
		},
	})
}

// SineWave returns a Generator oscillating around base (degrees Celsius)
// with the given amplitude, completing one cycle every period notifications
func SineWave(base, amplitude float64, period int, fahrenheit bool) Generator {
	if period <= 0 {
		period = defaultSinePeriod
	}
	return func(n int) []byte {
		celsius := base + amplitude*math.Sin(2*math.Pi*float64(n%period)/float64(period))
		if fahrenheit {
			return EncodeMillidegree(celsius*1.8+32, true)
		}
		return EncodeMillidegree(celsius, false)
	}
}

// EncodeMillidegree builds a temperature measurement payload carrying value
// (in the unit selected by fahrenheit) as an unsigned millidegree integer.
// Negative values cannot be represented and are clamped to zero
func EncodeMillidegree(value float64, fahrenheit bool) []byte {
	milli := math.Round(value * 1000)
	if milli < 0 {
		milli = 0
	}
	if milli > 0xffffff {
		milli = 0xffffff
	}

	return Encode(uint32(milli), fahrenheit)
}

// Encode builds a temperature measurement payload from a raw 32 bit field
func Encode(raw uint32, fahrenheit bool) []byte {
	buf := make([]byte, 5)
	if fahrenheit {
		buf[0] = 0x01
	}
	binary.LittleEndian.PutUint32(buf[1:], raw)
	return buf
}
