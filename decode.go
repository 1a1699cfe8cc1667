package bletemp

import (
	"encoding/binary"
	"math"
)

const (
	measurementLen = 5

	flagFahrenheit = 0x01
	mantissaMask   = 0x00ffffff

	// IEEE-11073 32-bit FLOAT special values (mantissa with zero exponent)
	floatNaN      = 0x007fffff
	floatNRes     = 0x00800000
	floatPlusInf  = 0x007ffffe
	floatMinusInf = 0x00800002
	floatReserved = 0x00800001
)

// Decode extracts a temperature sample in degrees Celsius from a raw
// Temperature Measurement notification. Any payload not exactly five bytes
// long yields no sample
func Decode(data []byte, mode DecodeMode) (float32, bool) {
	_, value, ok := parseTemperatureData(data, mode)
	return value, ok
}

// parseTemperatureData returns the raw numeric field alongside the decoded
// value in degrees Celsius
func parseTemperatureData(data []byte, mode DecodeMode) (uint32, float32, bool) {
	if len(data) != measurementLen {
		return 0, 0, false
	}

	raw := binary.LittleEndian.Uint32(data[1:])

	var value float32
	switch mode {
	case DecodeIEEE11073:
		v, ok := ieee11073ToFloat(raw)
		if !ok {
			return raw, 0, false
		}
		value = v
	default:
		raw &= mantissaMask
		value = float32(raw) / 1000.0
	}

	if data[0]&flagFahrenheit != 0 {
		value = fahrenheitToCelsius(value)
	}

	return raw, value, true
}

func ieee11073ToFloat(raw uint32) (float32, bool) {
	exponent := int8(raw >> 24)
	mantissa := raw & mantissaMask

	if exponent == 0 {
		switch mantissa {
		case floatNaN, floatNRes, floatPlusInf, floatMinusInf, floatReserved:
			return 0, false
		}
	}

	// Sign-extend the 24 bit mantissa
	signed := int32(mantissa<<8) >> 8

	return float32(float64(signed) * math.Pow10(int(exponent))), true
}

func fahrenheitToCelsius(value float32) float32 {
	return (value - 32.0) / 1.8
}
