package bletemp

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const temperatureMeasurementAssignedNumber = 0x2a1c

var (

	// BaseUUID is the Bluetooth base UUID that 16 and 32 bit assigned numbers are expanded against
	BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

	// TemperatureMeasurementUUID is the Temperature Measurement characteristic of the Health Thermometer service
	TemperatureMeasurementUUID = UUID16(temperatureMeasurementAssignedNumber)
)

// UUID16 expands a 16 bit assigned number to its full 128 bit UUID
func UUID16(n uint16) uuid.UUID {
	return UUID32(uint32(n))
}

// UUID32 expands a 32 bit assigned number to its full 128 bit UUID
func UUID32(n uint32) uuid.UUID {
	u := BaseUUID
	binary.BigEndian.PutUint32(u[0:4], n)
	return u
}

// ParseUUID parses a UUID as reported by the various BLE stacks, i.e. short
// assigned numbers ("2a1c", "0x2A1C"), 32 hex digits without dashes or the
// canonical dashed form
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")

	switch len(s) {
	case 4:
		n, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid 16 bit UUID `%s`: %w", s, err)
		}
		return UUID16(uint16(n)), nil
	case 8:
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid 32 bit UUID `%s`: %w", s, err)
		}
		return UUID32(uint32(n)), nil
	}

	return uuid.Parse(s)
}
