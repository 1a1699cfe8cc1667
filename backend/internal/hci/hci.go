// Package hci enumerates the HCI bluetooth controllers known to the Linux kernel
package hci

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SysfsClass denotes the sysfs directory bluetooth controllers are registered in
const SysfsClass = "/sys/class/bluetooth"

// ErrNoSubsystem is returned if the kernel does not provide a bluetooth subsystem
var ErrNoSubsystem = errors.New("bluetooth subsystem unavailable")

// Device denotes a HCI controller
type Device struct {
	ID   int
	Name string
}

// Devices returns all HCI controllers, ordered by their index
func Devices() ([]Device, error) {
	return DevicesIn(SysfsClass)
}

// DevicesIn returns all HCI controllers registered below the given sysfs class directory
func DevicesIn(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (%s not present)", ErrNoSubsystem, dir)
		}
		return nil, err
	}

	var devices []Device
	for _, entry := range entries {
		name := entry.Name()

		// Entries like hci0:1 denote connections, not controllers
		if !strings.HasPrefix(name, "hci") || strings.Contains(name, ":") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "hci"))
		if err != nil {
			continue
		}
		devices = append(devices, Device{ID: id, Name: name})
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	return devices, nil
}
