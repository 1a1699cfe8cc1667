//go:build linux

package main

import (
	"fmt"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/gatt"
	"github.com/fako1024/bletemp/backend/goble"
	"github.com/fako1024/bletemp/backend/tinygo"
	"github.com/fako1024/bletemp/config"
)

func openFunc(cfg *config.Config, logger bletemp.Logger) (bletemp.OpenFunc, error) {
	switch cfg.Backend {
	case config.BackendGatt:
		return gatt.New(
			gatt.WithLogger(logger),
			gatt.WithConnectTimeout(cfg.ConnectTimeout),
		).Open, nil
	case config.BackendGoBLE:
		return goble.New(goble.WithLogger(logger)).Open, nil
	case config.BackendTinyGo:
		return tinygo.New(tinygo.WithLogger(logger)).Open, nil
	case config.BackendSim:
		return openSim(cfg), nil
	}
	return nil, fmt.Errorf("unsupported backend `%s`", cfg.Backend)
}
