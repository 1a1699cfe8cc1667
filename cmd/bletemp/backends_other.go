//go:build !linux

package main

import (
	"fmt"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/tinygo"
	"github.com/fako1024/bletemp/config"
)

func openFunc(cfg *config.Config, logger bletemp.Logger) (bletemp.OpenFunc, error) {
	switch cfg.Backend {
	case config.BackendTinyGo:
		return tinygo.New(tinygo.WithLogger(logger)).Open, nil
	case config.BackendSim:
		return openSim(cfg), nil
	case config.BackendGatt, config.BackendGoBLE:
		return nil, fmt.Errorf("backend `%s` is only available on linux", cfg.Backend)
	}
	return nil, fmt.Errorf("unsupported backend `%s`", cfg.Backend)
}
