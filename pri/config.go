// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package pri implements the controller and event pump of spec.md §4.5:
// per-D-channel configuration, the link collection, the NFAS
// master/slave chain, and the bridge between Q.921 and the external
// Q.931 collaborator.
package pri

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/hhorai/libpri/q921"
)

// SwitchType is the stable integer enumeration of spec.md §6.
type SwitchType int

const (
	SwitchUnknown SwitchType = iota
	SwitchNI1
	SwitchNI2
	SwitchDMS100
	SwitchLucent5E
	SwitchATT4ESS
	SwitchEuroISDNE1
	SwitchEuroISDNT1
	SwitchQSIG
	SwitchGR303EOC
	SwitchGR303TMC
)

// Config is a D-channel controller's configuration (spec.md §3
// "Controller"). It is loadable from JSON exactly as the teacher's
// UE/GNB configs are (NewNAS, NewGNB in the retrieval pack), and
// validated with struct tags before construction — a seam the teacher's
// bare json.Unmarshal lacked.
type Config struct {
	SwitchType SwitchType `json:"switchtype" validate:"gte=0,lte=10"`
	Network    bool       `json:"network"`
	BRI        bool       `json:"bri"`
	PTP        bool       `json:"ptp"`

	T200ms int `json:"t200_ms" validate:"omitempty,gt=0"`
	T201ms int `json:"t201_ms" validate:"omitempty,gt=0"`
	T202ms int `json:"t202_ms" validate:"omitempty,gt=0"`
	T203ms int `json:"t203_ms" validate:"omitempty,gt=0"`
	N200   int `json:"n200" validate:"omitempty,gt=0"`
	N202   int `json:"n202" validate:"omitempty,gt=0"`
	K      int `json:"k" validate:"omitempty,gt=0"`

	Persistence string `json:"l2_persistence" validate:"omitempty,oneof=default keep-up leave-down"`

	// TimersMS carries the remaining named timers of spec.md §6 (T301,
	// T303, T305, T308..T316, the Hold/Retrieve/CC/MCID/AOC
	// supplementary-service timers) for the upper-layer collaborators;
	// the dedicated Q.921 fields above take precedence for their names.
	TimersMS map[string]int `json:"timers_ms" validate:"omitempty,dive,gt=0"`

	// Feature-enable flags (spec.md §3 "Controller").
	EnableHold            bool `json:"enable_hold"`
	EnableTransfer        bool `json:"enable_transfer"`
	EnableReroute         bool `json:"enable_reroute"`
	EnableAOC             bool `json:"enable_aoc"`
	EnableMCID            bool `json:"enable_mcid"`
	EnableCC              bool `json:"enable_cc"`
	ManualConnectAck      bool `json:"manual_connect_ack"`
	HangupFix             bool `json:"hangup_fix"`
	ServiceMessageSupport bool `json:"service_message_support"`
	OverlapDialing        bool `json:"overlap_dialing"`

	DebugMask uint32 `json:"debug_mask"`
}

var validate = validator.New()

// LoadConfig reads and validates a Config from a JSON file, mirroring
// the teacher's NewNAS(filename)/NewGNB(filename) loaders.
func LoadConfig(filename string) (cfg Config, err error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("pri: read config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("pri: parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("pri: invalid config: %w", err)
	}
	return cfg, nil
}

// TimerMS looks up a named timer value, falling back to def when the
// configuration doesn't override it.
func (c Config) TimerMS(name string, def int) int {
	if v, ok := c.TimersMS[name]; ok {
		return v
	}
	return def
}

func (c Config) persistence() q921.Persistence {
	switch c.Persistence {
	case "keep-up":
		return q921.PersistenceKeepUp
	case "leave-down":
		return q921.PersistenceLeaveDown
	default:
		return q921.PersistenceDefault
	}
}

func (c Config) timers() q921.Timers {
	t := q921.Timers{
		N200: c.N200,
		N202: c.N202,
		K:    c.K,
	}
	if c.T200ms > 0 {
		t.T200 = msDuration(c.T200ms)
	}
	if c.T201ms > 0 {
		t.T201 = msDuration(c.T201ms)
	}
	if c.T202ms > 0 {
		t.T202 = msDuration(c.T202ms)
	}
	if c.T203ms > 0 {
		t.T203 = msDuration(c.T203ms)
	}
	return t.WithDefaults()
}
