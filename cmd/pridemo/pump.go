// Copyright 2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package main

import (
	"encoding/hex"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hhorai/libpri/pri"
	"github.com/hhorai/libpri/q921"
	"github.com/hhorai/libpri/q931bridge"
)

func loadConfig(network bool) (pri.Config, error) {
	if configFile != "" {
		return pri.LoadConfig(configFile)
	}
	return pri.Config{
		SwitchType: pri.SwitchEuroISDNE1,
		Network:    network,
		PTP:        true,
	}, nil
}

// setupPayload is a minimal Q.931 SETUP-shaped blob (protocol
// discriminator 0x08, call reference 1, message type SETUP) the dial
// side pushes once layer 2 comes up, just to watch an I-frame cross.
var setupPayload = []byte{0x08, 0x01, 0x01, 0x05}

// pump is the externally-owned thread of spec.md §5: it alternates
// between feeding received frames into Ingress and running expired
// timers, sleeping until the next deadline in between.
func pump(log *logrus.Entry, conn net.Conn, cfg pri.Config) error {
	ctrl := pri.NewController(cfg, log)
	d := &driver{conn: conn}
	ctrl.Write = d.WriteFrame
	ctrl.Deliver = func(f q931bridge.Frame) {
		log.WithFields(logrus.Fields{
			"sapi": f.SAPI, "tei": f.TEI, "payload": hex.EncodeToString(f.Payload),
		}).Info("q931 frame delivered")
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := d.ReadFrame()
			if err != nil {
				readErr <- err
				return
			}
			frames <- f
		}
	}()

	ctrl.Start(time.Now())
	if !cfg.Network {
		if err := ctrl.SendQ931(time.Now(), q921.SAPICallControl, q921.TEIPRI, setupPayload); err != nil {
			return err
		}
	}

	for {
		timeout := time.Hour
		if when, ok := ctrl.NextDeadline(); ok {
			if until := time.Until(when); until < timeout {
				timeout = until
			}
			if timeout < 0 {
				timeout = 0
			}
		}

		select {
		case frame := <-frames:
			if ev, ok := ctrl.Ingress(time.Now(), frame); ok {
				handleEvent(log, ctrl, ev)
			}
		case err := <-readErr:
			return err
		case <-time.After(timeout):
			for {
				ev, ok := ctrl.RunReady(time.Now())
				if !ok {
					break
				}
				handleEvent(log, ctrl, ev)
			}
		}
	}
}

func handleEvent(log *logrus.Entry, ctrl *pri.Controller, ev *q931bridge.Event) {
	log.WithFields(logrus.Fields{"sapi": ev.SAPI, "tei": ev.TEI}).Info(ev.Kind.String())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the network side of the D-channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			defer ln.Close()
			log.WithField("addr", addr).Info("listening for D-channel peer")
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			defer conn.Close()
			return pump(log, conn, cfg)
		},
	}
}

func dialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dial",
		Short: "run the CPE side of the D-channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return err
			}
			defer conn.Close()
			return pump(log, conn, cfg)
		},
	}
}
