// pkg/sim/server.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"context"
	"strings"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/session"
	"github.com/simhub-atc/simhub/pkg/wire"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	HubURL     string   `yaml:"hub"`
	Name       string   `yaml:"name"`
	PluginDirs []string `yaml:"plugin_dirs"`
}

// Server is one simulation process: a Sim plus its pump, attached to a
// hub over a single WebSocket session.
type Server struct {
	lg     *log.Logger
	config Config
	sim    *Sim
	pump   *Pump
}

func NewServer(config Config, lg *log.Logger) *Server {
	s := New(lg)
	return &Server{
		lg:     lg,
		config: config,
		sim:    s,
		pump:   NewPump(s, config.PluginDirs, lg),
	}
}

func (s *Server) Sim() *Sim   { return s.sim }
func (s *Server) Pump() *Pump { return s.pump }

// Run dials the hub, performs the handshake, and drives the pump until
// the context is canceled or the hub connection is lost.
func (s *Server) Run(ctx context.Context) error {
	url := strings.TrimSuffix(s.config.HubURL, "/") + "/connect"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.Body.Close()
	}

	sess := session.New(conn, s.lg)

	// The hub opens with our assigned identifier; we confirm it along
	// with our human-readable name.
	hctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	assigned, err := sess.InterceptNextText(hctx)
	if err != nil {
		sess.Dispose(websocket.CloseProtocolError, "no handshake greeting")
		return err
	}
	id, err := wire.ParseGUID(string(assigned))
	if err != nil {
		sess.Dispose(websocket.CloseProtocolError, "bad handshake greeting")
		return ErrInvalidHandshake
	}
	if err := sess.SendText([]byte(id.String() + "|" + s.config.Name)); err != nil {
		sess.Dispose(websocket.CloseProtocolError, "handshake reply failed")
		return err
	}

	s.sim.SetLink(id, sess.SendText)
	sess.OnText(func(b []byte) { s.sim.HandleRawFrame(b, time.Now()) })
	sess.OnBinary(func([]byte) {})
	s.lg.Infof("connected to hub as %s (%q)", id, s.config.Name)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := s.pump.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		select {
		case <-sess.Done():
			return ErrServerDisconnected
		case <-ctx.Done():
			sess.Dispose(websocket.CloseNormalClosure, "server shutting down")
			return nil
		}
	})
	return eg.Wait()
}
