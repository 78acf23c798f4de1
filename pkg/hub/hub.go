// pkg/hub/hub.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/rand"
	"github.com/simhub-atc/simhub/pkg/session"
	"github.com/simhub-atc/simhub/pkg/util"
	"github.com/simhub-atc/simhub/pkg/wire"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const handshakeTimeout = time.Minute

type Config struct {
	Address        string `yaml:"address"`
	BoundariesFile string `yaml:"boundaries"`
	TopologiesDir  string `yaml:"topologies"`
	OsmPbf         string `yaml:"geos"`
}

// Hub is the connection broker: it accepts server and client sockets,
// pairs clients with their server, relays frames between them without
// parsing the payload, and serves the live-server directory plus a few
// read-only static resources.
type Hub struct {
	lg        *log.Logger
	startTime time.Time

	mu                util.LoggingMutex
	servers           map[wire.GUID]*serverRelay
	directoryModified time.Time

	static   *StaticData
	upgrader websocket.Upgrader
	addr     string
}

// serverRelay is one registered simulation server together with the
// clients currently attached to it.
type serverRelay struct {
	session *session.Session
	name    string
	clients map[wire.GUID]*session.Session
}

func New(config Config, lg *log.Logger) (*Hub, error) {
	static, err := NewStaticData(config.BoundariesFile, config.TopologiesDir, config.OsmPbf, lg)
	if err != nil {
		return nil, err
	}

	return &Hub{
		lg:                lg,
		startTime:         time.Now(),
		servers:           make(map[wire.GUID]*serverRelay),
		directoryModified: time.Now(),
		static:            static,
		upgrader:          websocket.Upgrader{EnableCompression: true},
		addr:              config.Address,
	}, nil
}

// Handler returns the hub's full HTTP surface; WebSocket upgrades happen
// on the /connect paths and everything else is JSON.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/servers", h.serversHandler)
	mux.HandleFunc("/connect", h.serverConnectHandler)
	mux.HandleFunc("/connect/", h.clientConnectHandler)
	mux.HandleFunc("/cache/servers", h.directoryTimestampHandler)
	for _, res := range staticResourceNames {
		mux.HandleFunc("/cache/"+res, h.static.timestampHandler(res))
		mux.HandleFunc("/"+res, h.static.contentHandler(res))
	}
	mux.HandleFunc("/sup", h.statsHandler)
	return mux
}

// Run serves until the context is canceled.
func (h *Hub) Run(ctx context.Context) error {
	srv := &http.Server{Addr: h.addr, Handler: h.Handler()}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		h.lg.Infof("hub listening on %s", h.addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shctx)
	})
	return eg.Wait()
}

type serverEntry struct {
	ID   wire.GUID `json:"id"`
	Name string    `json:"name"`
}

func (h *Hub) serversHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock(h.lg)
	entries := make([]serverEntry, 0, len(h.servers))
	for id, rel := range h.servers {
		entries = append(entries, serverEntry{ID: id, Name: rel.name})
	}
	h.mu.Unlock(h.lg)

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *Hub) directoryTimestampHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock(h.lg)
	t := h.directoryModified
	h.mu.Unlock(h.lg)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

func (h *Hub) serverConnectHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warnf("server upgrade: %v", err)
		return
	}
	go h.runServer(session.New(conn, h.lg))
}

// runServer performs the server handshake and then relays the server's
// frames to its clients until it disconnects.
func (h *Hub) runServer(s *session.Session) {
	if err := s.SendText([]byte(s.ID.String())); err != nil {
		s.Dispose(websocket.CloseProtocolError, "handshake send failed")
		return
	}

	ctx, cancel := context.WithTimeout(s.Context(), handshakeTimeout)
	defer cancel()
	reply, err := s.InterceptNextText(ctx)
	if err != nil {
		s.Dispose(websocket.CloseProtocolError, "no handshake reply")
		return
	}

	id, name, ok := strings.Cut(string(reply), "|")
	if !ok || id != s.ID.String() {
		h.lg.Warnf("%s: bad handshake reply %q", s.ID, reply)
		s.Dispose(websocket.CloseProtocolError, "handshake mismatch")
		return
	}
	name = strings.TrimSpace(name)
	name = util.Select(name == "", rand.AdjectiveNoun(), name)

	rel := &serverRelay{
		session: s,
		name:    name,
		clients: make(map[wire.GUID]*session.Session),
	}
	h.mu.Lock(h.lg)
	h.servers[s.ID] = rel
	h.directoryModified = time.Now()
	h.mu.Unlock(h.lg)
	h.lg.Infof("%s: server %q registered", s.ID, name)

	// Everything the server sends after the handshake fans out to all of
	// its clients; the payload is never parsed here.
	s.OnText(func(b []byte) {
		for _, c := range h.clientsOf(rel) {
			c.SendText(b)
		}
	})
	s.OnBinary(func([]byte) {
		s.Dispose(websocket.CloseInvalidFramePayloadData, "invalid-payload-data")
	})

	<-s.Done()

	h.mu.Lock(h.lg)
	delete(h.servers, s.ID)
	h.directoryModified = time.Now()
	clients := rel.clients
	rel.clients = make(map[wire.GUID]*session.Session)
	h.mu.Unlock(h.lg)

	h.lg.Infof("%s: server %q disconnected, dropping %d clients", s.ID, name, len(clients))
	for _, c := range clients {
		c.Dispose(websocket.CloseNormalClosure, "server shutdown")
	}
}

func (h *Hub) clientsOf(rel *serverRelay) []*session.Session {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)
	clients := make([]*session.Session, 0, len(rel.clients))
	for _, c := range rel.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) clientConnectHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/connect/")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warnf("client upgrade: %v", err)
		return
	}
	c := session.New(conn, h.lg)

	id, err := wire.ParseGUID(idStr)
	if err != nil {
		c.Dispose(websocket.CloseGoingAway, "unknown server")
		return
	}

	h.mu.Lock(h.lg)
	rel, ok := h.servers[id]
	if ok {
		rel.clients[c.ID] = c
	}
	h.mu.Unlock(h.lg)
	if !ok {
		c.Dispose(websocket.CloseGoingAway, "unknown server")
		return
	}
	h.lg.Debugf("%s: client attached to server %s", c.ID, id)

	// Client frames go verbatim to the server.
	c.OnText(func(b []byte) {
		rel.session.SendText(b)
	})
	// The relay protocol is text frames only.
	c.OnBinary(func([]byte) {
		c.Dispose(websocket.CloseInvalidFramePayloadData, "invalid-payload-data")
	})

	go func() {
		<-c.Done()
		h.mu.Lock(h.lg)
		delete(rel.clients, c.ID)
		h.mu.Unlock(h.lg)
	}()
}
