// pkg/sim/bridge.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/util"
	"github.com/simhub-atc/simhub/pkg/wire"
)

// BridgePlugin runs an external process and speaks line-delimited JSON
// with it over stdin/stdout. Every line is one object whose "$" field
// discriminates the variant. The child receives init, sync, tick, and pm
// messages; it may send txt, addac, and delac requests back, with addac
// answered by an acadded carrying the new identifier. A line the bridge
// cannot parse is answered with an err object rather than killing the
// child.
type BridgePlugin struct {
	path string
	lg   *log.Logger
	sim  *Sim

	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex
	enc     *json.Encoder

	stopOnce sync.Once
	done     chan struct{}
}

type bridgeMessage struct {
	Discriminator string `json:"$"`

	// init
	Name string `json:"name,omitempty"`

	// tick
	DtSeconds float64 `json:"dt,omitempty"`

	// pm / txt
	From    *wire.GUID `json:"from,omitempty"`
	To      *wire.GUID `json:"to,omitempty"`
	Message string     `json:"message,omitempty"`

	// sync / addac / acadded / delac
	Aircraft []wire.Aircraft `json:"aircraft,omitempty"`
	Add      *wire.Aircraft  `json:"ac,omitempty"`
	ID       *wire.GUID      `json:"id,omitempty"`

	// err
	Msg string `json:"msg,omitempty"`
}

func bridgePluginName(path string) string {
	return "bridge:" + filepath.Base(path)
}

func NewBridgePlugin(path string, sim *Sim, lg *log.Logger) (*BridgePlugin, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	bp := &BridgePlugin{
		path:  path,
		lg:    lg,
		sim:   sim,
		cmd:   cmd,
		stdin: stdin,
		enc:   json.NewEncoder(stdin),
		done:  make(chan struct{}),
	}

	bp.write(bridgeMessage{Discriminator: "init", Name: bp.Name()})
	go bp.readLoop(stdout)
	return bp, nil
}

func (bp *BridgePlugin) Name() string        { return bridgePluginName(bp.path) }
func (bp *BridgePlugin) Description() string { return "external process bridge for " + bp.path }
func (bp *BridgePlugin) Maintainer() string  { return "simhub" }

func (bp *BridgePlugin) Tick(dt time.Duration) {
	bp.write(bridgeMessage{Discriminator: "tick", DtSeconds: dt.Seconds()})
}

func (bp *BridgePlugin) ProcessTextMessage(sender, recipient wire.GUID, message string) {
	bp.write(bridgeMessage{Discriminator: "pm", From: &sender, To: &recipient, Message: message})
}

// Sync pushes a complete aircraft snapshot to the child.
func (bp *BridgePlugin) Sync() {
	_, aircraft := util.FlattenMap(bp.sim.Aircraft())
	bp.write(bridgeMessage{Discriminator: "sync", Aircraft: aircraft})
}

// Stop terminates the child process; it is idempotent.
func (bp *BridgePlugin) Stop() {
	bp.stopOnce.Do(func() {
		close(bp.done)
		bp.stdin.Close()
		bp.cmd.Process.Kill()
		bp.cmd.Wait()
	})
}

func (bp *BridgePlugin) write(m bridgeMessage) {
	bp.writeMu.Lock()
	defer bp.writeMu.Unlock()
	if err := bp.enc.Encode(m); err != nil {
		select {
		case <-bp.done:
		default:
			bp.lg.Warnf("%s: write: %v", bp.Name(), err)
		}
	}
}

func (bp *BridgePlugin) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var m bridgeMessage
		if err := json.Unmarshal(line, &m); err != nil {
			bp.write(bridgeMessage{Discriminator: "err", Msg: err.Error()})
			continue
		}

		switch m.Discriminator {
		case "txt":
			if m.From == nil || m.To == nil {
				bp.write(bridgeMessage{Discriminator: "err", Msg: "txt requires from and to"})
				continue
			}
			bp.sim.SendTextMessage(*m.From, *m.To, m.Message)

		case "addac":
			if m.Add == nil {
				bp.write(bridgeMessage{Discriminator: "err", Msg: "addac requires ac"})
				continue
			}
			id := bp.sim.AddAircraft(*m.Add)
			bp.write(bridgeMessage{Discriminator: "acadded", ID: &id})

		case "delac":
			if m.ID == nil {
				bp.write(bridgeMessage{Discriminator: "err", Msg: "delac requires id"})
				continue
			}
			bp.sim.RemoveAircraft(*m.ID)

		default:
			bp.write(bridgeMessage{Discriminator: "err",
				Msg: fmt.Sprintf("unknown discriminator %q", m.Discriminator)})
		}
	}

	select {
	case <-bp.done:
	default:
		bp.lg.Warnf("%s: child process closed its pipe", bp.Name())
	}
}
