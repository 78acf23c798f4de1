// pkg/sim/pump.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/util"
	"github.com/simhub-atc/simhub/pkg/wire"
)

const (
	pumpInterval      = 100 * time.Millisecond
	commitInterval    = time.Second
	resyncInterval    = 30 * time.Second
	discoveryInterval = 5 * time.Second
	sweepInterval     = 5 * time.Second
)

// Plugin is the capability bag the pump drives: periodic ticks plus every
// chat frame the server relays.
type Plugin interface {
	Name() string
	Description() string
	Maintainer() string
	Tick(dt time.Duration)
	ProcessTextMessage(sender, recipient wire.GUID, message string)
}

type pluginEntry struct {
	plugin Plugin
	// enabled is read off the pump's task by chat dispatch, hence atomic.
	enabled util.AtomicBool
}

type moduleInfo struct {
	path    string
	modTime time.Time
}

// Pump owns the plugin table: it instantiates registered factories via
// dependency injection, discovers loadable modules on disk, and ticks
// the planner and every enabled plugin. The table is mutated only on the
// pump's own task; the mutex covers chat dispatch arriving from the
// session monitor.
type Pump struct {
	lg  *log.Logger
	sim *Sim

	mu         sync.Mutex
	factories  []reflect.Value
	plugins    []*pluginEntry
	moduleDirs []string
	seen       map[string]moduleInfo
	lastTick   time.Time
}

func NewPump(sim *Sim, moduleDirs []string, lg *log.Logger) *Pump {
	p := &Pump{
		lg:         lg,
		sim:        sim,
		moduleDirs: moduleDirs,
		seen:       make(map[string]moduleInfo),
	}
	sim.OnTextMessage(p.ProcessTextMessage)
	return p
}

var pluginInterfaceType = reflect.TypeOf((*Plugin)(nil)).Elem()
var errorInterfaceType = reflect.TypeOf((*error)(nil)).Elem()

// RegisterFactory adds a plugin constructor. It must be a function
// returning a Plugin (optionally with an error); its parameters are
// supplied by injection when Instantiate runs: the server handle, a
// fresh aircraft snapshot, or another plugin of the parameter's type.
func (p *Pump) RegisterFactory(ctor interface{}) error {
	v := reflect.ValueOf(ctor)
	t := v.Type()
	if t.Kind() != reflect.Func || t.NumOut() < 1 || t.NumOut() > 2 {
		return ErrNotAConstructor
	}
	if !t.Out(0).Implements(pluginInterfaceType) && t.Out(0) != pluginInterfaceType {
		return ErrNotAConstructor
	}
	if t.NumOut() == 2 && !t.Out(1).Implements(errorInterfaceType) {
		return ErrNotAConstructor
	}

	p.factories = append(p.factories, v)
	return nil
}

// Instantiate resolves all registered factories in rounds: each round
// constructs every factory whose parameters can be satisfied, making its
// product available to the next round. A round with pending factories
// and no progress means a dependency can never be met.
func (p *Pump) Instantiate() error {
	remaining := p.factories
	p.factories = nil

	for len(remaining) > 0 {
		var deferred []reflect.Value
		progress := false

		for _, ctor := range remaining {
			args, ok := p.resolveArgs(ctor.Type())
			if !ok {
				deferred = append(deferred, ctor)
				continue
			}

			out := ctor.Call(args)
			if len(out) == 2 && !out[1].IsNil() {
				return out[1].Interface().(error)
			}
			plugin := out[0].Interface().(Plugin)
			if err := p.add(plugin); err != nil {
				return err
			}
			progress = true
		}

		if !progress {
			names := make([]string, len(deferred))
			for i, ctor := range deferred {
				names[i] = ctor.Type().String()
			}
			p.lg.Errorf("unsatisfiable plugin constructors: %v", names)
			return ErrMissingDependency
		}
		remaining = deferred
	}
	return nil
}

func (p *Pump) resolveArgs(t reflect.Type) ([]reflect.Value, bool) {
	args := make([]reflect.Value, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		param := t.In(i)
		switch {
		case reflect.TypeOf(p.sim).AssignableTo(param):
			args[i] = reflect.ValueOf(p.sim)
		case reflect.TypeOf(map[wire.GUID]wire.Aircraft(nil)).AssignableTo(param):
			args[i] = reflect.ValueOf(p.sim.Aircraft())
		default:
			found := false
			for _, entry := range p.plugins {
				if reflect.TypeOf(entry.plugin).AssignableTo(param) {
					args[i] = reflect.ValueOf(entry.plugin)
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
		}
	}
	return args, true
}

func (p *Pump) add(plugin Plugin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.plugins {
		if entry.plugin.Name() == plugin.Name() {
			return ErrDuplicatePlugin
		}
	}
	entry := &pluginEntry{plugin: plugin}
	entry.enabled.Store(true)
	p.plugins = append(p.plugins, entry)
	p.lg.Infof("plugin %q loaded: %s (%s)", plugin.Name(), plugin.Description(),
		plugin.Maintainer())
	p.sim.EventStream.Post(Event{Type: PluginsChangedEvent, Callsign: plugin.Name()})
	return nil
}

// Discover scans the module directories for external plugin executables.
// A module already seen with the same path and last-write time is
// skipped; a changed one is restarted.
func (p *Pump) Discover() {
	for _, dir := range p.moduleDirs {
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil || info.Mode()&0o111 == 0 {
				return nil
			}

			if prev, ok := p.seen[path]; ok && prev.modTime.Equal(info.ModTime()) {
				return nil
			}
			p.seen[path] = moduleInfo{path: path, modTime: info.ModTime()}

			p.reload(path)
			return nil
		})
	}
}

func (p *Pump) reload(path string) {
	name := bridgePluginName(path)
	p.mu.Lock()
	for i, entry := range p.plugins {
		if entry.plugin.Name() == name {
			if bp, ok := entry.plugin.(*BridgePlugin); ok {
				bp.Stop()
			}
			p.plugins = util.DeleteSliceElement(p.plugins, i)
			break
		}
	}
	p.mu.Unlock()

	bp, err := NewBridgePlugin(path, p.sim, p.lg)
	if err != nil {
		p.lg.Errorf("%s: %v", path, err)
		return
	}
	if err := p.add(bp); err != nil {
		p.lg.Errorf("%s: %v", path, err)
		bp.Stop()
	}
}

// Tick advances the planner and every enabled plugin by the elapsed
// wall-clock time since the previous tick.
func (p *Pump) Tick(now time.Time) {
	if p.lastTick.IsZero() {
		p.lastTick = now
		return
	}
	dt := now.Sub(p.lastTick)
	p.lastTick = now

	p.sim.Planner().Tick(dt)
	for _, entry := range p.snapshot() {
		if entry.enabled.Load() {
			entry.plugin.Tick(dt)
		}
	}
}

func (p *Pump) snapshot() []*pluginEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pluginEntry(nil), p.plugins...)
}

// ProcessTextMessage fans a chat frame out to every enabled plugin.
func (p *Pump) ProcessTextMessage(sender, recipient wire.GUID, message string) {
	for _, entry := range p.snapshot() {
		if entry.enabled.Load() {
			entry.plugin.ProcessTextMessage(sender, recipient, message)
		}
	}
}

// SyncBridges pushes a fresh snapshot to every external-process plugin.
func (p *Pump) SyncBridges() {
	for _, entry := range p.snapshot() {
		if bp, ok := entry.plugin.(*BridgePlugin); ok && entry.enabled.Load() {
			bp.Sync()
		}
	}
}

func (p *Pump) SetEnabled(name string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.plugins {
		if entry.plugin.Name() == name {
			entry.enabled.Store(enabled)
			p.sim.EventStream.Post(Event{Type: PluginsChangedEvent, Callsign: name})
			return nil
		}
	}
	return ErrPluginNotFound
}

type PluginStatus struct {
	Name        string
	Description string
	Maintainer  string
	Enabled     bool
}

func (p *Pump) Plugins() []PluginStatus {
	status := util.MapSlice(p.snapshot(), func(entry *pluginEntry) PluginStatus {
		return PluginStatus{
			Name:        entry.plugin.Name(),
			Description: entry.plugin.Description(),
			Maintainer:  entry.plugin.Maintainer(),
			Enabled:     entry.enabled.Load(),
		}
	})
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// Run drives the pump's tickers until the context is canceled. All
// plugin-table access happens on this task.
func (p *Pump) Run(ctx context.Context) error {
	if err := p.Instantiate(); err != nil {
		return fmt.Errorf("plugin instantiation: %w", err)
	}
	p.Discover()

	// Drain lifecycle events into the log so the server's history is
	// reconstructible from its log file alone.
	events := p.sim.EventStream.Subscribe()

	tick := time.NewTicker(pumpInterval)
	defer tick.Stop()
	commit := time.NewTicker(commitInterval)
	defer commit.Stop()
	resync := time.NewTicker(resyncInterval)
	defer resync.Stop()
	discover := time.NewTicker(discoveryInterval)
	defer discover.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopBridges()
			events.Unsubscribe()
			p.sim.EventStream.Destroy()
			return ctx.Err()
		case now := <-tick.C:
			p.Tick(now)
		case now := <-commit.C:
			p.sim.CommitAndPublish(now)
			for _, ev := range events.Get() {
				p.lg.Info("event", slog.Any("event", ev))
			}
		case <-resync.C:
			p.sim.Resync()
			p.SyncBridges()
		case <-discover.C:
			p.Discover()
		case now := <-sweep.C:
			p.sim.SweepStaleControllers(now)
		}
	}
}

func (p *Pump) stopBridges() {
	for _, entry := range p.snapshot() {
		if bp, ok := entry.plugin.(*BridgePlugin); ok {
			bp.Stop()
		}
	}
}
