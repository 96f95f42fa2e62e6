// Package scripting hosts Lua-defined plugins on a single shared VM.
// Scripts call register_plugin at load time; each registered script becomes
// an ordinary plugin whose Run marshals the world view into Lua tables and
// collects emitted outputs. Scripts may keep VM-global state between
// invocations, so scripted plugins declare themselves Sequential and the
// executor runs them in invocation order after the parallel fan-out; the
// mutex only guards against concurrent misuse from outside the tick loop.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

func vmathPoint(x, y lua.LNumber) vmath.Vec2 { return vmath.New(float64(x), float64(y)) }

// Engine wraps a single gopher-lua VM. Scripts register plugins at load
// time; calls into the VM are serialized on mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger

	plugins []*Scripted

	// per-call state, valid only while mu is held
	cur  *view.WorldView
	pctx *plugin.Context
	outs []output.Output
}

// NewEngine creates the VM, installs the plugin API, and loads every .lua
// file in the directory in name order. Load order is part of registration
// order and must be stable across runs.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.installAPI()

	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the VM.
func (e *Engine) Close() { e.vm.Close() }

// Plugins returns the scripted plugins in registration order.
func (e *Engine) Plugins() []plugin.Plugin {
	ps := make([]plugin.Plugin, len(e.plugins))
	for i, p := range e.plugins {
		ps[i] = p
	}
	return ps
}

// loadDir runs every .lua file in the directory, sorted by name.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Scripted is one Lua-defined plugin.
type Scripted struct {
	engine *Engine
	decl   plugin.Declaration
	run    *lua.LFunction
}

func (s *Scripted) Declaration() *plugin.Declaration { return &s.decl }

// Run marshals the invocation into the VM. A script error drops this
// invocation's outputs and logs; it never fails the tick.
func (s *Scripted) Run(ctx *plugin.Context, w *view.WorldView) []output.Output {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cur, e.pctx, e.outs = w, ctx, nil
	defer func() { e.cur, e.pctx, e.outs = nil, nil, nil }()

	t := e.vm.NewTable()
	t.RawSetString("entity", lua.LNumber(ctx.Entity))
	t.RawSetString("tick", lua.LNumber(ctx.Tick))

	if err := e.vm.CallByParam(lua.P{
		Fn:      s.run,
		NRet:    0,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua plugin error",
			zap.String("plugin", string(s.decl.ID)), zap.Error(err))
		return nil
	}
	return e.outs
}

// installAPI registers register_plugin plus the world and emit tables.
func (e *Engine) installAPI() {
	e.vm.SetGlobal("register_plugin", e.vm.NewFunction(e.luaRegisterPlugin))

	world := e.vm.NewTable()
	world.RawSetString("position", e.vm.NewFunction(e.luaPosition))
	world.RawSetString("velocity", e.vm.NewFunction(e.luaVelocity))
	world.RawSetString("hp", e.vm.NewFunction(e.luaHP))
	world.RawSetString("query_radius", e.vm.NewFunction(e.luaQueryRadius))
	world.RawSetString("rand", e.vm.NewFunction(e.luaRand))
	e.vm.SetGlobal("world", world)

	emit := e.vm.NewTable()
	emit.RawSetString("set_velocity", e.vm.NewFunction(e.luaSetVelocity))
	emit.RawSetString("set_heading", e.vm.NewFunction(e.luaSetHeading))
	emit.RawSetString("apply_damage", e.vm.NewFunction(e.luaApplyDamage))
	emit.RawSetString("apply_healing", e.vm.NewFunction(e.luaApplyHealing))
	emit.RawSetString("fire_weapon", e.vm.NewFunction(e.luaFireWeapon))
	emit.RawSetString("claim", e.vm.NewFunction(e.luaClaim))
	e.vm.SetGlobal("emit", emit)
}

// luaRegisterPlugin handles register_plugin{id=, tags=, reads=, emits=, run=}.
func (e *Engine) luaRegisterPlugin(L *lua.LState) int {
	t := L.CheckTable(1)

	id := lStr(t.RawGetString("id"))
	if id == "" {
		L.RaiseError("register_plugin: missing id")
		return 0
	}
	run, ok := t.RawGetString("run").(*lua.LFunction)
	if !ok {
		L.RaiseError("register_plugin %s: run is not a function", id)
		return 0
	}

	decl := plugin.Declaration{ID: output.PluginID(id), Sequential: true}
	var perr error
	eachString(t.RawGetString("tags"), func(s string) {
		tag, err := entity.ParseTag(s)
		if err != nil {
			perr = err
			return
		}
		decl.Tags = append(decl.Tags, tag)
	})
	eachString(t.RawGetString("reads"), func(s string) {
		kind, err := parseComponentKind(s)
		if err != nil {
			perr = err
			return
		}
		decl.Reads = append(decl.Reads, kind)
	})
	eachString(t.RawGetString("emits"), func(s string) {
		kind, err := parseOutputKind(s)
		if err != nil {
			perr = err
			return
		}
		decl.Emits = append(decl.Emits, kind)
	})
	if perr != nil {
		L.RaiseError("register_plugin %s: %v", id, perr)
		return 0
	}

	e.plugins = append(e.plugins, &Scripted{engine: e, decl: decl, run: run})
	e.log.Info("registered lua plugin", zap.String("plugin", id))
	return 0
}

func (e *Engine) luaPosition(L *lua.LState) int {
	tf := e.cur.Transform(entity.ID(L.CheckNumber(1)))
	if tf == nil {
		return 0
	}
	L.Push(lua.LNumber(tf.Position.X))
	L.Push(lua.LNumber(tf.Position.Y))
	return 2
}

func (e *Engine) luaVelocity(L *lua.LState) int {
	ph := e.cur.Physics(entity.ID(L.CheckNumber(1)))
	if ph == nil {
		return 0
	}
	L.Push(lua.LNumber(ph.Velocity.X))
	L.Push(lua.LNumber(ph.Velocity.Y))
	return 2
}

func (e *Engine) luaHP(L *lua.LState) int {
	cb := e.cur.Combat(entity.ID(L.CheckNumber(1)))
	if cb == nil {
		return 0
	}
	L.Push(lua.LNumber(cb.HP))
	L.Push(lua.LNumber(cb.MaxHP))
	return 2
}

func (e *Engine) luaQueryRadius(L *lua.LState) int {
	center := vmathPoint(L.CheckNumber(1), L.CheckNumber(2))
	ids := e.cur.QueryRadius(center, float64(L.CheckNumber(3)))
	t := L.NewTable()
	for i, id := range ids {
		t.RawSetInt(i+1, lua.LNumber(id))
	}
	L.Push(t)
	return 1
}

func (e *Engine) luaRand(L *lua.LState) int {
	L.Push(lua.LNumber(e.pctx.RNG.Float64()))
	return 1
}

func (e *Engine) luaSetVelocity(L *lua.LState) int {
	e.outs = append(e.outs, output.SetVelocity{
		Target:   entity.ID(L.CheckNumber(1)),
		Velocity: vmathPoint(L.CheckNumber(2), L.CheckNumber(3)),
	})
	return 0
}

func (e *Engine) luaSetHeading(L *lua.LState) int {
	e.outs = append(e.outs, output.SetHeading{
		Target:  entity.ID(L.CheckNumber(1)),
		Heading: float64(L.CheckNumber(2)),
	})
	return 0
}

func (e *Engine) luaApplyDamage(L *lua.LState) int {
	e.outs = append(e.outs, output.ApplyDamage{
		Target: entity.ID(L.CheckNumber(1)),
		Amount: float64(L.CheckNumber(2)),
	})
	return 0
}

func (e *Engine) luaApplyHealing(L *lua.LState) int {
	e.outs = append(e.outs, output.ApplyHealing{
		Target: entity.ID(L.CheckNumber(1)),
		Amount: float64(L.CheckNumber(2)),
	})
	return 0
}

func (e *Engine) luaFireWeapon(L *lua.LState) int {
	e.outs = append(e.outs, output.FireWeapon{
		Source: entity.ID(L.CheckNumber(1)),
		Target: entity.ID(L.CheckNumber(2)),
		Slot:   int(L.CheckNumber(3)),
	})
	return 0
}

func (e *Engine) luaClaim(L *lua.LState) int {
	e.outs = append(e.outs, output.ClaimResource{
		Resource: L.CheckString(1),
		Holder:   entity.ID(L.CheckNumber(2)),
	})
	return 0
}

func lStr(v lua.LValue) string {
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

func eachString(v lua.LValue, fn func(string)) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return
	}
	n := t.Len()
	for i := 1; i <= n; i++ {
		if s, ok := t.RawGetInt(i).(lua.LString); ok {
			fn(string(s))
		}
	}
}

func parseComponentKind(s string) (entity.ComponentKind, error) {
	for _, k := range entity.AllComponentKinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown component kind %q", s)
}

func parseOutputKind(s string) (output.Kind, error) {
	switch s {
	case "command":
		return output.KindCommand, nil
	case "modifier":
		return output.KindModifier, nil
	case "event":
		return output.KindEvent, nil
	case "reservation":
		return output.KindReservation, nil
	default:
		return 0, fmt.Errorf("unknown output kind %q", s)
	}
}
