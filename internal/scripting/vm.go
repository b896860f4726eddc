package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 1 * time.Second
	maxScriptLogs     = 500
)

var errScriptTimeout = errors.New("script timed out")

// globals scripts must not reach
var blockedGlobals = []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"}

// LogEntry is one line written by log() or console.log().
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM is a sandboxed goja runtime holding one strategy script. Calls are
// serialized; a call that runs past its budget is interrupted.
type VM struct {
	mu sync.Mutex
	rt *goja.Runtime

	stop       bool
	resetStats bool

	logMu sync.Mutex
	logs  []LogEntry
}

// NewVM creates a runtime with the host functions and constants installed.
func NewVM() *VM {
	vm := &VM{rt: goja.New()}
	vm.installHost()
	injectConstants(vm.rt)
	for _, name := range blockedGlobals {
		vm.rt.Set(name, goja.Undefined())
	}
	return vm
}

func (vm *VM) installHost() {
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	}
	vm.rt.Set("log", logFn)
	console := vm.rt.NewObject()
	console.Set("log", logFn)
	vm.rt.Set("console", console)

	vm.rt.Set("stop", func(goja.FunctionCall) goja.Value {
		vm.stop = true
		vm.rt.Set("running", false)
		return goja.Undefined()
	})
	// sleep(ms) delays the next round
	vm.rt.Set("sleep", func(call goja.FunctionCall) goja.Value {
		vm.rt.Set("sleeptime", call.Argument(0).ToInteger())
		return goja.Undefined()
	})
	vm.rt.Set("resetstats", func(goja.FunctionCall) goja.Value {
		vm.resetStats = true
		return goja.Undefined()
	})
}

func (vm *VM) appendLog(msg string) {
	vm.logMu.Lock()
	defer vm.logMu.Unlock()
	if len(vm.logs) == maxScriptLogs {
		copy(vm.logs, vm.logs[1:])
		vm.logs = vm.logs[:maxScriptLogs-1]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// guarded runs fn on the calling goroutine with the runtime locked and
// interrupts it once budget elapses.
func (vm *VM) guarded(budget time.Duration, fn func(rt *goja.Runtime) error) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	timer := time.AfterFunc(budget, func() { vm.rt.Interrupt(errScriptTimeout) })
	err := fn(vm.rt)
	timer.Stop()
	vm.rt.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w after %s", errScriptTimeout, budget)
	}
	return err
}

// Execute runs the script body once so it can define dobet().
func (vm *VM) Execute(source string) error {
	return vm.guarded(scriptInitTimeout, func(rt *goja.Runtime) error {
		if _, err := rt.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasDobet reports whether the script defined a callable dobet().
func (vm *VM) HasDobet() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := goja.AssertFunction(vm.rt.Get("dobet"))
	return ok
}

// CallDobet calls the script's dobet().
func (vm *VM) CallDobet() error {
	return vm.guarded(scriptCallTimeout, func(rt *goja.Runtime) error {
		dobet, ok := goja.AssertFunction(rt.Get("dobet"))
		if !ok {
			return errors.New("dobet is not a function")
		}
		if _, err := dobet(goja.Undefined()); err != nil {
			return fmt.Errorf("dobet() error: %w", err)
		}
		return nil
	})
}

// IsStopRequested reports whether the script called stop().
func (vm *VM) IsStopRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stop
}

// IsResetStatsRequested reports and clears a resetstats() call.
func (vm *VM) IsResetStatsRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	r := vm.resetStats
	vm.resetStats = false
	return r
}

// SetVariables pushes the engine's variables into the script.
func (vm *VM) SetVariables(vars *Variables) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	injectVariables(vm.rt, vars)
}

// SyncVariables reads back the variables a script may change.
func (vm *VM) SyncVariables(vars *Variables) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	syncFromVM(vm.rt, vars)
}

// TakeSleepTime returns the requested delay in ms and clears it.
func (vm *VM) TakeSleepTime() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	ms := toInt(vm.rt.Get("sleeptime"))
	vm.rt.Set("sleeptime", 0)
	return ms
}

// GetLogs returns a copy of the log buffer.
func (vm *VM) GetLogs() []LogEntry {
	vm.logMu.Lock()
	defer vm.logMu.Unlock()
	return append([]LogEntry(nil), vm.logs...)
}
