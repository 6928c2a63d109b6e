package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/tool"
)

// hiddenGlobals are shadowed to undefined before the script runs.
var hiddenGlobals = []string{
	"document", "window", "eval", "Function", "require",
	"setTimeout", "setInterval", "setImmediate",
	"clearTimeout", "clearInterval", "clearImmediate",
}

// prelude builds console and parallel on top of Go sinks. It runs before
// the globals above are hidden.
const prelude = `(function (sink) {
  const fmt = (a) => {
    if (typeof a === 'string') return a;
    if (a === undefined) return 'undefined';
    if (a instanceof Error || typeof a === 'function' || typeof a === 'symbol') return String(a);
    try {
      const s = JSON.stringify(a);
      return s === undefined ? String(a) : s;
    } catch (e) {
      return String(a);
    }
  };
  const line = (args) => args.map(fmt).join(' ');
  const all = Promise.all.bind(Promise);
  return {
    console: {
      log: (...args) => sink(0, line(args)),
      info: (...args) => sink(0, line(args)),
      warn: (...args) => sink(1, line(args)),
      error: (...args) => sink(2, line(args)),
    },
    parallel: (...ps) => all(ps.length === 1 && Array.isArray(ps[0]) ? ps[0] : ps),
  };
})`

const formalizeSystemPrompt = `You convert unstructured text into structured data.
Reply with raw JSON only: no prose, no explanation, no Markdown code fences.
The JSON must match the requested type description exactly.`

// outcome is how the script's top-level promise settled.
type outcome struct {
	err error
}

// run is the state of one script invocation.
type run struct {
	tool  *Tool
	ctx   context.Context
	loop  *eventloop.EventLoop
	logs  logs
	state atomic.Int32

	// Captured before the script can overwrite them.
	stringify goja.Callable
	parse     goja.Callable
}

func (r *run) setState(s State) { r.state.Store(int32(s)) }

func (r *run) report() Report {
	stdout, warnings, errs := r.logs.snapshot()
	return Report{State: State(r.state.Load()), Stdout: stdout, Warnings: warnings, Errors: errs}
}

// Run executes source inside a fresh sandbox and waits for it to settle,
// for timeout to elapse or for ctx to end. A timeout of zero or less uses
// the default; anything above MaxTimeout is clamped. A timed-out run stops
// the orchestration but leaves inner tool calls already issued running.
func (t *Tool) Run(ctx context.Context, source string, timeout time.Duration) (Report, error) {
	timeout = t.clampTimeout(timeout)
	r := &run{tool: t, ctx: ctx}
	r.setState(StateIdle)

	r.loop = eventloop.NewEventLoop(eventloop.EnableConsole(false))
	r.loop.Start()
	defer r.loop.StopNoWait()

	done := make(chan outcome, 1)
	settle := func(err error) {
		select {
		case done <- outcome{err: err}:
		default:
		}
	}
	vmc := make(chan *goja.Runtime, 1)

	start := time.Now()
	r.setState(StateRunning)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		vmc <- vm
		if err := r.install(vm); err != nil {
			settle(err)
			return
		}
		r.start(vm, source, settle)
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var vm *goja.Runtime
	select {
	case vm = <-vmc:
	case <-ctx.Done():
		r.setState(StateThrew)
		return r.report(), ctx.Err()
	}

	var err error
	select {
	case out := <-done:
		if out.err != nil {
			r.setState(StateThrew)
			err = out.err
		} else {
			r.setState(StateCompleted)
		}
	case <-timer.C:
		vm.Interrupt(ErrScriptTimeout)
		r.setState(StateTimedOut)
		err = fmt.Errorf("%w after %s", ErrScriptTimeout, timeout)
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		r.setState(StateThrew)
		err = ctx.Err()
	}

	rep := r.report()
	t.logger.Debug("script: finished", "state", rep.State, "elapsed", time.Since(start),
		"stdout_lines", len(rep.Stdout), "errors", len(rep.Errors))
	return rep, err
}

// install sets up the global scope. It runs on the loop goroutine.
func (r *run) install(vm *goja.Runtime) error {
	jsonObj := vm.Get("JSON").ToObject(vm)
	var ok bool
	if r.stringify, ok = goja.AssertFunction(jsonObj.Get("stringify")); !ok {
		return fmt.Errorf("%w: JSON.stringify unavailable", ErrScriptFailed)
	}
	if r.parse, ok = goja.AssertFunction(jsonObj.Get("parse")); !ok {
		return fmt.Errorf("%w: JSON.parse unavailable", ErrScriptFailed)
	}

	factory, err := vm.RunString(prelude)
	if err != nil {
		return fmt.Errorf("%w: prelude: %w", ErrScriptFailed, err)
	}
	build, ok := goja.AssertFunction(factory)
	if !ok {
		return fmt.Errorf("%w: prelude is not a function", ErrScriptFailed)
	}
	built, err := build(goja.Undefined(), vm.ToValue(r.logs.append))
	if err != nil {
		return fmt.Errorf("%w: prelude: %w", ErrScriptFailed, err)
	}
	scope := built.ToObject(vm)

	global := vm.GlobalObject()
	for name, v := range map[string]goja.Value{
		"console":   scope.Get("console"),
		"parallel":  scope.Get("parallel"),
		"TOOL_CALL": vm.ToValue(func(call goja.FunctionCall) goja.Value { return r.toolCall(vm, call) }),
		"FORMALIZE": vm.ToValue(func(call goja.FunctionCall) goja.Value { return r.formalize(vm, call) }),
		"sleep":     vm.ToValue(func(call goja.FunctionCall) goja.Value { return r.sleep(vm, call) }),
	} {
		if err := global.Set(name, v); err != nil {
			return fmt.Errorf("%w: install %s: %w", ErrScriptFailed, name, err)
		}
	}
	for _, name := range hiddenGlobals {
		if err := global.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("%w: hide %s: %w", ErrScriptFailed, name, err)
		}
	}
	return nil
}

// start runs the wrapped script and reports how its promise settles.
func (r *run) start(vm *goja.Runtime, source string, settle func(error)) {
	v, err := vm.RunString("(async () => {\n" + source + "\n})()")
	if err != nil {
		settle(fmt.Errorf("%w: %s", ErrScriptFailed, err.Error()))
		return
	}
	p := v.ToObject(vm)
	then, ok := goja.AssertFunction(p.Get("then"))
	if !ok {
		settle(nil)
		return
	}
	onOK := func(goja.FunctionCall) goja.Value {
		settle(nil)
		return goja.Undefined()
	}
	onErr := func(call goja.FunctionCall) goja.Value {
		settle(fmt.Errorf("%w: %s", ErrScriptFailed, describe(call.Argument(0))))
		return goja.Undefined()
	}
	if _, err := then(p, vm.ToValue(onOK), vm.ToValue(onErr)); err != nil {
		settle(fmt.Errorf("%w: %s", ErrScriptFailed, err.Error()))
	}
}

// toolCall implements TOOL_CALL(name, args). The call re-enters the
// registry with both approval checkpoints skipped.
func (r *run) toolCall(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	promise, resolve, reject := vm.NewPromise()

	name := call.Argument(0).String()
	args, err := r.encode(call.Argument(1))
	if err != nil {
		_ = reject(vm.NewGoError(fmt.Errorf("TOOL_CALL(%s): encode arguments: %w", name, err)))
		return vm.ToValue(promise)
	}

	go func() {
		res := r.tool.caller.Execute(r.ctx, name, args, tool.ExecuteOptions{
			SkipExecutionApproval: true,
			SkipResultApproval:    true,
		})
		r.loop.RunOnLoop(func(vm *goja.Runtime) {
			if !res.OK() {
				_ = reject(vm.NewGoError(fmt.Errorf("TOOL_CALL(%s) returned %s: %s", name, res.Status, detail(res))))
				return
			}
			v, err := r.decode(vm, res.Data)
			if err != nil {
				_ = reject(vm.NewGoError(fmt.Errorf("TOOL_CALL(%s): %w", name, err)))
				return
			}
			_ = resolve(v)
		})
	}()
	return vm.ToValue(promise)
}

// formalize implements FORMALIZE(text, typeDescription).
func (r *run) formalize(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	promise, resolve, reject := vm.NewPromise()
	text := call.Argument(0).String()
	shape := call.Argument(1).String()

	go func() {
		user := "Type description:\n" + shape + "\n\nText:\n" + text
		reply, err := provider.CompleteText(r.ctx, r.tool.completer, formalizeSystemPrompt, user)
		var data any
		if err == nil {
			if jerr := json.Unmarshal([]byte(StripFences(reply)), &data); jerr != nil {
				err = fmt.Errorf("%w: model reply is not JSON: %w", ErrFormalize, jerr)
			}
		} else {
			err = fmt.Errorf("%w: %w", ErrFormalize, err)
		}
		r.loop.RunOnLoop(func(vm *goja.Runtime) {
			if err != nil {
				_ = reject(vm.NewGoError(err))
				return
			}
			v, derr := r.decode(vm, data)
			if derr != nil {
				_ = reject(vm.NewGoError(fmt.Errorf("%w: %w", ErrFormalize, derr)))
				return
			}
			_ = resolve(v)
		})
	}()
	return vm.ToValue(promise)
}

// sleep implements sleep(ms) with a Go timer.
func (r *run) sleep(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	promise, resolve, _ := vm.NewPromise()
	d := time.Duration(call.Argument(0).ToFloat() * float64(time.Millisecond))
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, func() {
		r.loop.RunOnLoop(func(*goja.Runtime) { _ = resolve(goja.Undefined()) })
	})
	return vm.ToValue(promise)
}

// encode turns a script value into JSON arguments. Undefined and null
// become an empty object.
func (r *run) encode(v goja.Value) (json.RawMessage, error) {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return json.RawMessage(`{}`), nil
	}
	out, err := r.stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(out) {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(out.String()), nil
}

// decode turns Go data into plain script values through JSON, so scripts
// see native objects and arrays rather than wrapped Go values.
func (r *run) decode(vm *goja.Runtime, data any) (goja.Value, error) {
	if data == nil {
		return goja.Null(), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return r.parse(goja.Undefined(), vm.ToValue(string(b)))
}

func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	return v.String()
}

func detail(res tool.Result) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.RejectReason != "":
		return res.RejectReason
	default:
		return res.FinalText
	}
}

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
