package sandbox

import (
	"context"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/ije/gox/log"
)

// Options configures a sandbox.
type Options struct {
	// Name prefixes the console output in the log.
	Name   string
	Logger *log.Logger
	// NoStorage disables the in-memory `localStorage`.
	NoStorage bool
}

// Line is a line written to the console.
type Line struct {
	Level string
	Text  string
}

func (l Line) String() string {
	return l.Level + ": " + l.Text
}

// Sandbox is a JavaScript runtime that executes scripts one at a time.
// The underlying goja runtime is not goroutine safe, all access goes through Do.
type Sandbox struct {
	name       string
	logger     *log.Logger
	lock       sync.Mutex
	rt         *goja.Runtime
	outputLock sync.Mutex
	output     []Line
}

// New creates a sandbox with a `console` bound to the logger.
func New(opts Options) *Sandbox {
	s := &Sandbox{
		name:   opts.Name,
		logger: opts.Logger,
		rt:     goja.New(),
	}
	s.installConsole()
	if !opts.NoStorage {
		if _, err := s.rt.RunString(localStorageShim); err != nil {
			panic(err)
		}
	}
	return s
}

const localStorageShim = `globalThis.localStorage = (function () {
	var data = Object.create(null);
	return {
		getItem: function (k) { k = String(k); return k in data ? data[k] : null; },
		setItem: function (k, v) { data[String(k)] = String(v); },
		removeItem: function (k) { delete data[String(k)]; },
		key: function (i) { var keys = Object.keys(data); return i < keys.length ? keys[i] : null; },
		clear: function () { data = Object.create(null); },
		get length() { return Object.keys(data).length; }
	};
})();`

func (s *Sandbox) installConsole() {
	console := s.rt.NewObject()
	for _, level := range []string{"log", "info", "debug", "warn", "error"} {
		level := level
		console.Set(level, func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = formatValue(arg)
			}
			s.print(level, strings.Join(args, " "))
			return goja.Undefined()
		})
	}
	s.rt.Set("console", console)
}

func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		// errors print their stack like browsers do
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) && !goja.IsNull(stack) {
			return stack.String()
		}
	}
	return v.String()
}

func (s *Sandbox) print(level string, text string) {
	s.outputLock.Lock()
	s.output = append(s.output, Line{Level: level, Text: text})
	s.outputLock.Unlock()

	if s.logger == nil {
		return
	}
	if s.name != "" {
		text = "[" + s.name + "] " + text
	}
	switch level {
	case "debug":
		s.logger.Debug(text)
	case "warn":
		s.logger.Warn(text)
	case "error":
		s.logger.Error(text)
	default:
		s.logger.Info(text)
	}
}

// Output returns the lines written to the console so far.
func (s *Sandbox) Output() []Line {
	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	lines := make([]Line, len(s.output))
	copy(lines, s.output)
	return lines
}

// Do runs fn with exclusive access to the runtime. Cancelling the context interrupts
// the running script. A thrown JavaScript value is returned as an *Exception.
func (s *Sandbox) Do(ctx context.Context, fn func(rt *goja.Runtime) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			s.rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	err := fn(s.rt)
	close(done)
	<-stopped
	s.rt.ClearInterrupt()

	if err != nil {
		return s.convertError(ctx, err)
	}
	return nil
}

// Run executes the script and returns its completion value exported to a Go value.
func (s *Sandbox) Run(ctx context.Context, name string, code string) (ret any, err error) {
	err = s.Do(ctx, func(rt *goja.Runtime) error {
		v, err := rt.RunScript(name, code)
		if err != nil {
			return err
		}
		if v != nil {
			ret = v.Export()
		}
		return nil
	})
	return
}

// convertError must be called with the runtime lock held.
func (s *Sandbox) convertError(ctx context.Context, err error) error {
	switch e := err.(type) {
	case *goja.InterruptedError:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	case *goja.Exception:
		return newException(e)
	}
	return err
}
