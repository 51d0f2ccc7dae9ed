package magma

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// ScriptEngine runs a JavaScript function as a transform. The source must be
// a single function expression. Preprocessors receive
// (contents, file, config); postprocessors receive (bundle, config). The
// function must return the new contents as a string.
//
//	function (contents, file, config) {
//	    return "/* " + file.name + " */\n" + contents;
//	}
type ScriptEngine struct {
	program *goja.Program
	vmPool  sync.Pool
}

// NewScriptEngine compiles src once. VMs are pooled and reused across calls.
func NewScriptEngine(name, src string) (*ScriptEngine, error) {
	program, err := goja.Compile(name, "("+src+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", name, err)
	}
	e := &ScriptEngine{program: program}
	e.vmPool = sync.Pool{
		New: func() any {
			return goja.New()
		},
	}
	return e, nil
}

// Preprocess calls the script with the file contents.
func (e *ScriptEngine) Preprocess(ctx context.Context, file *File, cfg *Config) (string, error) {
	return e.call(ctx, file.Contents, map[string]any{
		"name":        file.Name,
		"path":        file.Path,
		"contentType": file.ContentType,
	}, cfg.scriptValues())
}

// Postprocess calls the script with the bundle.
func (e *ScriptEngine) Postprocess(ctx context.Context, bundle string, cfg *Config) (string, error) {
	return e.call(ctx, bundle, cfg.scriptValues())
}

func (e *ScriptEngine) call(ctx context.Context, contents string, args ...any) (string, error) {
	vm := e.vmPool.Get().(*goja.Runtime)
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
		close(fired)
	})
	defer func() {
		// A late interrupt must land before the VM is cleared and pooled.
		if !stop() {
			<-fired
		}
		vm.ClearInterrupt()
		e.vmPool.Put(vm)
	}()

	value, err := vm.RunProgram(e.program)
	if err != nil {
		return "", scriptError(err)
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return "", errors.New("script is not a function")
	}

	params := make([]goja.Value, 0, len(args)+1)
	params = append(params, vm.ToValue(contents))
	for _, a := range args {
		params = append(params, vm.ToValue(a))
	}

	res, err := fn(goja.Undefined(), params...)
	if err != nil {
		return "", scriptError(err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return "", errors.New("script returned no value")
	}
	return res.String(), nil
}

func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
	}
	return fmt.Errorf("script: %w", err)
}
