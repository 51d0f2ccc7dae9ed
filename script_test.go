package magma

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestScriptEngine_Preprocess(t *testing.T) {
	e, err := NewScriptEngine("banner", `function (contents, file, config) {
		return "/* " + file.name + " " + config.type + " */" + contents;
	}`)
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.Preprocess(context.Background(), &File{Name: "a.js", Contents: "x"}, &Config{Type: TypeScript})
	if err != nil {
		t.Fatal(err)
	}
	if out != "/* a.js js */x" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestScriptEngine_Postprocess(t *testing.T) {
	e, err := NewScriptEngine("upper", `function (bundle) { return bundle.toUpperCase(); }`)
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.Postprocess(context.Background(), "abc", &Config{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "ABC" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestScriptEngine_Errors(t *testing.T) {
	if _, err := NewScriptEngine("bad", "function ("); err == nil {
		t.Error("expected compile error")
	}

	cases := map[string]string{
		"not a function": `42`,
		"throws":         `function () { throw new Error("nope"); }`,
		"no value":       `function () {}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			e, err := NewScriptEngine(name, src)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := e.Postprocess(context.Background(), "x", &Config{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestScriptEngine_Interrupted(t *testing.T) {
	e, err := NewScriptEngine("loop", `function () { for (;;) {} }`)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.Postprocess(ctx, "x", &Config{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	// The pooled VM must be usable again.
	ok, err := NewScriptEngine("ok", `function (b) { return b; }`)
	if err != nil {
		t.Fatal(err)
	}
	if out, err := ok.Postprocess(context.Background(), "y", &Config{}); err != nil || out != "y" {
		t.Errorf("unexpected result %q, %v", out, err)
	}
}

func TestScriptEngine_Concurrent(t *testing.T) {
	e, err := NewScriptEngine("concat", `function (contents, file) { return file.name + ":" + contents; }`)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Preprocess(context.Background(), &File{Name: "f", Contents: "c"}, &Config{})
			if err != nil {
				errs <- err
				return
			}
			if !strings.HasPrefix(out, "f:c") {
				errs <- errors.New(out)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestScriptEngine_CancelRacingCompletion(t *testing.T) {
	e, err := NewScriptEngine("spin", `function (bundle) {
		var n = 0;
		for (var i = 0; i < 2000; i++) { n += i; }
		return bundle + n;
	}`)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 300; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go cancel()
		// Either outcome is fine for the canceled call.
		_, _ = e.Postprocess(ctx, "x", &Config{})

		out, err := e.Postprocess(context.Background(), "x", &Config{})
		if err != nil {
			t.Fatalf("iteration %d: call after a canceled one failed: %v", i, err)
		}
		if out != "x1999000" {
			t.Fatalf("iteration %d: unexpected output %q", i, out)
		}
	}
}
