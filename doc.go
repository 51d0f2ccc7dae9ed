// Package magma provides an asset pipeline built around declarative flows.
//
// A Flow gathers the source files matched by its configured paths, runs each
// file through a chain of preprocessors, concatenates the results into one
// bundle, runs the bundle through a chain of postprocessors, and hands the
// finished artifact to a Store. Flows with watching enabled re-run the whole
// sequence whenever one of their source paths changes.
//
// # Flows
//
// A flow is declared with a Spec and normalized against process-wide
// Defaults and a transform Registry:
//
//	engine := magma.NewEngine(
//	    magma.Defaults{Root: "/srv/app", Encoding: "utf-8", Minify: true},
//	    magma.NewMemoryStore(),
//	)
//
//	flow, err := engine.NewFlow(magma.Spec{
//	    Route: magma.RouteString("/css/site.css"),
//	    Type:  "css",
//	    Paths: []string{"styles"},
//	})
//	if err != nil {
//	    log.Fatal(err) // *magma.ConfigError
//	}
//
//	if err := flow.Start(ctx); err != nil {
//	    log.Printf("initial run failed: %v", err)
//	}
//
// # Pipeline
//
// Every run executes the same fixed stages:
//
//	Collect → Preprocess → Concatenate → Postprocess → Save
//
// Preprocessing runs concurrently across files but strictly in order within
// a single file's chain. Postprocessing runs strictly in order over the whole
// bundle. A failing transform fails that run only; the flow keeps watching.
//
// # Transforms
//
// Transforms are referenced either by built-in name, resolved through a
// Registry, or as custom values:
//
//	magma.BuiltInPre("underscore")
//	magma.CustomPre(magma.PreprocessorFunc(fn))
//	magma.BuiltInPost("minify")
//
// Style and script sub-languages (sass, less, stylus, coffeescript) get their
// compiler prepended automatically based on the file extension.
//
// # Watching
//
// A watching flow moves through the states Unarmed, Armed and Reflowing. The
// first notification for each path that existed at subscription time is
// swallowed, since the watch subsystem reports every pre-existing file once
// on subscription. Every later notification triggers a full reflow. Reflows
// of one flow never overlap.
//
// # Observability
//
// Lifecycle events are emitted as capitan signals (see signals.go); hook
// them to route into logging or metrics:
//
//	capitan.Hook(magma.RunFailed, func(_ context.Context, e *capitan.Event) {
//	    msg, _ := magma.KeyError.From(e)
//	    slog.Error("run failed", "error", msg)
//	})
package magma
