package magma

import "context"

// Op is the kind of change a watcher reports.
type Op string

const (
	// OpAdd reports a file or directory that appeared. Watchers also emit
	// it once per existing path when a subscription starts.
	OpAdd Op = "add"

	// OpChange reports a write to an existing file.
	OpChange Op = "change"

	// OpRemove reports a deleted path.
	OpRemove Op = "remove"

	// OpRename reports a path that was moved away.
	OpRename Op = "rename"
)

// Event is one change notification.
type Event struct {
	Op   Op
	Path string
}

// Watcher observes a set of absolute paths for changes.
//
// Implementations emit at least one event per real change and make no
// ordering or deduplication guarantees. Implementations backed by a file
// system should emit an OpAdd event for each path that already exists when
// Watch is called; flows swallow the first event seen for each of those
// paths.
type Watcher interface {
	// Watch subscribes to the paths and returns a channel of events. The
	// channel is closed when ctx is canceled or the watcher fails.
	Watch(ctx context.Context, paths []string) (<-chan Event, error)
}
