package ports

// Watcher monitors the user grammar directory and triggers a registry reload.
// The adapter (fsnotify) filters out files that are not grammar definitions
// before invoking onChange. Only one Watch call should be active at a time.
type Watcher interface {
	// Watch starts monitoring dir. onChange is called with the path of each
	// changed grammar file. The callback may be invoked from any goroutine.
	// Returns an error if the directory doesn't exist or permissions are
	// insufficient.
	Watch(dir string, onChange func(filePath string)) error

	// Stop ends monitoring and releases all resources. After Stop returns,
	// no further onChange calls will fire. Safe to call multiple times.
	Stop() error
}
