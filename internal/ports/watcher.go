package ports

// FileWatcher reports content changes of individual files. The filesystem
// host uses it to turn saves into document change events.
type FileWatcher interface {
	// Track starts reporting changes of path. onChange is called with the
	// absolute path, from any goroutine, once a burst of writes settles.
	// Tracking an already tracked path replaces its callback.
	Track(path string, onChange func(path string)) error

	// Untrack stops reporting changes of path. Unknown paths are ignored.
	Untrack(path string)

	// Stop ends monitoring and releases all resources. After Stop returns,
	// no further onChange calls will fire. Safe to call multiple times.
	Stop() error
}
