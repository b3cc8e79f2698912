package tailer

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"
)

// maxLine caps a single log line; longer lines are skipped.
const maxLine = 512 * 1024

// Tailer polls one log file and emits parsed entries.
//
// It reads from the start or seeks to the end, then follows appended lines.
// A file that shrinks (rotated or truncated) is reread from the beginning, and
// a file that does not exist yet is waited for.
//
// Thread-safe: Start/Stop can be called from any goroutine.
type Tailer struct {
	path         string
	pollInterval time.Duration
	fromStart    bool

	callback func(*Entry)
	onError  func(error)

	offset  int64
	partial []byte // unterminated tail from the previous read

	mu      sync.Mutex
	done    chan struct{}
	started chan struct{} // closed after the initial read
	wg      sync.WaitGroup
}

// Config holds parameters for creating a Tailer.
type Config struct {
	// Path is the log file to follow.
	Path string

	// PollInterval is how often to check for new lines. Default: 250ms.
	PollInterval time.Duration

	// FromStart emits the existing content first instead of seeking to the end.
	FromStart bool

	// Callback is called for each parsed entry. Must be non-nil.
	Callback func(*Entry)

	// OnError is called when a line fails to parse. Optional.
	OnError func(error)
}

// New creates a Tailer. Does not start tailing until Start() is called.
func New(cfg Config) *Tailer {
	interval := cfg.PollInterval
	if interval == 0 {
		interval = 250 * time.Millisecond
	}
	return &Tailer{
		path:         cfg.Path,
		pollInterval: interval,
		fromStart:    cfg.FromStart,
		callback:     cfg.Callback,
		onError:      cfg.OnError,
		done:         make(chan struct{}),
		started:      make(chan struct{}),
	}
}

// Start begins the tailing loop in a background goroutine.
func (t *Tailer) Start() {
	t.wg.Add(1)
	go t.loop()
}

// Stop terminates the tailing loop and waits for it to finish.
// Safe to call multiple times.
func (t *Tailer) Stop() {
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return
	default:
		close(t.done)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Path returns the file being followed.
func (t *Tailer) Path() string {
	return t.path
}

// Started returns a channel that closes after the initial read completes.
func (t *Tailer) Started() <-chan struct{} {
	return t.started
}

// ReadAll emits every complete line currently in the file without following.
// A missing file is not an error.
func (t *Tailer) ReadAll() error {
	t.offset = 0
	t.partial = nil
	err := t.readNewLines()
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (t *Tailer) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	if t.fromStart {
		t.readNewLines()
	} else if info, err := os.Stat(t.path); err == nil {
		t.offset = info.Size()
	}
	close(t.started)

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.readNewLines()
		}
	}
}

// readNewLines reads content appended since the last read. Offsets advance by
// consumed bytes, so a line still being written is kept for the next cycle.
func (t *Tailer) readNewLines() error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	for {
		chunk, err := reader.ReadBytes('\n')
		t.offset += int64(len(chunk))
		if err != nil {
			// no newline yet: hold the fragment
			t.partial = append(t.partial, chunk...)
			if len(t.partial) > maxLine {
				t.partial = nil
			}
			break
		}

		line := trimNewline(append(t.partial, chunk...))
		t.partial = nil
		if len(line) == 0 || len(line) > maxLine {
			continue
		}
		t.emit(line)
	}
	return nil
}

func (t *Tailer) emit(line []byte) {
	e, err := ParseLine(line)
	if err != nil {
		if t.onError != nil {
			t.onError(err)
		}
		return
	}
	if e != nil && t.callback != nil {
		t.callback(e)
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
