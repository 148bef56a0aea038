package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Redirectable is an io.Writer whose underlying destination can be swapped
// at runtime. The Init Stage opens it pointed at the console, flips it to a
// file inside the staging tree once fd 1/2 are redirected (§4.3 step 5), and
// flips it again to mnt/log/stage2-init.log if a log device got mounted
// (§4.3 step 6). Writes that race a Set call still land fully on one side or
// the other; they are never split across old and new destinations.
type Redirectable struct {
	mu  sync.Mutex
	out io.Writer
}

// NewRedirectable creates a Redirectable initially writing to out.
func NewRedirectable(out io.Writer) *Redirectable {
	if out == nil {
		out = os.Stderr
	}
	return &Redirectable{out: out}
}

// Write implements io.Writer.
func (r *Redirectable) Write(p []byte) (int, error) {
	r.mu.Lock()
	out := r.out
	r.mu.Unlock()
	return out.Write(p)
}

// Set swaps the underlying destination.
func (r *Redirectable) Set(out io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = out
}

// RedirectToFile opens (creating if needed) path and redirects output to it,
// returning the previous destination if it was an *os.File (whether set by
// Set, NewRedirectable, or a prior RedirectToFile call), so the caller can
// close it once the switch is safe to make (i.e. after any buffered writes
// have drained). The previous destination may be os.Stderr.
func (r *Redirectable) RedirectToFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	r.mu.Lock()
	prev, _ := r.out.(*os.File)
	r.out = f
	r.mu.Unlock()
	return prev, nil
}
