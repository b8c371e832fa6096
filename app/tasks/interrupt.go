package tasks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrStorySkipped = errors.New("story skipped by user")
	ErrFeedSkipped  = errors.New("site skipped by user")
	ErrRunAborted   = errors.New("run aborted by user")
)

const interruptPrompt = `
*** Interrupted ***
  s: skip this story
  n: skip to the next site
  q: quit
Which (default = s): `

type scope int

const (
	scopeRun scope = iota
	scopeFeed
	scopeStory
)

// Interrupter turns an interrupt signal into cancellation of the current
// story, the current site or the whole run. Without a terminal every
// interrupt ends the run.
type Interrupter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	prompting   atomic.Bool

	mu      sync.Mutex
	cancels [3]context.CancelCauseFunc
}

func NewInterrupter(in io.Reader, out io.Writer, interactive bool) *Interrupter {
	return &Interrupter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

func (i *Interrupter) Run(parent context.Context) (context.Context, func()) {
	return i.enter(parent, scopeRun)
}

func (i *Interrupter) Feed(parent context.Context) (context.Context, func()) {
	return i.enter(parent, scopeFeed)
}

func (i *Interrupter) Story(parent context.Context) (context.Context, func()) {
	return i.enter(parent, scopeStory)
}

func (i *Interrupter) enter(parent context.Context, s scope) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if i == nil {
		return ctx, func() { cancel(nil) }
	}

	i.mu.Lock()
	i.cancels[s] = cancel
	i.mu.Unlock()

	return ctx, func() {
		i.mu.Lock()
		i.cancels[s] = nil
		i.mu.Unlock()
		cancel(nil)
	}
}

// Watch handles signals until ctx is done.
func (i *Interrupter) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			go i.Handle()
		}
	}
}

// Handle asks what to abandon and cancels it. A second interrupt while the
// question is open quits.
func (i *Interrupter) Handle() {
	if !i.interactive || !i.prompting.CompareAndSwap(false, true) {
		i.cancel(scopeRun, ErrRunAborted)
		return
	}
	defer i.prompting.Store(false)

	fmt.Fprint(i.out, interruptPrompt)
	line, err := i.in.ReadString('\n')
	if err != nil && line == "" {
		i.cancel(scopeRun, ErrRunAborted)
		return
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "q":
		i.cancel(scopeRun, ErrRunAborted)
	case "n":
		i.cancel(scopeFeed, ErrFeedSkipped)
	default:
		i.cancel(scopeStory, ErrStorySkipped)
	}
}

func (i *Interrupter) cancel(s scope, cause error) {
	i.mu.Lock()
	cancel := i.cancels[s]
	i.mu.Unlock()

	if cancel != nil {
		cancel(cause)
	}
}
