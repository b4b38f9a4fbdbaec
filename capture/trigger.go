// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/cmdqueue"
)

// Requester receives capture requests. *cmdqueue.Pipeline implements it.
type Requester interface {
	RequestCapture()
}

var _ Requester = (*cmdqueue.Pipeline)(nil)

// Trigger requests a capture of the next frame whenever a trigger file is
// created or written, then removes the file. It lets an operator capture a
// running process with `touch <path>`.
type Trigger struct {
	watcher *fsnotify.Watcher
	path    string
	target  Requester

	fired   int
	started bool
	stopped bool
	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewTrigger watches the directory holding path. The directory must exist.
func NewTrigger(path string, target Requester) (*Trigger, error) {
	if target == nil {
		return nil, errors.New("capture: nil trigger target")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &Trigger{
		watcher: watcher,
		path:    abs,
		target:  target,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching for the trigger file. Calls after the first and
// after Stop are no-ops.
func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	go t.watchLoop()
}

// Stop stops watching and waits for the watch loop to exit. It is safe to
// call more than once, and without Start.
func (t *Trigger) Stop() {
	t.once.Do(func() {
		t.mu.Lock()
		t.stopped = true
		started := t.started
		t.mu.Unlock()

		close(t.stopCh)
		_ = t.watcher.Close()
		if !started {
			close(t.done)
		}
	})
	<-t.done
}

// Fired returns how many captures the trigger requested.
func (t *Trigger) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Trigger) watchLoop() {
	defer close(t.done)
	for {
		select {
		case <-t.stopCh:
			return

		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			t.fire()

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			cmdqueue.Logger().Warn("capture: trigger watch error", "err", err)
		}
	}
}

// fire requests the capture and consumes the trigger file. Removing the
// file produces a Remove event, which is ignored.
func (t *Trigger) fire() {
	if _, err := os.Stat(t.path); err != nil {
		return
	}
	t.target.RequestCapture()
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		cmdqueue.Logger().Warn("capture: remove trigger file", "path", t.path, "err", err)
	}

	t.mu.Lock()
	t.fired++
	t.mu.Unlock()
	cmdqueue.Logger().Info("capture: trigger fired", "path", t.path)
}
