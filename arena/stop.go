package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// stopper turns outside requests to end the run into either a graceful stop
// (no new games, in-flight games finish and count) or a hard one (ctx
// cancelled, in-flight games discarded).
type stopper struct {
	graceful  func()
	cancel    context.CancelFunc
	immediate bool

	requested   atomic.Bool
	interrupted atomic.Bool
}

func newStopper(graceful func(), cancel context.CancelFunc, immediate bool) *stopper {
	return &stopper{graceful: graceful, cancel: cancel, immediate: immediate}
}

// request stops the run, hard when force is set or STOP_IMMEDIATE is on.
func (s *stopper) request(why string, force bool) {
	if force || s.immediate {
		log.Warn().Str("why", why).Msg("stopping now, games in flight are discarded")
		s.cancel()
		return
	}
	if s.requested.Swap(true) {
		return
	}
	log.Warn().Str("why", why).Msg("stopping after games in flight (interrupt again to stop now)")
	s.graceful()
}

// Interrupted reports whether a signal ended the run.
func (s *stopper) Interrupted() bool { return s.interrupted.Load() }

// watchSignals handles SIGINT/SIGTERM until ctx is done. The second signal
// is always a hard stop.
func (s *stopper) watchSignals(ctx context.Context) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-c:
			again := s.interrupted.Swap(true)
			s.request(sig.String(), again)
		}
	}
}

// deadline requests a graceful stop after d. The returned func disarms it.
func (s *stopper) deadline(d time.Duration) func() {
	t := time.AfterFunc(d, func() { s.request("max run time reached", false) })
	return func() { t.Stop() }
}

// watchFile requests a stop once path exists. The parent directory is
// watched since the file usually does not exist yet.
func (s *stopper) watchFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		s.request("stop file present", false)
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == target && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
					s.request("stop file created", false)
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", path).Msg("stop file watcher")
			}
		}
	}()
	return nil
}
