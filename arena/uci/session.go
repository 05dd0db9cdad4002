// Package uci drives a chess engine subprocess over the UCI protocol.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine is how to launch one engine build. Immutable after config load.
type Engine struct {
	Name    string            `yaml:"name" json:"name" validate:"required"`
	Path    string            `yaml:"path" json:"path" validate:"required"`
	Args    []string          `yaml:"args" json:"args,omitempty"`
	Env     []string          `yaml:"env" json:"env,omitempty"`
	Dir     string            `yaml:"dir" json:"dir,omitempty"`
	Options map[string]string `yaml:"options" json:"options,omitempty"`
}

// Identity is what the engine reported during the handshake.
type Identity struct {
	Name    string
	Author  string
	Options []string
}

const shutdownGrace = 500 * time.Millisecond

var moveRe = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Session is one running engine process. Methods other than Shutdown and
// Exited must not be called concurrently.
type Session struct {
	eng   Engine
	id    Identity
	cmd   *exec.Cmd
	log   zerolog.Logger
	stdin io.WriteCloser

	wmu    sync.Mutex
	lines  chan string
	exited chan struct{}
	quit   chan struct{}
	wait   error
	once   sync.Once
}

// Start launches the engine and completes the uci/isready handshake, applying
// the configured options. On error the process is already gone.
func Start(ctx context.Context, e Engine, timeout time.Duration) (*Session, error) {
	cmd := exec.Command(e.Path, e.Args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &CrashError{Engine: e.Name, Op: "start", Err: err}
	}

	s := &Session{
		eng:    e,
		cmd:    cmd,
		log:    log.With().Str("engine", e.Name).Logger(),
		stdin:  stdin,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go s.readLoop(stdout)

	if err := s.handshake(ctx, timeout); err != nil {
		s.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Session) Name() string       { return s.eng.Name }
func (s *Session) Identity() Identity { return s.id }

// Exited reports whether the process has terminated.
func (s *Session) Exited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Session) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
forward:
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.log.Trace().Str("dir", "recv").Msg(line)
		select {
		case s.lines <- line:
		case <-s.quit:
			break forward
		}
	}
	// keep the pipe drained so the engine never blocks on a write while exiting
	_, _ = io.Copy(io.Discard, r)
	s.wait = s.cmd.Wait()
	close(s.exited)
	close(s.lines)
}

func (s *Session) send(op, line string) error {
	s.log.Trace().Str("dir", "send").Msg(line)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return &CrashError{Engine: s.eng.Name, Op: op, Err: err}
	}
	return nil
}

// await feeds reply lines to match until it reports done, the deadline passes
// or the process goes away.
func (s *Session) await(ctx context.Context, op string, limit time.Duration, match func(string) (bool, error)) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return &CrashError{Engine: s.eng.Name, Op: op, Err: s.wait}
			}
			done, err := match(line)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case <-timer.C:
			_ = s.send(op, "stop")
			s.kill()
			return &TimeoutError{Engine: s.eng.Name, Op: op, After: limit}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) handshake(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	if err := s.send("uci", "uci"); err != nil {
		return err
	}
	err := s.await(ctx, "uci", timeout, func(line string) (bool, error) {
		switch {
		case line == "uciok":
			return true, nil
		case strings.HasPrefix(line, "id name "):
			s.id.Name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "id author "):
			s.id.Author = strings.TrimPrefix(line, "id author ")
		case strings.HasPrefix(line, "option name "):
			name := strings.TrimPrefix(line, "option name ")
			if i := strings.Index(name, " type "); i >= 0 {
				name = name[:i]
			}
			s.id.Options = append(s.id.Options, name)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(s.eng.Options))
	for k := range s.eng.Options {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if !s.advertises(k) {
			s.log.Warn().Str("option", k).Msg("engine does not advertise option, sending anyway")
		}
		if err := s.send("setoption", fmt.Sprintf("setoption name %s value %s", k, s.eng.Options[k])); err != nil {
			return err
		}
	}

	if err := s.ready(ctx, remaining(start, timeout)); err != nil {
		return err
	}
	s.log.Debug().Str("id", s.id.Name).Str("author", s.id.Author).Dur("took", time.Since(start)).Msg("engine ready")
	return nil
}

func (s *Session) advertises(name string) bool {
	for _, o := range s.id.Options {
		if strings.EqualFold(o, name) {
			return true
		}
	}
	return false
}

func (s *Session) ready(ctx context.Context, timeout time.Duration) error {
	if err := s.send("isready", "isready"); err != nil {
		return err
	}
	return s.await(ctx, "isready", timeout, func(line string) (bool, error) {
		return line == "readyok", nil
	})
}

// NewGame resets the engine for a fresh game.
func (s *Session) NewGame(ctx context.Context, timeout time.Duration) error {
	if err := s.send("ucinewgame", "ucinewgame"); err != nil {
		return err
	}
	return s.ready(ctx, timeout)
}

// Position sets the position to search. moves are UCI moves played from fen.
func (s *Session) Position(fen string, moves []string) error {
	var b strings.Builder
	b.WriteString("position fen ")
	b.WriteString(fen)
	if len(moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(moves, " "))
	}
	return s.send("position", b.String())
}

// Go starts a search and waits for bestmove. limit bounds the wait; when it
// elapses the engine is killed and a TimeoutError returned.
func (s *Session) Go(ctx context.Context, lim Limits, limit time.Duration) (BestMove, error) {
	start := time.Now()
	if err := s.send("go", lim.String()); err != nil {
		return BestMove{}, err
	}
	var bm BestMove
	err := s.await(ctx, "go", limit, func(line string) (bool, error) {
		switch {
		case strings.HasPrefix(line, "info "):
			bm.Info.parse(line)
		case line == "bestmove" || strings.HasPrefix(line, "bestmove "):
			f := strings.Fields(line)
			if len(f) < 2 {
				return false, &ProtocolError{Engine: s.eng.Name, Line: line, Msg: "bestmove without a move"}
			}
			switch mv := f[1]; {
			case mv == "(none)" || mv == "0000":
			case moveRe.MatchString(mv):
				bm.Move = mv
			default:
				return false, &ProtocolError{Engine: s.eng.Name, Line: line, Msg: "malformed move"}
			}
			if len(f) >= 4 && f[2] == "ponder" {
				bm.Ponder = f[3]
			}
			return true, nil
		}
		return false, nil
	})
	bm.Elapsed = time.Since(start)
	return bm, err
}

// Stop asks the engine to end the current search.
func (s *Session) Stop() error { return s.send("stop", "stop") }

// Shutdown sends quit, waits briefly and kills the process if it is still
// alive. Safe to call more than once.
func (s *Session) Shutdown() {
	s.once.Do(func() {
		if !s.Exited() {
			_ = s.send("quit", "quit")
		}
		s.wmu.Lock()
		_ = s.stdin.Close()
		s.wmu.Unlock()
		close(s.quit)

		select {
		case <-s.exited:
			return
		case <-time.After(shutdownGrace):
		}
		s.log.Debug().Msg("engine ignored quit, killing")
		s.kill()
		select {
		case <-s.exited:
		case <-time.After(shutdownGrace):
			s.log.Warn().Msg("engine output still open after kill")
		}
	})
}

func (s *Session) kill() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func remaining(start time.Time, total time.Duration) time.Duration {
	if d := total - time.Since(start); d > 0 {
		return d
	}
	return time.Millisecond
}
