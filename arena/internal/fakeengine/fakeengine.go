// Package fakeengine is a tiny UCI engine used by tests. A test binary
// re-executes itself with ARENA_FAKE_ENGINE set and TestMain hands control to
// Main, so engine behaviour can be scripted without building anything.
package fakeengine

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"engine-arena/arena/judge"
	"engine-arena/arena/uci"
)

const envMode = "ARENA_FAKE_ENGINE"

// Modes.
const (
	Normal      = "normal"      // plays the first legal move in sorted UCI order
	Silent      = "silent"      // never answers go
	Crash       = "crash"       // exits on go
	Garbage     = "garbage"     // answers go with a malformed bestmove
	Illegal     = "illegal"     // answers go with a well-formed illegal move
	NoHandshake = "nohandshake" // never sends uciok
	Slow        = "slow"        // waits before every bestmove
	Resign      = "resign"      // answers go with bestmove (none)
)

// Requested reports whether this process was started as a fake engine.
func Requested() bool { return os.Getenv(envMode) != "" }

// Engine returns a launch description that runs the current test binary as a
// fake engine in the given mode.
func Engine(name, mode string) uci.Engine {
	return uci.Engine{
		Name: name,
		Path: os.Args[0],
		Args: []string{"-test.run=^$"},
		Env:  []string{envMode + "=" + mode},
	}
}

// Main runs the engine loop on stdin/stdout until quit or EOF.
func Main() {
	mode := os.Getenv(envMode)
	out := bufio.NewWriter(os.Stdout)
	say := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
		out.Flush()
	}

	fen := judge.StartFEN
	var moves []string
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		f := strings.Fields(in.Text())
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "uci":
			say("id name fake-%s", mode)
			say("id author arena")
			say("option name Hash type spin default 16 min 1 max 1024")
			if mode != NoHandshake {
				say("uciok")
			}
		case "isready":
			say("readyok")
		case "ucinewgame":
			fen, moves = judge.StartFEN, nil
		case "position":
			fen, moves = parsePosition(f[1:])
		case "go":
			switch mode {
			case Silent:
				continue
			case Crash:
				os.Exit(3)
			case Garbage:
				say("bestmove e2e9x")
				continue
			case Illegal:
				say("bestmove a1a1")
				continue
			case Resign:
				say("bestmove (none)")
				continue
			case Slow:
				time.Sleep(150 * time.Millisecond)
			}
			say("info depth 1 score cp 0 nodes 1")
			say("bestmove %s", firstMove(fen, moves))
		case "quit":
			return
		}
	}
}

func parsePosition(args []string) (string, []string) {
	fen := judge.StartFEN
	var moves []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "startpos":
		case "fen":
			end := i + 1
			for end < len(args) && args[end] != "moves" {
				end++
			}
			fen = strings.Join(args[i+1:end], " ")
			i = end - 1
		case "moves":
			moves = append(moves, args[i+1:]...)
			i = len(args)
		}
	}
	return fen, moves
}

func firstMove(fen string, moves []string) string {
	b, err := judge.New(fen)
	if err != nil {
		return "(none)"
	}
	for _, m := range moves {
		if err := b.Play(m); err != nil {
			return "(none)"
		}
	}
	legal := b.LegalMoves()
	if len(legal) == 0 {
		return "(none)"
	}
	return legal[0]
}
