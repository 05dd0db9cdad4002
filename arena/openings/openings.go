// Package openings loads a book of starting positions and hands them out to
// games in a reproducible order.
package openings

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"engine-arena/arena/judge"
)

// FormatError is a malformed or unreadable opening file.
type FormatError struct {
	Path string
	Line int // 0 when the error is about the file as a whole
	Err  error
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("openings %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("openings %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

var errEmpty = errors.New("no positions")

// Opening is one starting position.
type Opening struct {
	Index   int    `json:"index"`
	FEN     string `json:"fen"`
	Comment string `json:"comment,omitempty"`
}

// Book is an ordered, immutable list of openings.
type Book struct {
	Path     string
	Openings []Opening
}

func (b *Book) Len() int { return len(b.Openings) }

// Load reads an EPD or FEN file, one position per line.
func Load(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads positions from r. Blank lines and lines starting with '#' are
// skipped. Four-field EPD records get their move counters from the hmvc/fmvn
// opcodes, or "0 1"; other opcodes are kept as the comment.
func Parse(r io.Reader, name string) (*Book, error) {
	b := &Book{Path: name}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fen, comment, err := normalize(line)
		if err == nil {
			err = judge.Validate(fen)
		}
		if err != nil {
			return nil, &FormatError{Path: name, Line: n, Err: err}
		}
		b.Openings = append(b.Openings, Opening{Index: len(b.Openings), FEN: fen, Comment: comment})
	}
	if err := sc.Err(); err != nil {
		return nil, &FormatError{Path: name, Err: err}
	}
	if len(b.Openings) == 0 {
		return nil, &FormatError{Path: name, Err: errEmpty}
	}
	return b, nil
}

func normalize(line string) (fen, comment string, err error) {
	f := strings.Fields(line)
	if len(f) < 4 {
		return "", "", fmt.Errorf("expected at least 4 fields, got %d", len(f))
	}
	board := f[:4]
	rest := f[4:]

	// Full FEN: two numeric counters follow the first four fields.
	if len(rest) >= 2 && isNumber(rest[0]) && isNumber(rest[1]) {
		return strings.Join(f[:6], " "), strings.Join(rest[2:], " "), nil
	}

	hmvc, fmvn := "0", "1"
	var kept []string
	for _, op := range strings.Split(strings.Join(rest, " "), ";") {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		k, v, _ := strings.Cut(op, " ")
		switch k {
		case "hmvc":
			if !isNumber(v) {
				return "", "", fmt.Errorf("bad hmvc %q", v)
			}
			hmvc = v
		case "fmvn":
			if !isNumber(v) {
				return "", "", fmt.Errorf("bad fmvn %q", v)
			}
			fmvn = v
		default:
			kept = append(kept, op)
		}
	}
	return strings.Join(board, " ") + " " + hmvc + " " + fmvn, strings.Join(kept, "; "), nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
