// Package terminal reads user input and inspects the attached terminal.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// MaxLineSize bounds a single pasted prompt
const MaxLineSize = 1024 * 1024

// LineTooLongError is returned for a line over the reader's limit. The
// rest of the line is discarded, so the next read starts on a fresh line.
type LineTooLongError struct {
	Limit int
}

func (e *LineTooLongError) Error() string {
	return fmt.Sprintf("input line exceeds %d bytes and was discarded", e.Limit)
}

// LineReader reads user input one line at a time
type LineReader struct {
	reader *bufio.Reader
	limit  int
}

// NewLineReader creates a reader over r limited to MaxLineSize per line
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderSize(r, MaxLineSize)
}

// NewLineReaderSize creates a reader over r with a custom line limit
func NewLineReaderSize(r io.Reader, limit int) *LineReader {
	return &LineReader{
		reader: bufio.NewReader(r),
		limit:  limit,
	}
}

// ReadLine reads a line of input with surrounding whitespace trimmed.
// It returns *LineTooLongError for an oversized line and io.EOF once
// input is exhausted.
func (l *LineReader) ReadLine() (string, error) {
	var (
		line    []byte
		read    int
		tooLong bool
	)

	for {
		chunk, err := l.reader.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			if len(line)+len(chunk) > l.limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && read > 0 {
				break
			}
			return "", err
		}
		break
	}

	if tooLong {
		return "", &LineTooLongError{Limit: l.limit}
	}
	return strings.TrimSpace(string(line)), nil
}

// IsTerminal checks if f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or fallback when unknown
func Width(f *os.File, fallback int) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
