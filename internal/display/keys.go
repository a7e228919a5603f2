package display

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"
)

// KeyReader turns lines typed on a terminal into key presses: the first
// rune of each non-empty line is one key.
type KeyReader struct {
	r    io.Reader
	keys chan rune
}

// NewKeyReader creates a reader over r (normally os.Stdin).
func NewKeyReader(r io.Reader) *KeyReader {
	return &KeyReader{r: r, keys: make(chan rune, 8)}
}

// Run scans input until EOF or ctx is done.
//
// A read from a terminal cannot be interrupted; on ctx done Run returns and
// the scanning goroutine exits with the process.
func (k *KeyReader) Run(ctx context.Context) error {
	eof := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(k.r)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			key, _ := utf8.DecodeRune(line)
			select {
			case k.keys <- key:
			default:
				slog.Debug("display: key dropped, buffer full", "key", string(key))
			}
		}
		eof <- sc.Err()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-eof:
		return err
	}
}

// PollKey waits up to timeout for a key. A zero timeout does not wait.
func (k *KeyReader) PollKey(timeout time.Duration) (rune, bool) {
	if timeout <= 0 {
		select {
		case key := <-k.keys:
			return key, true
		default:
			return 0, false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case key := <-k.keys:
		return key, true
	case <-t.C:
		return 0, false
	}
}
