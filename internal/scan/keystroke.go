package scan

import (
	"context"
	"strings"
	"time"
)

const (
	KeyEnter  = '\r'
	KeyEscape = 0x1b
)

// KeystrokeBuffer separates hardware scanner input from human typing. A
// scanner emits characters faster than the interkey limit; slower input
// restarts the buffer. The buffer is emitted on Enter or after an idle gap.
type KeystrokeBuffer struct {
	Interkey time.Duration
	Idle     time.Duration
	MinLen   int
	MaxLen   int

	buf  strings.Builder
	last time.Time
}

func NewKeystrokeBuffer() *KeystrokeBuffer {
	return &KeystrokeBuffer{
		Interkey: 50 * time.Millisecond,
		Idle:     100 * time.Millisecond,
		MinLen:   3,
		MaxLen:   50,
	}
}

// Key feeds one keystroke. It returns a code when the keystroke completes one.
func (b *KeystrokeBuffer) Key(r rune, at time.Time) (string, bool) {
	switch r {
	case KeyEnter, '\n':
		if b.buf.Len() < b.MinLen {
			return "", false
		}
		return b.take()
	case KeyEscape:
		b.Reset()
		return "", false
	}
	if b.buf.Len() > 0 && at.Sub(b.last) >= b.Interkey {
		b.buf.Reset()
	}
	b.buf.WriteRune(r)
	b.last = at
	return "", false
}

// Flush emits the buffer once it has been idle long enough.
func (b *KeystrokeBuffer) Flush(at time.Time) (string, bool) {
	if b.buf.Len() == 0 || at.Sub(b.last) < b.Idle {
		return "", false
	}
	return b.take()
}

func (b *KeystrokeBuffer) Pending() bool {
	return b.buf.Len() > 0
}

func (b *KeystrokeBuffer) Reset() {
	b.buf.Reset()
	b.last = time.Time{}
}

func (b *KeystrokeBuffer) take() (string, bool) {
	code := strings.TrimSpace(b.buf.String())
	b.Reset()
	if len(code) < b.MinLen || len(code) > b.MaxLen {
		return "", false
	}
	return code, true
}

// Run reads keystrokes until ctx is done or keys is closed and calls emit for
// each complete code.
func (b *KeystrokeBuffer) Run(ctx context.Context, keys <-chan rune, emit func(string)) {
	idle := time.NewTimer(b.Idle)
	idle.Stop()
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-keys:
			if !ok {
				if code, ok := b.take(); ok {
					emit(code)
				}
				return
			}
			if code, ok := b.Key(r, time.Now()); ok {
				emit(code)
			}
			if b.Pending() {
				idle.Reset(b.Idle)
			}
		case now := <-idle.C:
			if code, ok := b.Flush(now); ok {
				emit(code)
			}
		}
	}
}
