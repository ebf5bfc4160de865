package smtp

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

// bodyTerminator is the five-byte sequence signalling end of DATA.
var bodyTerminator = []byte("\r\n.\r\n")

// ErrMaxLength is returned by Framer when either the command buffer or the
// body buffer exceeds the configured maximum without finding its
// terminator. The offending buffer has already been cleared.
var ErrMaxLength = errors.New("maximum receive length exceeded")

// ErrUnexpectedEof is returned when the stream ends with an unterminated
// line still buffered in command mode.
var ErrUnexpectedEof = errors.New("unexpected EOF mid-command")

// Framer turns a byte stream into CRLF-delimited command lines, and, once
// switched into body mode, into a single accumulating buffer with
// byte-exact terminator detection. It is owned exclusively by one
// Connection; no locking is needed.
type Framer struct {
	maxLength int

	// cmdBuf holds bytes not yet resolved into a complete command line.
	cmdBuf []byte

	bodyMode bool
	bodyBuf  []byte
}

// NewFramer returns a Framer bounding both modes by maxLength.
func NewFramer(maxLength int) *Framer {
	return &Framer{maxLength: maxLength}
}

// EnterBodyMode switches the Framer into body-accumulation mode. Any bytes
// already buffered in command mode belong to the body, not a command: a
// client is free to start sending the message body in the same write as
// the DATA line, so those bytes are moved into the body buffer rather
// than discarded.
func (f *Framer) EnterBodyMode() {
	f.bodyMode = true
	f.bodyBuf = append(f.bodyBuf[:0], f.cmdBuf...)
	f.cmdBuf = f.cmdBuf[:0]
}

// InBodyMode reports whether the Framer is currently accumulating a DATA
// body rather than framing command lines.
func (f *Framer) InBodyMode() bool {
	return f.bodyMode
}

// PendingCommandBytes reports how many bytes are buffered, unresolved, in
// command mode. Used to assert the STARTTLS no-pipelining invariant.
func (f *Framer) PendingCommandBytes() int {
	return len(f.cmdBuf)
}

// Feed appends chunk to the command buffer. The caller drains complete
// lines out with NextLine before feeding more.
func (f *Framer) Feed(chunk []byte) {
	f.cmdBuf = append(f.cmdBuf, chunk...)
}

// NextLine extracts one complete line from the command buffer, if one is
// available. Invalid UTF-8 is replaced per the utf8.Valid contract. Bytes
// belonging to later lines, or to a not-yet-terminated command, are left
// in the buffer untouched.
func (f *Framer) NextLine() (line string, ok bool) {
	idx := bytes.IndexByte(f.cmdBuf, '\n')
	if idx == -1 {
		return "", false
	}
	end := idx
	if end > 0 && f.cmdBuf[end-1] == '\r' {
		end--
	}
	line = toUTF8(f.cmdBuf[:end])
	f.cmdBuf = f.cmdBuf[idx+1:]
	return line, true
}

// CheckMaxLength reports ErrMaxLength if the command buffer, with every
// complete line already drained by NextLine, has grown past the
// configured maximum without a newline in sight. The buffer is cleared
// in that case.
func (f *Framer) CheckMaxLength() error {
	if len(f.cmdBuf) > f.maxLength {
		f.cmdBuf = f.cmdBuf[:0]
		return ErrMaxLength
	}
	return nil
}

// CheckEof is called when the underlying read returned zero bytes. It
// reports ErrUnexpectedEof if command-mode bytes are still buffered
// unterminated, and nil if the buffer was already empty (clean stream
// end).
func (f *Framer) CheckEof() error {
	if len(f.cmdBuf) > 0 {
		return ErrUnexpectedEof
	}
	return nil
}

// FeedBody appends chunk directly to the body buffer, bypassing line
// framing, and reports whether the five-byte terminator has now been
// seen. If the body exceeds maxLength before the terminator appears,
// ErrMaxLength is returned and the buffer is cleared.
func (f *Framer) FeedBody(chunk []byte) (done bool, err error) {
	f.bodyBuf = append(f.bodyBuf, chunk...)

	if len(f.bodyBuf) > f.maxLength {
		f.bodyBuf = f.bodyBuf[:0]
		return false, ErrMaxLength
	}

	return bytes.HasSuffix(f.bodyBuf, bodyTerminator), nil
}

// TakeBody returns the accumulated body buffer and leaves body mode. The
// buffer is moved out: the Framer drops its own reference to it, so the
// next EnterBodyMode starts from a fresh buffer.
func (f *Framer) TakeBody() []byte {
	body := f.bodyBuf
	f.bodyMode = false
	f.bodyBuf = nil
	return body
}

func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string([]rune(string(b)))
}
