package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Wire format: ASCII decimal payload length, a two byte delimiter, then
// exactly that many payload bytes of UTF-8 JSON.
const (
	FrameDelimiter = "::"

	// MaxFrameSize is a defensive bound; the protocol itself does not
	// enforce one
	MaxFrameSize = 1 << 20
)

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// EncodeFrame serializes the envelope and prefixes it with its byte length
func EncodeFrame(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	if len(payload) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	prefix := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(prefix)+len(FrameDelimiter)+len(payload))
	out = append(out, prefix...)
	out = append(out, FrameDelimiter...)
	out = append(out, payload...)

	return out, nil
}

// DecodeEnvelope parses one complete frame payload
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrInvalidEnvelope
	}
	return env, nil
}

// FrameDecoder accumulates transport bytes and yields complete frames. A
// frame is only handed out once fully received; partial data stays buffered
// for the next read. A corrupt length prefix discards the buffer through the
// delimiter and scanning resumes, it never fails the decoder.
type FrameDecoder struct {
	buf []byte
}

// Feed appends newly read bytes and returns every complete frame payload
// now available, in arrival order
func (d *FrameDecoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)

	var frames [][]byte
	for {
		idx := bytes.Index(d.buf, []byte(FrameDelimiter))
		if idx < 0 {
			// No delimiter yet. A buffer beyond any representable
			// prefix is garbage, drop it.
			if len(d.buf) > MaxFrameSize {
				d.buf = nil
			}
			return frames
		}

		length, err := strconv.Atoi(string(d.buf[:idx]))
		if err != nil || length < 0 || length > MaxFrameSize {
			// Corrupt prefix: discard through the delimiter and
			// keep scanning
			d.buf = d.buf[idx+len(FrameDelimiter):]
			continue
		}

		start := idx + len(FrameDelimiter)
		if len(d.buf) < start+length {
			return frames
		}

		frame := make([]byte, length)
		copy(frame, d.buf[start:start+length])
		frames = append(frames, frame)

		d.buf = d.buf[start+length:]
	}
}

// Buffered returns the number of bytes retained for the next read
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}
