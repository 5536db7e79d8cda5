package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Delimiter terminates every encoded message on the wire.
const Delimiter = '\n'

// Encode serializes an envelope to a single delimiter-terminated record.
// Encoded JSON never contains a raw newline, so the record is self-delimited.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: cannot encode %s message: %w", env.Type, err)
	}
	return append(data, Delimiter), nil
}

// Decode parses one complete record (without its delimiter) into an envelope.
func Decode(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, &DecodeError{Line: string(line), Err: err}
	}
	return env, nil
}

// DecodeError reports a single malformed record. The stream itself stays
// usable; callers answer with an ERROR_RESPONSE and keep reading.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: malformed message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Framer splits a byte stream into whole messages, buffering the incomplete
// trailing segment across reads. Not safe for concurrent use; each connection
// owns its framer.
type Framer struct {
	buf bytes.Buffer
}

// NewFramer returns an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Push appends freshly read bytes and returns every complete envelope now
// available, in order. Malformed segments are reported in errs at the
// matching position count; well-formed segments after a bad one are still
// delivered.
func (f *Framer) Push(data []byte) (envs []Envelope, errs []error) {
	f.buf.Write(data)

	for {
		raw := f.buf.Bytes()
		idx := bytes.IndexByte(raw, Delimiter)
		if idx < 0 {
			return envs, errs
		}

		line := make([]byte, idx)
		copy(line, raw[:idx])
		f.buf.Next(idx + 1)

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		env, err := Decode(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		envs = append(envs, env)
	}
}

// Pending returns the number of buffered bytes that do not yet form a
// complete message. A graceful peer close with Pending()==0 is a clean
// end of stream, never a decode error.
func (f *Framer) Pending() int {
	return f.buf.Len()
}
