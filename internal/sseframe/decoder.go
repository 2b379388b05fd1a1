// Package sseframe splits a server-sent event byte stream into the payloads of its `data:` lines.
//
// Unlike a full SSE parser, every `data:` line is a payload on its own: the agent runtime emits one
// JSON document per line and several of them may share a frame.
package sseframe

import (
	"bytes"
	"errors"
	"io"
	"iter"
)

const dataPrefix = "data:"

var frameSeparator = []byte("\n\n")

// Decoder incrementally splits bytes into frames. Bytes of an incomplete frame are kept until the
// separator arrives or Flush is called. The zero value is ready to use.
type Decoder struct {
	pending []byte
}

// Feed appends chunk to the pending bytes and returns the payloads of every frame the chunk
// completed, in stream order.
func (d *Decoder) Feed(chunk []byte) []string {
	d.pending = append(d.pending, chunk...)

	var payloads []string
	for {
		idx := bytes.Index(d.pending, frameSeparator)
		if idx < 0 {
			break
		}
		payloads = appendPayloads(payloads, d.pending[:idx])
		d.pending = d.pending[idx+len(frameSeparator):]
	}

	// Compact so a long stream doesn't pin every frame it has ever seen.
	if len(d.pending) == 0 {
		d.pending = nil
	} else if cap(d.pending) > 4*len(d.pending) && cap(d.pending) > 4096 {
		d.pending = bytes.Clone(d.pending)
	}

	return payloads
}

// Flush returns the payloads of the residual, unterminated content and resets the decoder.
func (d *Decoder) Flush() []string {
	rest := d.pending
	d.pending = nil
	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	return appendPayloads(nil, rest)
}

func appendPayloads(payloads []string, frame []byte) []string {
	for _, line := range bytes.Split(frame, []byte("\n")) {
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		payloads = append(payloads, string(payload))
	}
	return payloads
}

// Read returns a sequence over the payloads of r. Reading suspends between payloads and stops as soon
// as the consumer stops iterating. A read failure is yielded once, as the last element.
func Read(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var dec Decoder
		buf := make([]byte, 32*1024)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, p := range dec.Feed(buf[:n]) {
					if !yield(p, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", err)
				return
			}
		}

		for _, p := range dec.Flush() {
			if !yield(p, nil) {
				return
			}
		}
	}
}
