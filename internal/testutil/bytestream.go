// Package testutil holds helpers shared by fuzz and property tests.
package testutil

import "encoding/binary"

// ByteStream decodes test decisions from fuzz input, front to back.
//
// An exhausted stream keeps returning zero values, so any input decodes to
// a finite, deterministic sequence.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, maxVal) from one byte.
func (s *ByteStream) NextInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	return int(s.NextByte()) % maxVal
}

// NextSize returns a value in [0, maxVal) from two bytes, for lengths and
// offsets that span several blocks.
func (s *ByteStream) NextSize(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	var b [2]byte
	b[0] = s.NextByte()
	b[1] = s.NextByte()

	return int(binary.LittleEndian.Uint16(b[:])) % maxVal
}

// NextBool returns a boolean from the low bit of the next byte.
func (s *ByteStream) NextBool() bool {
	return s.NextByte()&1 == 1
}

// Pick returns one of choices.
func (s *ByteStream) Pick(choices []string) string {
	if len(choices) == 0 {
		return ""
	}

	return choices[s.NextInt(len(choices))]
}

// NextPayload returns n bytes filled with a repeating pattern seeded by
// the next byte, so payloads differ without draining the stream.
func (s *ByteStream) NextPayload(n int) []byte {
	if n <= 0 {
		return nil
	}

	seed := s.NextByte()
	out := make([]byte, n)

	for i := range out {
		out[i] = seed + byte(i*7)
	}

	return out
}
