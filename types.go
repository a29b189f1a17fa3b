// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package httpstream implements an incremental, streaming HTTP/1.x message
// parser. It consumes arbitrary contiguous byte slices of a message stream
// and emits structural events (method, URL, status, header field/value,
// body fragments, message boundaries) to an embedder through a Settings
// callback table. The parser never buffers the input: slices passed to
// Execute are only referenced by the callbacks invoked during that same
// call.
package httpstream

// OffsT is the type used for offsets and lengths in PField. uint32 keeps
// a PField at 8 bytes while comfortably covering the header-region size
// cap (default 80KiB) and any realistic single-buffer URL.
type OffsT uint32

// PField is a zero-copy reference into a caller-owned buffer: an offset
// and a length. It never holds a copy of the bytes it describes.
type PField struct {
	Offs OffsT
	Len  OffsT
}

// Set points p at buf[start:end). end is one past the last character.
func (p *PField) Set(start, end int) {
	if end < start {
		panic("httpstream: invalid PField range")
	}
	p.Offs = OffsT(start)
	p.Len = OffsT(end - start)
}

// Reset clears p to the empty field.
func (p *PField) Reset() {
	*p = PField{}
}

// Extend grows p so that it ends at newEnd (newEnd is one past the last
// character).
func (p *PField) Extend(newEnd int) {
	if newEnd < int(p.Offs) {
		panic("httpstream: invalid PField end offset")
	}
	p.Len = OffsT(newEnd) - p.Offs
}

// Empty returns true if p has zero length.
func (p PField) Empty() bool {
	return p.Len == 0
}

// EndOffs returns the offset of the first byte after p.
func (p PField) EndOffs() int {
	return int(p.Offs) + int(p.Len)
}

// Get returns the byte slice of buf described by p.
func (p PField) Get(buf []byte) []byte {
	return buf[p.Offs : p.Offs+p.Len]
}
