// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package httpstream

import (
	"bytes"
)

// HTTPMethod is the numeric request method, following the teacher's
// HTTPMethod type (parse_method.go) but closed over the method set
// spec.md §4.3 calls out by name (pathological, webdav, subversion and
// upnp groups, plus the PATCH/PURGE/MKCALENDAR additions).
type HTTPMethod uint8

// method constants; MOther is returned by the standalone lookup for an
// unrecognized name (used outside Execute, e.g. by tests and tracing
// tools). Execute itself never returns MOther: a byte sequence that
// does not match any candidate is rejected with ErrHdrInvalidMethod.
const (
	MUndef HTTPMethod = iota
	MGet
	MHead
	MPost
	MPut
	MDelete
	MConnect
	MOptions
	MTrace
	MCopy
	MLock
	MMkcol
	MMove
	MPropfind
	MProppatch
	MUnlock
	MReport
	MMkactivity
	MCheckout
	MMerge
	MMsearch
	MNotify
	MSubscribe
	MUnsubscribe
	MPatch
	MPurge
	MMkcalendar
	MOther // must be last
)

var method2Name = [MOther + 1][]byte{
	MUndef:       []byte(""),
	MGet:         []byte("GET"),
	MHead:        []byte("HEAD"),
	MPost:        []byte("POST"),
	MPut:         []byte("PUT"),
	MDelete:      []byte("DELETE"),
	MConnect:     []byte("CONNECT"),
	MOptions:     []byte("OPTIONS"),
	MTrace:       []byte("TRACE"),
	MCopy:        []byte("COPY"),
	MLock:        []byte("LOCK"),
	MMkcol:       []byte("MKCOL"),
	MMove:        []byte("MOVE"),
	MPropfind:    []byte("PROPFIND"),
	MProppatch:   []byte("PROPPATCH"),
	MUnlock:      []byte("UNLOCK"),
	MReport:      []byte("REPORT"),
	MMkactivity:  []byte("MKACTIVITY"),
	MCheckout:    []byte("CHECKOUT"),
	MMerge:       []byte("MERGE"),
	MMsearch:     []byte("M-SEARCH"),
	MNotify:      []byte("NOTIFY"),
	MSubscribe:   []byte("SUBSCRIBE"),
	MUnsubscribe: []byte("UNSUBSCRIBE"),
	MPatch:       []byte("PATCH"),
	MPurge:       []byte("PURGE"),
	MMkcalendar:  []byte("MKCALENDAR"),
	MOther:       []byte("<unknown>"),
}

// Name returns the ASCII method name, following the teacher's
// Name()/String() convention on HTTPMethod.
func (m HTTPMethod) Name() []byte {
	if m > MOther {
		return method2Name[MUndef]
	}
	return method2Name[m]
}

// String implements the Stringer interface.
func (m HTTPMethod) String() string {
	return string(m.Name())
}

// MethodName returns the ASCII name for a method; MOther yields
// "<unknown>", MUndef and values past MOther yield "". This is the
// package-level form of the spec's method_name() introspection call.
func MethodName(m HTTPMethod) string {
	return m.String()
}

// MethodFromName resolves a complete, already-delimited method token to
// its numeric value, for standalone use (tests, tracing). The compare is
// byte-for-byte, so it is case-sensitive. Returns MOther if unrecognized. Execute() uses the incremental candidate-mask matcher
// below instead, since it must reject bad bytes before the full token is
// available.
func MethodFromName(name []byte) HTTPMethod {
	for m := MGet; m < MOther; m++ {
		if bytes.Equal(name, method2Name[m]) {
			return m
		}
	}
	return MOther
}

// The incremental method recognizer below (methodInitMask/methodNarrow/
// methodResolve) implements spec.md §4.3's method recognizer: a fixed
// table of candidate names is narrowed byte by byte using a bitmask (one
// bit per candidate) rather than a hand-written nested switch, so that an
// invalid byte at any position is rejected immediately without waiting
// for the separating space. This mirrors the "compact discriminator
// table" the spec calls for while staying allocation-free: the whole
// search state is one uint32 plus the index already carried in
// Parser.index.

// candidate method names, in the order their bit position is assigned.
// Methods are compared byte-for-byte against these literals; lower-case
// or mixed-case method tokens are never valid (RFC 7230 method tokens
// are case-sensitive).
var methodCandidates = func() []HTTPMethod {
	c := make([]HTTPMethod, 0, MOther-1)
	for m := MGet; m < MOther; m++ {
		c = append(c, m)
	}
	return c
}()

// methodInitMask returns the bitmask of candidates whose first byte is c.
// A NUL byte or any byte that starts no candidate yields mask==0, which
// the caller must treat as ErrHdrInvalidMethod.
func methodInitMask(c byte) uint32 {
	var mask uint32
	for i, m := range methodCandidates {
		if len(method2Name[m]) > 0 && method2Name[m][0] == c {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// methodNarrow filters mask to the candidates whose byte at position idx
// equals c. Returns the narrowed mask.
func methodNarrow(mask uint32, idx int, c byte) uint32 {
	var out uint32
	for i, m := range methodCandidates {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		name := method2Name[m]
		if idx < len(name) && name[idx] == c {
			out |= 1 << uint(i)
		}
	}
	return out
}

// methodResolve returns the sole candidate for mask if exactly one bit
// is set and its name length equals length, else MUndef.
func methodResolve(mask uint32, length int) HTTPMethod {
	if mask == 0 || (mask&(mask-1)) != 0 {
		return MUndef
	}
	for i, m := range methodCandidates {
		if mask == (1 << uint(i)) {
			if len(method2Name[m]) == length {
				return m
			}
			return MUndef
		}
	}
	return MUndef
}
