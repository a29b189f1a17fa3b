// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package httpstream

// KnownHeader identifies the small set of header names whose values the
// message machine interprets on the fly (spec.md §4.5). Every other
// header name is hGeneral: its value is only handed to the embedder's
// OnHeaderValue callback, never inspected by the parser itself.
type KnownHeader uint8

const (
	hGeneral KnownHeader = iota
	hConnection
	hProxyConnection
	hContentLength
	hTransferEncoding
	hUpgrade
	hCount
)

// headerCandidates lists the lower-cased literal each KnownHeader is
// matched against. Matching happens one lower-cased byte at a time as
// the header name streams in (parser.go), so the table only needs to
// answer "what survives so far", never a whole-name compare.
var headerCandidates = [hCount][]byte{
	hGeneral:          nil,
	hConnection:       []byte("connection"),
	hProxyConnection:  []byte("proxy-connection"),
	hContentLength:    []byte("content-length"),
	hTransferEncoding: []byte("transfer-encoding"),
	hUpgrade:          []byte("upgrade"),
}

// headerInitMask returns the bitmask of known headers whose name starts
// with the lower-cased byte lc. Bit hGeneral is never set: "general" is
// the fallback once no known candidate survives, not a candidate itself.
func headerInitMask(lc byte) uint32 {
	var mask uint32
	for h := hConnection; h < hCount; h++ {
		name := headerCandidates[h]
		if len(name) > 0 && name[0] == lc {
			mask |= 1 << uint(h)
		}
	}
	return mask
}

// headerNarrow filters mask down to the known headers whose byte at
// position idx equals the lower-cased byte lc. A byte that eliminates
// every remaining candidate demotes the field to hGeneral (spec.md
// §4.5: "any character that deviates from every still-viable prefix
// demotes the state to general"); the caller detects that by mask
// becoming 0 and simply stops consulting it.
func headerNarrow(mask uint32, idx int, lc byte) uint32 {
	var out uint32
	for h := hConnection; h < hCount; h++ {
		if mask&(1<<uint(h)) == 0 {
			continue
		}
		name := headerCandidates[h]
		if idx < len(name) && name[idx] == lc {
			out |= 1 << uint(h)
		}
	}
	return out
}

// headerResolve returns the sole surviving known header if mask names
// exactly one candidate whose full length equals length, else hGeneral.
func headerResolve(mask uint32, length int) KnownHeader {
	if mask == 0 || mask&(mask-1) != 0 {
		return hGeneral
	}
	for h := hConnection; h < hCount; h++ {
		if mask == 1<<uint(h) {
			if len(headerCandidates[h]) == length {
				return h
			}
			return hGeneral
		}
	}
	return hGeneral
}

// toLower folds a single ASCII byte, matching the teacher's convention
// of using bytescase for multi-byte compares and a plain mask for single
// bytes on the hot path.
func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c | 0x20
	}
	return c
}

// maxContentLength is the bound contentLengthAppend's overflow check is
// computed from; no value it produces ever reaches it. This mirrors the
// original implementation's use of (U)INT64_MAX.
const maxContentLength = ^uint64(0)

// contentLengthAppend folds one more decimal digit into cur, the
// Content-Length value accumulated so far. It fails closed with
// ErrHdrInvalidCLen on overflow, testing against the bound *before*
// the multiply-and-add rather than after, so the check itself never
// overflows (spec.md §4.5: "a conservative (max−10)/10 test before
// each shift").
func contentLengthAppend(cur uint64, digit byte) (uint64, ErrorHdr) {
	if digit < '0' || digit > '9' {
		return cur, ErrHdrInvalidCLen
	}
	if cur > (maxContentLength-10)/10 {
		return cur, ErrHdrInvalidCLen
	}
	return cur*10 + uint64(digit-'0'), ErrHdrOk
}

// chunkedToken is the only Transfer-Encoding value the parser itself
// reacts to (spec.md §4.5); anything else is accepted but ignored, same
// as an unrecognized Connection token.
var chunkedToken = []byte("chunked")

// connection token flags, ORed together as comma-separated Connection
// values are matched one token at a time.
const (
	connKeepAlive uint8 = 1 << iota
	connClose
	connUpgrade
)

// connTokenLiterals backs the incremental, zero-copy Connection token
// matcher below: a single comma-separated token can span an Execute
// call boundary, so the parser narrows a bitmask one byte at a time
// exactly as methodInitMask/methodNarrow do for method names, rather
// than requiring the whole token materialized in one buffer.
var connTokenLiterals = [3][]byte{
	0: []byte("keep-alive"),
	1: []byte("close"),
	2: []byte("upgrade"),
}
var connTokenFlags = [3]uint8{connKeepAlive, connClose, connUpgrade}

// connTokenInit returns the bitmask of candidate Connection tokens
// whose first lower-cased byte is lc.
func connTokenInit(lc byte) uint32 {
	var mask uint32
	for i, lit := range connTokenLiterals {
		if lit[0] == lc {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// connTokenNarrow filters mask to candidates whose byte at idx equals
// lc, exactly like headerNarrow.
func connTokenNarrow(mask uint32, idx int, lc byte) uint32 {
	var out uint32
	for i, lit := range connTokenLiterals {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if idx < len(lit) && lit[idx] == lc {
			out |= 1 << uint(i)
		}
	}
	return out
}

// connTokenResolve returns the flag for the sole surviving candidate if
// its length matches length, else 0 (an unrecognized token, accepted
// but ignored per spec.md §4.5).
func connTokenResolve(mask uint32, length int) uint8 {
	if mask == 0 || mask&(mask-1) != 0 {
		return 0
	}
	for i, lit := range connTokenLiterals {
		if mask == 1<<uint(i) && len(lit) == length {
			return connTokenFlags[i]
		}
	}
	return 0
}

