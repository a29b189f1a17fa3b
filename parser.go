// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package httpstream

// ParserType selects which grammar Execute expects and the initial
// state a Parser resets to after every message (spec.md §3 "type").
type ParserType uint8

const (
	PRequest ParserType = iota
	PResponse
	PBoth // either: peeks at the first bytes to tell request from response
)

// msgState is the message-framing DFA's state (spec.md §4.2). States
// are grouped by role in the order the table lists them; inHeaderRegion
// relies on sHeadersDone being the last header-group state.
type msgState uint8

const (
	sStartReq msgState = iota
	sStartRes
	sStartReqOrRes
	sReqOrResH

	sReqMethod
	sReqSpacesBeforeURL
	sReqURL
	sReqHTTPExpectH
	sReqHTTP_H
	sReqHTTP_HT
	sReqHTTP_HTT
	sReqHTTP_HTTP
	sReqFirstHTTPMajor
	sReqHTTPMajor
	sReqFirstHTTPMinor
	sReqHTTPMinor
	sReqLineAlmostDone

	sResH
	sResHT
	sResHTT
	sResHTTP
	sResFirstHTTPMajor
	sResHTTPMajor
	sResFirstHTTPMinor
	sResHTTPMinor
	sResFirstStatusCode
	sResStatusCode
	sResStatusStart
	sResStatus
	sResLineAlmostDone

	sHeaderFieldStart
	sHeaderField
	sHeaderValueDiscardWS
	sHeaderValueDiscardLWS
	sHeaderValueDiscardWSAlmostDone
	sHeaderValueStart
	sHeaderValue
	sHeaderValueLWS
	sHeaderAlmostDone
	sHeadersAlmostDone
	sHeadersDone

	sBodyIdentity
	sBodyIdentityEOF
	sMessageDone

	sChunkSizeStart
	sChunkSize
	sChunkParameters
	sChunkSizeAlmostDone
	sChunkData
	sChunkDataAlmostDone
	sChunkDataDone

	// sDead is the terminal state spec.md §4.2 names: absorbs CR/LF
	// silently, any other byte is closed_connection. postMessageState
	// never returns it on its own (see that function's doc comment); it
	// is only reachable if a future caller-facing teardown hook forces
	// it after inspecting ShouldKeepAlive itself.
	sDead
)

func inHeaderRegion(st msgState) bool { return st <= sHeadersDone }

func initialState(t ParserType) msgState {
	switch t {
	case PRequest:
		return sStartReq
	case PResponse:
		return sStartRes
	default:
		return sStartReqOrRes
	}
}

// Parser flags (spec.md §3 "flags").
const (
	fChunked uint16 = 1 << iota
	fConnKeepAlive
	fConnClose
	fConnUpgrade
	fTrailing
	fUpgrade
	fSkipBody
	fContentLengthSeen
)

// mark kinds: at most one of these may be open at a time (spec.md §3
// "Marks"). Body data is never held across an Execute call (spec.md
// §4.6: one on_body call per slice of available bytes), so it needs no
// persistent mark of its own.
const (
	markNone uint8 = iota
	markHeaderField
	markHeaderValue
	markURL
	markStatus
)

// ContentLengthUnset is the sentinel for "no Content-Length seen yet".
const ContentLengthUnset = ^uint64(0)

const defaultMaxHeaderSize = 80 * 1024

// Parser is the single mutable record threaded through Execute calls
// (spec.md §3). Zero value is not ready to use; call Init or NewParser.
type Parser struct {
	Type          ParserType
	Lenient       bool   // relax URL/header-value/line-terminator rules
	MaxHeaderSize uint32 // DoS cap on the header region, default 80KiB

	HTTPMajor     uint16
	HTTPMinor     uint16
	StatusCode    uint16
	Method        HTTPMethod
	ContentLength uint64
	Upgrade       bool
	ErrorCode     ErrorHdr
	Paused        bool
	Data          interface{} // opaque embedder cookie; never touched

	state       msgState
	urlState    urlState
	headerState KnownHeader

	methodMask     uint32
	headerNameMask uint32
	index          int

	flags uint16
	nread uint32

	clAccum uint64

	teIdx int
	teOK  bool

	connMask uint32
	connIdx  int
	connTok  bool // true once inside a token (not leading OWS)

	chunkSize uint64

	openMark uint8
}

// NewParser allocates and initializes a Parser of the given type.
func NewParser(t ParserType) *Parser {
	p := &Parser{}
	p.Init(t)
	return p
}

// Init (re)initializes p for a fresh connection, discarding all state.
func (p *Parser) Init(t ParserType) {
	*p = Parser{
		Type:          t,
		MaxHeaderSize: defaultMaxHeaderSize,
		ContentLength: ContentLengthUnset,
		state:         initialState(t),
	}
}

// resetMessage clears the per-message fields at on_message_begin, i.e.
// every field that must not leak from one pipelined message to the next.
func (p *Parser) resetMessage() {
	p.flags = 0
	p.ContentLength = ContentLengthUnset
	p.chunkSize = 0
	p.HTTPMajor = 0
	p.HTTPMinor = 0
	p.StatusCode = 0
	p.Method = MUndef
	p.Upgrade = false
	p.index = 0
	p.methodMask = 0
	p.headerNameMask = 0
	p.headerState = hGeneral
	p.clAccum = 0
	p.nread = 0
}

// Pause toggles the parser between ok and paused (spec.md §4.8).
// Calling it while the parser is latched on a non-paused error is a
// programming error and is ignored.
func (p *Parser) Pause(pause bool) {
	if p.ErrorCode != ErrHdrOk && p.ErrorCode != ErrHdrPaused {
		return
	}
	if pause {
		p.Paused = true
		if p.ErrorCode == ErrHdrOk {
			p.ErrorCode = ErrHdrPaused
		}
		return
	}
	p.Paused = false
	if p.ErrorCode == ErrHdrPaused {
		p.ErrorCode = ErrHdrOk
	}
}

// BodyIsFinal reports whether the parser has reached message_done.
func (p *Parser) BodyIsFinal() bool { return p.state == sMessageDone }

// needsEOF reports whether the current response has no other way to
// frame its body than connection close (spec.md §4.6). Always false
// for requests.
func (p *Parser) needsEOF() bool {
	if p.Type == PRequest {
		return false
	}
	if p.StatusCode/100 == 1 || p.StatusCode == 204 || p.StatusCode == 304 {
		return false
	}
	if p.flags&fSkipBody != 0 {
		return false
	}
	if p.flags&fChunked != 0 {
		return false
	}
	return p.ContentLength == ContentLengthUnset
}

// ShouldKeepAlive reports whether the connection should stay open after
// the current message completes (spec.md §4.8).
func (p *Parser) ShouldKeepAlive() bool {
	var ka bool
	if p.HTTPMajor > 1 || (p.HTTPMajor == 1 && p.HTTPMinor >= 1) {
		ka = p.flags&fConnClose == 0
	} else {
		ka = p.flags&fConnKeepAlive != 0
	}
	if ka && p.needsEOF() {
		return false
	}
	return ka
}

// postMessageState returns the state entered once message_done is left
// behind. It always re-arms for the next message: ShouldKeepAlive is an
// introspection hint for the embedder (should it keep reading from the
// transport at all?), not something Execute enforces by refusing to
// parse a pipelined message that follows one with keep-alive false. A
// pipelined fixture (spec.md §8 scenario 8) can perfectly well contain a
// message that hints connection-close in the middle of the stream; the
// byte after it is still a real message and must be parsed as one,
// matching original_source/http_parser.c's non-strict-build NEW_MESSAGE()
// (start_state unconditionally, never s_dead).
func (p *Parser) postMessageState() msgState {
	return initialState(p.Type)
}

// Execute feeds buf to the parser, invoking s's callbacks as it
// recognizes structure, and returns the number of bytes consumed
// (spec.md §4.1). A len(buf) == 0 call signals end-of-input. The error
// kind, if any, is latched on p.ErrorCode; once non-ok, Execute is a
// no-op returning 0 until the parser is reinitialized.
func (p *Parser) Execute(s *Settings, buf []byte) int {
	if p.ErrorCode != ErrHdrOk {
		return 0
	}
	n := len(buf)
	if n == 0 {
		return p.executeEOF(s)
	}

	markKind := p.openMark
	markStart := 0
	p.openMark = markNone

	flush := func(kind uint8, end int) ErrorHdr {
		if markKind != kind {
			return ErrHdrOk
		}
		data := buf[markStart:end]
		markKind = markNone
		switch kind {
		case markHeaderField:
			return s.callHeaderField(p, data)
		case markHeaderValue:
			return s.callHeaderValue(p, data)
		case markURL:
			return s.callURL(p, data)
		case markStatus:
			return s.callStatus(p, data)
		}
		return ErrHdrOk
	}
	openMarkAt := func(kind uint8, i int) {
		if markKind == markNone {
			markKind = kind
			markStart = i
		}
	}

	i := 0
	for i < n {
		switch p.state {
		case sBodyIdentity:
			take := n - i
			if uint64(take) > p.ContentLength {
				take = int(p.ContentLength)
			}
			if take > 0 {
				if err := s.callBody(p, buf[i:i+take]); err != ErrHdrOk {
					p.ErrorCode = err
					return i + take
				}
				p.ContentLength -= uint64(take)
				i += take
			}
			if p.ContentLength == 0 {
				if err := s.callMessageComplete(p); err != ErrHdrOk {
					p.ErrorCode = err
					return i
				}
				p.state = sMessageDone
			}
			continue
		case sBodyIdentityEOF:
			take := n - i
			if take > 0 {
				if err := s.callBody(p, buf[i:i+take]); err != ErrHdrOk {
					p.ErrorCode = err
					return i + take
				}
				i += take
			}
			continue
		case sChunkData:
			take := n - i
			if uint64(take) > p.chunkSize {
				take = int(p.chunkSize)
			}
			if take > 0 {
				if err := s.callBody(p, buf[i:i+take]); err != ErrHdrOk {
					p.ErrorCode = err
					return i + take
				}
				p.chunkSize -= uint64(take)
				i += take
			}
			if p.chunkSize == 0 {
				p.state = sChunkDataAlmostDone
			}
			continue
		}

		c := buf[i]
		oldState := p.state
		advance := true
		var errCode ErrorHdr

		switch p.state {
		case sDead:
			if c != '\r' && c != '\n' {
				errCode = ErrHdrClosedConn
			}

		case sMessageDone:
			p.state = p.postMessageState()
			advance = false

		case sStartReq, sStartRes, sStartReqOrRes:
			if c == '\r' || c == '\n' {
				break
			}
			p.resetMessage()
			if cbErr := s.callMessageBegin(p); cbErr != ErrHdrOk {
				p.ErrorCode = cbErr
				return i + 1
			}
			switch oldState {
			case sStartReq:
				p.Type = PRequest
				mask := methodInitMask(c)
				if mask == 0 || c == 0 {
					errCode = ErrHdrInvalidMethod
					break
				}
				p.methodMask = mask
				p.index = 1
				p.state = sReqMethod
			case sStartRes:
				p.Type = PResponse
				if c != 'H' {
					errCode = ErrHdrInvalidConst
					break
				}
				p.state = sResH
			case sStartReqOrRes:
				if c != 'H' {
					mask := methodInitMask(c)
					if mask == 0 {
						errCode = ErrHdrInvalidMethod
						break
					}
					p.Type = PRequest
					p.methodMask = mask
					p.index = 1
					p.state = sReqMethod
					break
				}
				p.state = sReqOrResH
			}

		case sReqOrResH:
			switch c {
			case 'E':
				p.Type = PRequest
				p.methodMask = methodNarrow(methodInitMask('H'), 1, 'E')
				p.index = 2
				p.state = sReqMethod
			case 'T':
				p.Type = PResponse
				p.state = sResHT
			default:
				errCode = ErrHdrInvalidConst
			}

		case sReqMethod:
			if c == ' ' {
				m := methodResolve(p.methodMask, p.index)
				if m == MUndef {
					errCode = ErrHdrInvalidMethod
					break
				}
				p.Method = m
				p.state = sReqSpacesBeforeURL
				break
			}
			if c == 0 {
				errCode = ErrHdrInvalidMethod
				break
			}
			mask := methodNarrow(p.methodMask, p.index, c)
			if mask == 0 {
				errCode = ErrHdrInvalidMethod
				break
			}
			p.methodMask = mask
			p.index++

		case sReqSpacesBeforeURL:
			if c == ' ' {
				break
			}
			st, ok := urlInitState(c, p.Method == MConnect)
			if !ok {
				errCode = ErrHdrInvalidURL
				break
			}
			p.urlState = st
			p.state = sReqURL
			openMarkAt(markURL, i)

		case sReqURL:
			if c == ' ' || c == '\r' || c == '\n' {
				if err := flush(markURL, i); err != ErrHdrOk {
					errCode = err
					break
				}
				if !urlStateAcceptable(p.urlState, p.Method == MConnect) {
					errCode = ErrHdrInvalidURL
					break
				}
				if c != ' ' {
					errCode = ErrHdrInvalidConst
					break
				}
				p.state = sReqHTTPExpectH
				break
			}
			st, _, ok := urlStep(p.urlState, c, p.Method == MConnect, !p.Lenient)
			if !ok {
				errCode = ErrHdrInvalidURL
				break
			}
			p.urlState = st

		case sReqHTTPExpectH:
			if c == ' ' {
				break
			}
			if c != 'H' {
				errCode = ErrHdrInvalidConst
				break
			}
			p.state = sReqHTTP_H
		case sReqHTTP_H, sResH:
			if c != 'T' {
				errCode = ErrHdrInvalidConst
				break
			}
			if p.state == sReqHTTP_H {
				p.state = sReqHTTP_HT
			} else {
				p.state = sResHT
			}
		case sReqHTTP_HT, sResHT:
			if c != 'T' {
				errCode = ErrHdrInvalidConst
				break
			}
			if p.state == sReqHTTP_HT {
				p.state = sReqHTTP_HTT
			} else {
				p.state = sResHTT
			}
		case sReqHTTP_HTT, sResHTT:
			if c != 'P' {
				errCode = ErrHdrInvalidConst
				break
			}
			if p.state == sReqHTTP_HTT {
				p.state = sReqHTTP_HTTP
			} else {
				p.state = sResHTTP
			}
		case sReqHTTP_HTTP, sResHTTP:
			if c != '/' {
				errCode = ErrHdrInvalidConst
				break
			}
			if p.state == sReqHTTP_HTTP {
				p.state = sReqFirstHTTPMajor
			} else {
				p.state = sResFirstHTTPMajor
			}

		case sReqFirstHTTPMajor, sResFirstHTTPMajor:
			if c < '0' || c > '9' {
				errCode = ErrHdrInvalidVersion
				break
			}
			p.HTTPMajor = uint16(c - '0')
			if p.state == sReqFirstHTTPMajor {
				p.state = sReqHTTPMajor
			} else {
				p.state = sResHTTPMajor
			}
		case sReqHTTPMajor, sResHTTPMajor:
			switch {
			case c >= '0' && c <= '9':
				nv := p.HTTPMajor*10 + uint16(c-'0')
				if nv > 999 {
					errCode = ErrHdrInvalidVersion
					break
				}
				p.HTTPMajor = nv
			case c == '.':
				if p.state == sReqHTTPMajor {
					p.state = sReqFirstHTTPMinor
				} else {
					p.state = sResFirstHTTPMinor
				}
			default:
				errCode = ErrHdrInvalidVersion
			}
		case sReqFirstHTTPMinor, sResFirstHTTPMinor:
			if c < '0' || c > '9' {
				errCode = ErrHdrInvalidVersion
				break
			}
			p.HTTPMinor = uint16(c - '0')
			if p.state == sReqFirstHTTPMinor {
				p.state = sReqHTTPMinor
			} else {
				p.state = sResHTTPMinor
			}
		case sReqHTTPMinor:
			switch {
			case c >= '0' && c <= '9':
				nv := p.HTTPMinor*10 + uint16(c-'0')
				if nv > 999 {
					errCode = ErrHdrInvalidVersion
					break
				}
				p.HTTPMinor = nv
			case c == '\r':
				p.state = sReqLineAlmostDone
			case c == '\n' && p.Lenient:
				p.state = sHeaderFieldStart
			default:
				errCode = ErrHdrInvalidVersion
			}
		case sResHTTPMinor:
			switch {
			case c >= '0' && c <= '9':
				nv := p.HTTPMinor*10 + uint16(c-'0')
				if nv > 999 {
					errCode = ErrHdrInvalidVersion
					break
				}
				p.HTTPMinor = nv
			case c == ' ':
				p.state = sResFirstStatusCode
			default:
				errCode = ErrHdrInvalidVersion
			}
		case sReqLineAlmostDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			p.state = sHeaderFieldStart

		case sResFirstStatusCode:
			switch {
			case c == ' ':
				// open question (spec.md §9): the most recent source
				// variant tolerates a leading space here; follow it.
			case c >= '0' && c <= '9':
				p.StatusCode = uint16(c - '0')
				p.state = sResStatusCode
			default:
				errCode = ErrHdrInvalidStatus
			}
		case sResStatusCode:
			switch {
			case c >= '0' && c <= '9':
				nv := p.StatusCode*10 + uint16(c-'0')
				if nv > 999 {
					errCode = ErrHdrInvalidStatus
					break
				}
				p.StatusCode = nv
			case c == ' ':
				p.state = sResStatusStart
			case c == '\r':
				p.state = sResLineAlmostDone
			case c == '\n' && p.Lenient:
				p.state = sHeaderFieldStart
			default:
				errCode = ErrHdrInvalidStatus
			}
		case sResStatusStart:
			switch {
			case c == '\r':
				p.state = sResLineAlmostDone
			case c == '\n' && p.Lenient:
				p.state = sHeaderFieldStart
			default:
				openMarkAt(markStatus, i)
				p.state = sResStatus
			}
		case sResStatus:
			switch {
			case c == '\r':
				if err := flush(markStatus, i); err != ErrHdrOk {
					errCode = err
					break
				}
				p.state = sResLineAlmostDone
			case c == '\n' && p.Lenient:
				if err := flush(markStatus, i); err != ErrHdrOk {
					errCode = err
					break
				}
				p.state = sHeaderFieldStart
			}
		case sResLineAlmostDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			p.state = sHeaderFieldStart

		case sHeaderFieldStart:
			switch {
			case c == '\r':
				p.state = sHeadersAlmostDone
			case c == '\n' && p.Lenient:
				st, err := p.finishHeaders(s)
				if err != ErrHdrOk {
					errCode = err
					break
				}
				p.state = st
			default:
				if !isTokenCharLenient(c, p.Lenient) {
					errCode = ErrHdrInvalidToken
					break
				}
				openMarkAt(markHeaderField, i)
				p.headerNameMask = headerInitMask(toLower(c))
				p.index = 1
				p.state = sHeaderField
			}
		case sHeaderField:
			if c == ':' {
				p.headerState = headerResolve(p.headerNameMask, p.index)
				if err := flush(markHeaderField, i); err != ErrHdrOk {
					errCode = err
					break
				}
				p.teIdx, p.teOK = 0, true
				p.connMask, p.connIdx, p.connTok = 0, 0, false
				p.state = sHeaderValueDiscardWS
				break
			}
			if !isTokenCharLenient(c, p.Lenient) {
				errCode = ErrHdrInvalidToken
				break
			}
			p.headerNameMask = headerNarrow(p.headerNameMask, p.index, toLower(c))
			p.index++

		case sHeaderValueDiscardWS:
			switch {
			case c == ' ' || c == '\t':
			case c == '\r':
				p.state = sHeaderValueDiscardWSAlmostDone
			case c == '\n' && p.Lenient:
				p.state = sHeaderFieldStart
			default:
				openMarkAt(markHeaderValue, i)
				p.state = sHeaderValue
				errCode = p.stepHeaderValueByte(c)
			}
		case sHeaderValueDiscardWSAlmostDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			p.state = sHeaderValueDiscardLWS
		case sHeaderValueDiscardLWS:
			if c == ' ' || c == '\t' {
				p.state = sHeaderValueDiscardWS
				break
			}
			if err := p.commitHeaderValue(); err != ErrHdrOk {
				errCode = err
				break
			}
			p.state = sHeaderFieldStart
			advance = false

		case sHeaderValue:
			switch {
			case c == '\r':
				if err := flush(markHeaderValue, i); err != ErrHdrOk {
					errCode = err
					break
				}
				p.state = sHeaderAlmostDone
			case c == '\n' && p.Lenient:
				if err := flush(markHeaderValue, i); err != ErrHdrOk {
					errCode = err
					break
				}
				if err := p.commitHeaderValue(); err != ErrHdrOk {
					errCode = err
					break
				}
				p.state = sHeaderFieldStart
			default:
				errCode = p.stepHeaderValueByte(c)
			}
		case sHeaderAlmostDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			if err := p.commitHeaderValue(); err != ErrHdrOk {
				errCode = err
				break
			}
			p.state = sHeaderValueLWS
		case sHeaderValueLWS:
			if c == ' ' || c == '\t' {
				openMarkAt(markHeaderValue, i)
				p.state = sHeaderValueDiscardWS
				break
			}
			p.state = sHeaderFieldStart
			advance = false

		case sHeadersAlmostDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			st, err := p.finishHeaders(s)
			if err != ErrHdrOk {
				errCode = err
				break
			}
			p.state = st

		case sChunkSizeStart:
			v, ok := hexDigitVal(c)
			if !ok {
				errCode = ErrHdrInvalidChunkSz
				break
			}
			p.chunkSize = uint64(v)
			p.state = sChunkSize
		case sChunkSize:
			switch {
			case c == ';':
				p.state = sChunkParameters
			case c == '\r':
				p.state = sChunkSizeAlmostDone
			default:
				v, ok := hexDigitVal(c)
				if !ok {
					errCode = ErrHdrInvalidChunkSz
					break
				}
				if p.chunkSize > (maxContentLength-15)/16 {
					errCode = ErrHdrInvalidChunkSz
					break
				}
				p.chunkSize = p.chunkSize*16 + uint64(v)
			}
		case sChunkParameters:
			if c == '\r' {
				p.state = sChunkSizeAlmostDone
			}
		case sChunkSizeAlmostDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			if p.chunkSize == 0 {
				p.flags |= fTrailing
				p.nread = 0
				p.state = sHeaderFieldStart
			} else {
				if err := s.callChunkHeader(p); err != ErrHdrOk {
					errCode = err
					break
				}
				p.state = sChunkData
			}
		case sChunkDataAlmostDone:
			if c != '\r' {
				errCode = ErrHdrLFExpected
				break
			}
			p.state = sChunkDataDone
		case sChunkDataDone:
			if c != '\n' {
				errCode = ErrHdrLFExpected
				break
			}
			if err := s.callChunkComplete(p); err != ErrHdrOk {
				errCode = err
				break
			}
			p.nread = 0
			p.state = sChunkSizeStart
		}

		if errCode != ErrHdrOk {
			p.ErrorCode = errCode
			if errCode >= ErrHdrCBMsgBegin && errCode <= ErrHdrCBChunkComplete {
				return i + 1
			}
			return i
		}
		if advance {
			if inHeaderRegion(oldState) {
				p.nread++
				if p.nread > p.MaxHeaderSize {
					p.ErrorCode = ErrHdrHeaderOverflow
					return i
				}
			}
			i++
		}
	}

	if markKind != markNone {
		kind := markKind
		if err := flush(kind, n); err != ErrHdrOk {
			p.ErrorCode = err
			return n
		}
		p.openMark = kind
	}
	return n
}

// executeEOF handles the len(buf) == 0 signal (spec.md §4.1).
func (p *Parser) executeEOF(s *Settings) int {
	switch p.state {
	case sBodyIdentityEOF:
		if err := s.callMessageComplete(p); err != ErrHdrOk {
			p.ErrorCode = err
			return 0
		}
		p.state = sMessageDone
		return 0
	case sStartReq, sStartRes, sStartReqOrRes, sMessageDone, sDead:
		return 0
	default:
		p.ErrorCode = ErrHdrInvalidEOFState
		return 0
	}
}

// stepHeaderValueByte validates one header-value byte and feeds it into
// the incremental matcher for the header currently being read, if any
// (spec.md §4.5). Matchers are fed every byte of every Execute call
// regardless of slice boundaries, so a token split across calls is
// still recognized correctly.
func (p *Parser) stepHeaderValueByte(c byte) ErrorHdr {
	if !isHeaderValueChar(c, p.Lenient) {
		return ErrHdrInvalidToken
	}
	switch p.headerState {
	case hContentLength:
		nv, err := contentLengthAppend(p.clAccum, c)
		if err != ErrHdrOk {
			return err
		}
		p.clAccum = nv
	case hTransferEncoding:
		if c == ' ' || c == '\t' {
			break
		}
		lc := toLower(c)
		if p.teOK && p.teIdx < len(chunkedToken) && chunkedToken[p.teIdx] == lc {
			p.teIdx++
		} else {
			p.teOK = false
		}
	case hConnection:
		switch {
		case c == ' ' || c == '\t':
			// OWS around a token or around the comma; ignored either way.
		case c == ',':
			p.applyConnToken()
			p.connMask, p.connIdx, p.connTok = 0, 0, false
		default:
			lc := toLower(c)
			if !p.connTok {
				p.connMask = connTokenInit(lc)
				p.connTok = true
			} else {
				p.connMask = connTokenNarrow(p.connMask, p.connIdx, lc)
			}
			p.connIdx++
		}
	}
	return ErrHdrOk
}

// applyConnToken resolves the Connection token matched so far (up to
// p.connIdx bytes) and, if recognized, ORs its flag into p.flags. The
// connKeepAlive/connClose/connUpgrade values (headers.go) are a private
// 3-bit namespace
// distinct from the parser's own flag bits, so they are mapped rather
// than OR'd in directly.
func (p *Parser) applyConnToken() {
	switch connTokenResolve(p.connMask, p.connIdx) {
	case connKeepAlive:
		p.flags |= fConnKeepAlive
	case connClose:
		p.flags |= fConnClose
	case connUpgrade:
		p.flags |= fConnUpgrade
	}
}

// commitHeaderValue finalizes the header currently being read once its
// complete value has been seen (either at CRLF or at an empty value),
// applying the per-header effects spec.md §4.5 describes, then resets
// the per-header scratch state.
func (p *Parser) commitHeaderValue() ErrorHdr {
	switch p.headerState {
	case hContentLength:
		if p.flags&fContentLengthSeen != 0 {
			return ErrHdrUnexpectedCLen
		}
		p.flags |= fContentLengthSeen
		p.ContentLength = p.clAccum
	case hTransferEncoding:
		if p.teOK && p.teIdx == len(chunkedToken) {
			p.flags |= fChunked
		}
	case hConnection:
		p.applyConnToken()
	case hUpgrade:
		p.flags |= fUpgrade
	}
	p.headerState = hGeneral
	p.clAccum = 0
	p.teIdx, p.teOK = 0, true
	p.connMask, p.connIdx, p.connTok = 0, 0, false
	return ErrHdrOk
}

// finishHeaders runs the end-of-headers consistency checks, fires
// on_headers_complete, and picks the next state (spec.md §4.5, §4.6).
// A bare CRLF reached while fTrailing is set is not a second header
// section: it is the end of a chunked message's trailer block, which
// only needs chunk_complete + message_complete, never another round of
// body-mode selection.
func (p *Parser) finishHeaders(s *Settings) (msgState, ErrorHdr) {
	if p.flags&fTrailing != 0 {
		if err := s.callChunkComplete(p); err != ErrHdrOk {
			return p.state, err
		}
		if err := s.callMessageComplete(p); err != ErrHdrOk {
			return p.state, err
		}
		return sMessageDone, ErrHdrOk
	}

	if p.flags&fChunked != 0 && p.flags&fContentLengthSeen != 0 {
		return p.state, ErrHdrUnexpectedCLen
	}
	if p.Method == MHead || p.Method == MConnect {
		p.flags |= fSkipBody
	}
	v, inRange := s.callHeadersComplete(p)
	if !inRange {
		return p.state, ErrHdrCBHdrsComplete
	}
	if v == 1 || v == 2 {
		p.flags |= fSkipBody
	}
	if v == 2 || (p.flags&fConnUpgrade != 0 && p.flags&fUpgrade != 0) || p.Method == MConnect {
		p.Upgrade = true
	}

	skip := p.flags&fSkipBody != 0 || p.Upgrade ||
		(p.Type == PResponse && (p.StatusCode/100 == 1 || p.StatusCode == 204 || p.StatusCode == 304))

	switch {
	case skip:
		if err := s.callMessageComplete(p); err != ErrHdrOk {
			return p.state, err
		}
		return sMessageDone, ErrHdrOk
	case p.flags&fChunked != 0:
		p.nread = 0
		return sChunkSizeStart, ErrHdrOk
	case p.ContentLength == 0:
		if err := s.callMessageComplete(p); err != ErrHdrOk {
			return p.state, err
		}
		return sMessageDone, ErrHdrOk
	case p.ContentLength != ContentLengthUnset:
		return sBodyIdentity, ErrHdrOk
	case p.needsEOF():
		return sBodyIdentityEOF, ErrHdrOk
	default:
		if err := s.callMessageComplete(p); err != ErrHdrOk {
			return p.state, err
		}
		return sMessageDone, ErrHdrOk
	}
}
