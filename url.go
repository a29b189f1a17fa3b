// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package httpstream

// URLField identifies one of the fields a URL can be decomposed into.
// Bit position matches the position in the URLFieldSet bitmask (spec.md
// §3 "URL decomposition record").
type URLField uint

const (
	UFSchema URLField = iota
	UFUserInfo
	UFHost
	UFPort
	UFPath
	UFQuery
	UFFragment
	ufCount
)

// URLFieldSet is a bitmask over URLField, one bit per field present in a
// parsed URL.
type URLFieldSet uint

func (s URLFieldSet) has(f URLField) bool { return s&(1<<f) != 0 }
func (s *URLFieldSet) set(f URLField)     { *s |= 1 << f }

// URLComponents is the result of ParseURL: a field_set bitmask plus, for
// each present field, a PField referring to the buffer passed in, and a
// decoded numeric Port.
type URLComponents struct {
	FieldSet URLFieldSet
	Schema   PField
	UserInfo PField
	Host     PField
	Port     PField
	PortNum  uint32
	Path     PField
	Query    PField
	Fragment PField
}

// url sub-DFA states (spec.md §4.4). uDead is not represented explicitly;
// any transition that would reach it instead returns ok==false.
type urlState uint8

const (
	uSchema urlState = iota
	uSchemaSlash
	uSchemaSlash2
	uServerStart
	uServer
	uServerWithAt
	uPath
	uQueryStart
	uQuery
	uFragStart
	uFrag
)

// urlInitState picks the sub-DFA entry state from the first character of
// the URL (and whether the owning request used the CONNECT method).
// CONNECT always starts at uServerStart: the target is host:port with no
// path (spec.md §4.4). '*' (OPTIONS asterisk-form) and '/' (origin-form)
// start directly in uPath since there is no schema/authority to parse.
func urlInitState(first byte, isConnect bool) (urlState, bool) {
	switch {
	case isConnect:
		return uServerStart, true
	case first == '/' || first == '*':
		return uPath, true
	case isAlpha(first):
		return uSchema, true
	default:
		return 0, false
	}
}

func isAlpha(c byte) bool {
	return (c|0x20) >= 'a' && (c|0x20) <= 'z'
}

func isAuthorityChar(c byte) bool {
	return isUserinfoChar(c) || isHostChar(c) || c == '[' || c == ']' || c == ':'
}

// urlStep advances the URL sub-DFA by one byte. It returns the next
// state, the URLField the current byte belongs to (ufCount if the byte
// is a delimiter rather than field content), and false if c is not valid
// in the current state.
func urlStep(state urlState, c byte, isConnect, strict bool) (urlState, URLField, bool) {
	switch state {
	case uSchema:
		switch {
		case isAlpha(c) || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.':
			return uSchema, UFSchema, true
		case c == ':':
			return uSchemaSlash, ufCount, true
		}
		return state, ufCount, false
	case uSchemaSlash:
		if c == '/' {
			return uSchemaSlash2, ufCount, true
		}
		return state, ufCount, false
	case uSchemaSlash2:
		if c == '/' {
			return uServerStart, ufCount, true
		}
		return state, ufCount, false
	case uServerStart:
		if isAuthorityChar(c) {
			return uServer, UFHost, true
		}
		return state, ufCount, false
	case uServer:
		switch {
		case c == '@':
			return uServerWithAt, ufCount, true
		case c == '/':
			if isConnect {
				return state, ufCount, false
			}
			return uPath, UFPath, true
		case c == '?':
			if isConnect {
				return state, ufCount, false
			}
			return uQueryStart, ufCount, true
		case c == '#':
			if isConnect {
				return state, ufCount, false
			}
			return uFragStart, ufCount, true
		case isAuthorityChar(c):
			return uServer, UFHost, true
		}
		return state, ufCount, false
	case uServerWithAt:
		switch {
		case c == '@':
			return state, ufCount, false // second '@' is fatal
		case c == '/':
			if isConnect {
				return state, ufCount, false
			}
			return uPath, UFPath, true
		case c == '?':
			if isConnect {
				return state, ufCount, false
			}
			return uQueryStart, ufCount, true
		case c == '#':
			if isConnect {
				return state, ufCount, false
			}
			return uFragStart, ufCount, true
		case isAuthorityChar(c):
			return uServerWithAt, UFHost, true
		}
		return state, ufCount, false
	case uPath:
		switch {
		case c == '?':
			return uQueryStart, ufCount, true
		case c == '#':
			return uFragStart, ufCount, true
		case isURLChar(c, strict):
			return uPath, UFPath, true
		}
		return state, ufCount, false
	case uQueryStart:
		switch {
		case c == '?':
			return uQuery, UFQuery, true
		case c == '#':
			return uFragStart, ufCount, true
		case isURLChar(c, strict):
			return uQuery, UFQuery, true
		}
		return state, ufCount, false
	case uQuery:
		switch {
		case c == '#':
			return uFragStart, ufCount, true
		case isURLChar(c, strict) || c == '?':
			return uQuery, UFQuery, true
		}
		return state, ufCount, false
	case uFragStart, uFrag:
		if isURLChar(c, strict) {
			return uFrag, UFFragment, true
		}
		return state, ufCount, false
	}
	return state, ufCount, false
}

// urlStateAcceptable reports whether state is a valid place to stop
// (end of URL reached, e.g. on SP/CR/LF). uSchema, uSchemaSlash,
// uSchemaSlash2 and uServerStart mean an incomplete or empty authority
// and are never acceptable (spec.md §4.4: "a schema present without a
// host fails").
func urlStateAcceptable(state urlState, isConnect bool) bool {
	switch state {
	case uServer, uServerWithAt:
		return true
	case uPath, uQueryStart, uQuery, uFragStart, uFrag:
		return !isConnect
	default:
		return false
	}
}

// ParseURL decomposes a complete URL buffer (a request-target or an
// absolute URL) into its components, per spec.md §4.4. isConnect selects
// the CONNECT-target grammar (host:port only, no scheme/path/query/
// fragment). It is a one-shot, non-streaming call: unlike Execute, the
// whole URL must already be in buf.
func ParseURL(buf []byte, isConnect bool) (URLComponents, ErrorHdr) {
	var uc URLComponents
	if len(buf) == 0 {
		return uc, ErrHdrInvalidURL
	}
	state, ok := urlInitState(buf[0], isConnect)
	if !ok {
		return uc, ErrHdrInvalidURL
	}

	var fieldStart [ufCount]int
	var fieldOpen [ufCount]bool
	authorityStart := -1

	markField := func(f URLField, i int) {
		if !fieldOpen[f] {
			fieldStart[f] = i
			fieldOpen[f] = true
		}
	}
	closeField := func(f URLField, end int) {
		if fieldOpen[f] {
			var pf PField
			pf.Set(fieldStart[f], end)
			switch f {
			case UFSchema:
				uc.Schema = pf
			case UFPath:
				uc.Path = pf
			case UFQuery:
				uc.Query = pf
			case UFFragment:
				uc.Fragment = pf
			}
			if f != UFHost { // host is finalized separately below
				uc.FieldSet.set(f)
			}
			fieldOpen[f] = false
		}
	}

	// buf[0] already selected the initial state; mark its field and
	// resume scanning from buf[1], except for CONNECT targets (which
	// start directly in the authority and must reconsider buf[0] as
	// authority content) and uServerStart (no content consumed yet).
	i := 1
	switch state {
	case uSchema:
		markField(UFSchema, 0)
	case uPath:
		markField(UFPath, 0)
	case uServerStart:
		i = 0
	}
	for ; i <= len(buf); i++ {
		atEnd := i == len(buf)
		var c byte
		if !atEnd {
			c = buf[i]
		}
		if atEnd || c == ' ' || c == '\r' || c == '\n' {
			break
		}
		newState, field, ok := urlStep(state, c, isConnect, true)
		if !ok {
			return uc, ErrHdrInvalidURL
		}
		if newState == uServer || newState == uServerWithAt {
			if authorityStart < 0 {
				authorityStart = i
			}
		}
		if field == UFSchema {
			markField(UFSchema, i)
		} else if state == uSchema && newState != uSchema {
			closeField(UFSchema, i)
		}
		if field == UFPath {
			markField(UFPath, i)
		} else if (state == uPath) && newState != uPath {
			closeField(UFPath, i)
		}
		if field == UFQuery {
			markField(UFQuery, i)
		} else if state == uQuery && newState != uQuery {
			closeField(UFQuery, i)
		}
		if field == UFFragment {
			markField(UFFragment, i)
		}
		state = newState
	}
	end := i
	if state == uPath {
		closeField(UFPath, end)
	}
	if state == uQuery || state == uQueryStart {
		closeField(UFQuery, end)
	}
	if state == uFrag || state == uFragStart {
		closeField(UFFragment, end)
	}
	if !urlStateAcceptable(state, isConnect) {
		return uc, ErrHdrInvalidURL
	}
	if authorityStart >= 0 {
		authEnd := end
		if uc.FieldSet.has(UFPath) {
			authEnd = int(uc.Path.Offs)
		} else if uc.FieldSet.has(UFQuery) {
			authEnd = int(uc.Query.Offs)
		} else if uc.FieldSet.has(UFFragment) {
			authEnd = int(uc.Fragment.Offs)
		}
		hc, herr := ParseHost(buf[authorityStart:authEnd])
		if herr != ErrHdrOk {
			return uc, herr
		}
		if !hc.UserInfo.Empty() {
			uc.UserInfo.Set(authorityStart+int(hc.UserInfo.Offs), authorityStart+hc.UserInfo.EndOffs())
			uc.FieldSet.set(UFUserInfo)
		}
		uc.Host.Set(authorityStart+int(hc.Host.Offs), authorityStart+hc.Host.EndOffs())
		uc.FieldSet.set(UFHost)
		if !hc.Port.Empty() {
			uc.Port.Set(authorityStart+int(hc.Port.Offs), authorityStart+hc.Port.EndOffs())
			uc.FieldSet.set(UFPort)
			uc.PortNum = hc.PortNum
		}
	}
	if uc.FieldSet.has(UFSchema) && !uc.FieldSet.has(UFHost) {
		return uc, ErrHdrInvalidURL
	}
	if isConnect {
		allowed := URLFieldSet(1<<UFHost) | 1<<UFPort
		if uc.FieldSet&^allowed != 0 || !uc.FieldSet.has(UFHost) {
			return uc, ErrHdrInvalidURL
		}
	}
	return uc, ErrHdrOk
}
