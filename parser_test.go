// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package httpstream

import (
	"strings"
	"testing"
)

// event is one recorded callback invocation, used to compare the callback
// stream produced by a single whole-buffer Execute call against the
// stream produced by feeding the same message split across many calls
// (spec.md §8 "slice-invariance").
type event struct {
	kind string
	data string
}

type recorder struct {
	events    []event
	completed int
}

func (r *recorder) settings() *Settings {
	return &Settings{
		OnMessageBegin: func(p *Parser) ErrorHdr {
			r.events = append(r.events, event{"message_begin", ""})
			return ErrHdrOk
		},
		OnMessageComplete: func(p *Parser) ErrorHdr {
			r.events = append(r.events, event{"message_complete", ""})
			r.completed++
			return ErrHdrOk
		},
		OnChunkHeader: func(p *Parser) ErrorHdr {
			r.events = append(r.events, event{"chunk_header", ""})
			return ErrHdrOk
		},
		OnChunkComplete: func(p *Parser) ErrorHdr {
			r.events = append(r.events, event{"chunk_complete", ""})
			return ErrHdrOk
		},
		OnURL: func(p *Parser, data []byte) ErrorHdr {
			r.appendData("url", data)
			return ErrHdrOk
		},
		OnStatus: func(p *Parser, data []byte) ErrorHdr {
			r.appendData("status", data)
			return ErrHdrOk
		},
		OnHeaderField: func(p *Parser, data []byte) ErrorHdr {
			r.appendData("header_field", data)
			return ErrHdrOk
		},
		OnHeaderValue: func(p *Parser, data []byte) ErrorHdr {
			r.appendData("header_value", data)
			return ErrHdrOk
		},
		OnBody: func(p *Parser, data []byte) ErrorHdr {
			r.appendData("body", data)
			return ErrHdrOk
		},
	}
}

// appendData concatenates onto the previous event of the same kind when
// it immediately precedes this one, so a value split by a slice boundary
// compares equal to the same value delivered whole.
func (r *recorder) appendData(kind string, data []byte) {
	if n := len(r.events); n > 0 && r.events[n-1].kind == kind {
		r.events[n-1].data += string(data)
		return
	}
	r.events = append(r.events, event{kind, string(data)})
}

func runWhole(t *testing.T, typ ParserType, raw string) (*Parser, *recorder) {
	t.Helper()
	p := NewParser(typ)
	r := &recorder{}
	s := r.settings()
	n := p.Execute(s, []byte(raw))
	if n != len(raw) {
		t.Fatalf("Execute consumed %d of %d bytes (error=%v)", n, len(raw), p.ErrorCode)
	}
	return p, r
}

func TestSimpleGET(t *testing.T) {
	raw := "GET /test HTTP/1.1\r\nUser-Agent: curl/7.18.0\r\nHost: 0.0.0.0:5000\r\nAccept: */*\r\n\r\n"
	p, r := runWhole(t, PRequest, raw)
	if p.Method != MGet {
		t.Errorf("method = %v, want GET", p.Method)
	}
	var url string
	for _, e := range r.events {
		if e.kind == "url" {
			url = e.data
		}
	}
	if url != "/test" {
		t.Errorf("url = %q", url)
	}
	if !p.ShouldKeepAlive() {
		t.Errorf("should_keep_alive = false, want true")
	}
	if p.ErrorCode != ErrHdrOk {
		t.Errorf("error = %v", p.ErrorCode)
	}
}

func TestGETWithQueryAndFragment(t *testing.T) {
	raw := "GET /forums/1/topics/2375?page=1#posts-17408 HTTP/1.1\r\n\r\n"
	_, r := runWhole(t, PRequest, raw)
	var url string
	for _, e := range r.events {
		if e.kind == "url" {
			url += e.data
		}
	}
	if url != "/forums/1/topics/2375?page=1#posts-17408" {
		t.Errorf("url = %q", url)
	}
}

func TestFunkyCasedContentLength(t *testing.T) {
	raw := "GET /path HTTP/1.0\r\nconTENT-Length: 5\r\n\r\nHELLO"
	p, r := runWhole(t, PRequest, raw)
	var body string
	for _, e := range r.events {
		if e.kind == "body" {
			body += e.data
		}
	}
	if body != "HELLO" {
		t.Errorf("body = %q", body)
	}
	if p.ShouldKeepAlive() {
		t.Errorf("should_keep_alive = true, want false (HTTP/1.0, no keep-alive token)")
	}
}

func TestChunkedWithTrailers(t *testing.T) {
	raw := "POST /p HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\nVary: *\r\nContent-Type: text/plain\r\n\r\n"
	_, r := runWhole(t, PRequest, raw)
	var body string
	chunkHeaders := 0
	var trailerFields []string
	for _, e := range r.events {
		switch e.kind {
		case "body":
			body += e.data
		case "chunk_header":
			chunkHeaders++
		case "header_field":
			// header fields after the first chunk are trailers
			if chunkHeaders > 0 {
				trailerFields = append(trailerFields, e.data)
			}
		}
	}
	if body != "hello world" {
		t.Errorf("body = %q", body)
	}
	if chunkHeaders != 2 {
		t.Errorf("chunk headers = %d, want 2", chunkHeaders)
	}
	if len(trailerFields) != 2 || trailerFields[0] != "Vary" || trailerFields[1] != "Content-Type" {
		t.Errorf("trailer fields = %v", trailerFields)
	}
	if r.completed != 1 {
		t.Errorf("message_complete fired %d times, want 1", r.completed)
	}
}

func TestChunkWithParameters(t *testing.T) {
	raw := "POST /p HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5; ihatew3;whatthefuck=aretheseparametersfor\r\nhello\r\n6; blahblah\r\n world\r\n0\r\n\r\n"
	_, r := runWhole(t, PRequest, raw)
	var body string
	for _, e := range r.events {
		if e.kind == "body" {
			body += e.data
		}
	}
	if body != "hello world" {
		t.Errorf("body = %q", body)
	}
}

func TestConflictingFraming(t *testing.T) {
	raw := "POST /p HTTP/1.1\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"
	p := NewParser(PRequest)
	r := &recorder{}
	p.Execute(r.settings(), []byte(raw))
	if p.ErrorCode != ErrHdrUnexpectedCLen {
		t.Errorf("error = %v, want ErrHdrUnexpectedCLen", p.ErrorCode)
	}
}

func TestMalformedStartLine(t *testing.T) {
	raw := "GET / HTP/1.1\r\n\r\n"
	p := NewParser(PRequest)
	r := &recorder{}
	p.Execute(r.settings(), []byte(raw))
	if p.ErrorCode != ErrHdrInvalidConst {
		t.Errorf("error = %v, want ErrHdrInvalidConst", p.ErrorCode)
	}
}

// TestPipelinedMessages feeds scenarios 1, 3 and 4 concatenated as one
// stream through a single parser/settings pair and checks that all three
// messages complete in order.
func TestPipelinedMessages(t *testing.T) {
	msg1 := "GET /test HTTP/1.1\r\nUser-Agent: curl/7.18.0\r\nHost: 0.0.0.0:5000\r\nAccept: */*\r\n\r\n"
	msg3 := "GET /path HTTP/1.0\r\nconTENT-Length: 5\r\n\r\nHELLO"
	msg4 := "POST /p HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\nVary: *\r\nContent-Type: text/plain\r\n\r\n"
	raw := msg1 + msg3 + msg4

	p := NewParser(PRequest)
	r := &recorder{}
	n := p.Execute(r.settings(), []byte(raw))
	if n != len(raw) {
		t.Fatalf("Execute consumed %d of %d (error=%v)", n, len(raw), p.ErrorCode)
	}
	if r.completed != 3 {
		t.Fatalf("message_complete fired %d times, want 3", r.completed)
	}
}

// TestSliceInvariance drives the pipelined three-message stream through
// every split point, comparing the callback stream and completion count
// against the whole-buffer run (spec.md §8 scenario 8, the
// slice-invariance property).
func TestSliceInvariance(t *testing.T) {
	msg1 := "GET /test HTTP/1.1\r\nUser-Agent: curl/7.18.0\r\nHost: 0.0.0.0:5000\r\nAccept: */*\r\n\r\n"
	msg3 := "GET /path HTTP/1.0\r\nconTENT-Length: 5\r\n\r\nHELLO"
	msg4 := "POST /p HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\nVary: *\r\nContent-Type: text/plain\r\n\r\n"
	raw := msg1 + msg3 + msg4

	wholeP := NewParser(PRequest)
	wholeR := &recorder{}
	wholeP.Execute(wholeR.settings(), []byte(raw))

	for i := 1; i < len(raw); i++ {
		p := NewParser(PRequest)
		r := &recorder{}
		s := r.settings()
		n1 := p.Execute(s, []byte(raw[:i]))
		if n1 != i {
			t.Fatalf("split %d: first Execute consumed %d, want %d (error=%v)", i, n1, i, p.ErrorCode)
		}
		n2 := p.Execute(s, []byte(raw[i:]))
		if n2 != len(raw)-i {
			t.Fatalf("split %d: second Execute consumed %d, want %d (error=%v)", i, n2, len(raw)-i, p.ErrorCode)
		}
		if r.completed != 3 {
			t.Fatalf("split %d: message_complete fired %d times, want 3", i, r.completed)
		}
		if len(r.events) != len(wholeR.events) {
			t.Fatalf("split %d: %d events, want %d", i, len(r.events), len(wholeR.events))
		}
		for j := range r.events {
			if r.events[j] != wholeR.events[j] {
				t.Fatalf("split %d: event %d = %+v, want %+v", i, j, r.events[j], wholeR.events[j])
			}
		}
	}
}

func TestHeaderOverflow(t *testing.T) {
	p := NewParser(PRequest)
	p.MaxHeaderSize = 16
	r := &recorder{}
	raw := "GET / HTTP/1.1\r\n" + strings.Repeat("X-Long: padding-value\r\n", 4) + "\r\n"
	p.Execute(r.settings(), []byte(raw))
	if p.ErrorCode != ErrHdrHeaderOverflow {
		t.Errorf("error = %v, want ErrHdrHeaderOverflow", p.ErrorCode)
	}
}

func TestResponseNoBody204(t *testing.T) {
	raw := "HTTP/1.1 204 No Content\r\n\r\n"
	p, r := runWhole(t, PResponse, raw)
	if p.StatusCode != 204 {
		t.Errorf("status = %d", p.StatusCode)
	}
	if r.completed != 1 {
		t.Errorf("message_complete fired %d times, want 1", r.completed)
	}
	if !p.BodyIsFinal() {
		t.Errorf("BodyIsFinal() = false after 204 response")
	}
}

func TestEitherTypeDetectsHeadRequest(t *testing.T) {
	raw := "HEAD /x HTTP/1.1\r\n\r\n"
	p, _ := runWhole(t, PBoth, raw)
	if p.Type != PRequest || p.Method != MHead {
		t.Errorf("type=%v method=%v, want PRequest/MHead", p.Type, p.Method)
	}
}

func TestEitherTypeDetectsResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\n"
	p, _ := runWhole(t, PBoth, raw)
	if p.Type != PResponse || p.StatusCode != 200 {
		t.Errorf("type=%v status=%d, want PResponse/200", p.Type, p.StatusCode)
	}
}

func TestUpgradeRequiresBothTokens(t *testing.T) {
	// Connection: upgrade alone, with no Upgrade: header, must not latch.
	raw := "GET /ws HTTP/1.1\r\nConnection: upgrade\r\n\r\n"
	p, _ := runWhole(t, PRequest, raw)
	if p.Upgrade {
		t.Errorf("Upgrade = true with no Upgrade header present")
	}

	raw2 := "GET /ws HTTP/1.1\r\nConnection: upgrade\r\nUpgrade: websocket\r\n\r\n"
	p2, _ := runWhole(t, PRequest, raw2)
	if !p2.Upgrade {
		t.Errorf("Upgrade = false with both Connection: upgrade and Upgrade: present")
	}
}
