// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// parsertrace feeds a file (or stdin) through the parser and prints every
// callback it receives, one line per event. It is the Go counterpart of
// the reference parsertrace.c trace tool: a debugging aid, not a library
// consumer pattern to imitate.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/intuitivelabs/httpstream"
)

func main() {
	typeFlag := flag.String("type", "both", "message type: request, response, or both")
	chunkFlag := flag.Int("chunk", 0, "feed input in chunks of this many bytes (0 = whole file at once, 1 = byte at a time)")
	lenientFlag := flag.Bool("lenient", false, "enable lenient parsing mode")
	flag.Parse()

	var typ httpstream.ParserType
	switch *typeFlag {
	case "request":
		typ = httpstream.PRequest
	case "response":
		typ = httpstream.PResponse
	case "both":
		typ = httpstream.PBoth
	default:
		fmt.Fprintf(os.Stderr, "parsertrace: unknown -type %q\n", *typeFlag)
		os.Exit(2)
	}

	var r io.Reader = os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "parsertrace:", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsertrace:", err)
		os.Exit(1)
	}

	p := httpstream.NewParser(typ)
	p.Lenient = *lenientFlag

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	msgNo := 0
	s := &httpstream.Settings{
		OnMessageBegin: func(p *httpstream.Parser) httpstream.ErrorHdr {
			msgNo++
			fmt.Fprintf(out, "[%d] message_begin\n", msgNo)
			return httpstream.ErrHdrOk
		},
		OnMessageComplete: func(p *httpstream.Parser) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] message_complete (keep_alive=%v)\n", msgNo, p.ShouldKeepAlive())
			return httpstream.ErrHdrOk
		},
		OnChunkHeader: func(p *httpstream.Parser) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] chunk_header\n", msgNo)
			return httpstream.ErrHdrOk
		},
		OnChunkComplete: func(p *httpstream.Parser) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] chunk_complete\n", msgNo)
			return httpstream.ErrHdrOk
		},
		OnURL: func(p *httpstream.Parser, data []byte) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] url: %q\n", msgNo, data)
			return httpstream.ErrHdrOk
		},
		OnStatus: func(p *httpstream.Parser, data []byte) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] status: %q\n", msgNo, data)
			return httpstream.ErrHdrOk
		},
		OnHeaderField: func(p *httpstream.Parser, data []byte) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] header_field: %q\n", msgNo, data)
			return httpstream.ErrHdrOk
		},
		OnHeaderValue: func(p *httpstream.Parser, data []byte) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] header_value: %q\n", msgNo, data)
			return httpstream.ErrHdrOk
		},
		OnBody: func(p *httpstream.Parser, data []byte) httpstream.ErrorHdr {
			fmt.Fprintf(out, "[%d] body: %q\n", msgNo, data)
			return httpstream.ErrHdrOk
		},
	}

	chunk := *chunkFlag
	for i := 0; i < len(data); {
		end := len(data)
		switch {
		case chunk > 0:
			end = i + chunk
			if end > len(data) {
				end = len(data)
			}
		case chunk < 0:
			end = i + 1 + rand.Intn(16)
			if end > len(data) {
				end = len(data)
			}
		}
		n := p.Execute(s, data[i:end])
		i += n
		if p.ErrorCode != httpstream.ErrHdrOk {
			fmt.Fprintf(out, "error at byte %d: %s (%s)\n", i, httpstream.ErrorName(p.ErrorCode), httpstream.ErrorDescription(p.ErrorCode))
			out.Flush()
			os.Exit(1)
		}
	}
	p.Execute(s, nil) // signal EOF
	if p.ErrorCode != httpstream.ErrHdrOk {
		fmt.Fprintf(out, "error at EOF: %s (%s)\n", httpstream.ErrorName(p.ErrorCode), httpstream.ErrorDescription(p.ErrorCode))
		out.Flush()
		os.Exit(1)
	}
}
