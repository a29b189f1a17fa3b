// Copyright 2019-2020 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a source-available license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Test utils

package httpstream

import (
	"math/rand"

	"github.com/intuitivelabs/bytescase"
)

// randCase randomizes the case of an ASCII method or header-name token,
// exercising the case-insensitive header-name matcher (headerNarrow) and
// the case-sensitive method matcher (methodNarrow) against every casing a
// real client might send.
func randCase(s string) string {
	r := make([]byte, len(s))
	for i, b := range []byte(s) {
		switch rand.Intn(3) {
		case 0:
			r[i] = bytescase.ByteToLower(b)
		case 1:
			r[i] = bytescase.ByteToUpper(b)
		default:
			r[i] = b
		}
	}
	return string(r)
}

// splitPoints returns every cut point 0..n of an n-byte buffer. Cuts 1..n-1
// split it into two non-empty contiguous slices; cuts 0 and n leave one
// side empty, i.e. the whole buffer in a single slice.
func splitPoints(n int) []int {
	pts := make([]int, 0, n+1)
	for i := 0; i <= n; i++ {
		pts = append(pts, i)
	}
	return pts
}
