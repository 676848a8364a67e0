// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package textutil

import (
	"reflect"
	"testing"
)

// decodeChunked runs text through a UTF8ChunkDecoder in chunks of at most
// size bytes (the whole text at once if size <= 0), followed by a leftover
// drain, and returns every decoded rune.
func decodeChunked(t *testing.T, text string, size int) []rune {
	t.Helper()
	var dec UTF8ChunkDecoder
	var runes []rune
	collect := func(r rune) error {
		runes = append(runes, r)
		return nil
	}
	data := []byte(text)
	if size <= 0 {
		size = len(data)
	}
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		n, err := RuneChunkWrite(&dec, collect, data[start:end])
		if n != end-start || err != nil {
			t.Errorf("%q: RuneChunkWrite(%q) = (%d, %v), want (%d, nil)", text, data[start:end], n, err, end-start)
		}
	}
	if err := RuneChunkFlush(&dec, collect); err != nil {
		t.Errorf("%q: RuneChunkFlush: %v", text, err)
	}
	return runes
}

func TestUTF8ChunkDecoder(t *testing.T) {
	const (
		r2 = "Δ"          // 2-byte rune
		r3 = "王"          // 3-byte rune
		r4 = "\U0001F680" // 4-byte rune
	)
	tests := []struct {
		Text string
		Want []rune
	}{
		{"", nil},
		{"a", []rune{'a'}},
		{"abc def", []rune("abc def")},
		// Multi-byte runes of each width, alone and mixed with ASCII.
		{"ΔΘΠ", []rune("ΔΘΠ")},
		{"王普澤", []rune("王普澤")},
		{r4 + r4, []rune(r4 + r4)},
		{"a" + r2 + r3 + r4 + "b", []rune("a" + r2 + r3 + r4 + "b")},
		// A literal replacement rune decodes as itself.
		{"a�b", []rune{'a', '�', 'b'}},
		// Invalid bytes decode to U+FFFD one byte at a time.
		{"\xFF", []rune{'�'}},
		{"a\xFF\xFEb", []rune{'a', '�', '�', 'b'}},
		// Truncated runes at the end of the input surface as U+FFFD per
		// byte when the leftover buffer is drained.
		{"a" + r2[:1], []rune{'a', '�'}},
		{"a" + r3[:2], []rune{'a', '�', '�'}},
		{"a" + r4[:3], []rune{'a', '�', '�', '�'}},
		// Truncated runes followed by more input likewise never resync
		// into a real rune.
		{"a" + r2[:1] + "b", []rune{'a', '�', 'b'}},
		{"a" + r3[:2] + "b", []rune{'a', '�', '�', 'b'}},
		{"a" + r4[:3] + "b", []rune{'a', '�', '�', '�', 'b'}},
	}
	for _, test := range tests {
		// Every chunking of the input must decode identically, including
		// chunk sizes that split every multi-byte rune.
		for size := 0; size <= 5; size++ {
			if got := decodeChunked(t, test.Text, size); !reflect.DeepEqual(got, test.Want) {
				t.Errorf("%q (chunk size %d): got %v, want %v", test.Text, size, got, test.Want)
			}
		}
	}
}
