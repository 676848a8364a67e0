package textutil

import (
	"fmt"
	"unicode/utf8"
)

// UTF8ChunkDecoder implements RuneChunkDecoder for UTF-8 data that arrives
// in arbitrary chunks, e.g. across successive io.Writer calls.
//
// UTF-8 encodes a rune as one to four bytes, so a chunk boundary can land in
// the middle of a rune.  The decoder buffers such a trailing partial rune
// and completes it from the front of the next chunk.
//
// The zero UTF8ChunkDecoder is a decoder with an empty buffer.
type UTF8ChunkDecoder struct {
	// The only state carried between chunks is the pending partial rune.
	partial    [utf8.UTFMax]byte
	partialLen int
}

var _ RuneChunkDecoder = (*UTF8ChunkDecoder)(nil)

// Decode returns a RuneStreamDecoder over the data chunk.  Call Next on the
// returned stream until it yields EOF.
//
// If chunk ends mid-rune, the partial encoding is buffered and decoding
// resumes on the next Decode call.  Invalid encodings decode to U+FFFD one
// byte at a time, as with unicode/utf8.DecodeRune.
func (d *UTF8ChunkDecoder) Decode(chunk []byte) RuneStreamDecoder {
	return &utf8ChunkStream{d: d, data: chunk}
}

// DecodeLeftover returns a RuneStreamDecoder over any data still buffered in
// the decoder.  Call Next on the returned stream until it yields EOF to
// drain the buffer.
//
// Only a final partial rune is ever buffered, so the returned stream yields
// either nothing or U+FFFD replacement runes.
func (d *UTF8ChunkDecoder) DecodeLeftover() RuneStreamDecoder {
	return &utf8PartialStream{d: d}
}

// nextRune decodes one rune, logically prepending any buffered partial data
// to the chunk.  It returns the rune and how many bytes of data it consumed.
//
// size can be > 0 with r == EOF when a trailing partial rune was buffered
// rather than decoded, and size can be 0 with r != EOF when the rune came
// entirely from previously buffered bytes.
func (d *UTF8ChunkDecoder) nextRune(data []byte) (r rune, size int) {
	if d.partialLen > 0 {
		return d.nextRunePartial(data)
	}
	r, size = utf8.DecodeRune(data)
	if r == utf8.RuneError && !utf8.FullRune(data) {
		// A trailing partial rune; stash it for the next chunk.
		d.partialLen = copy(d.partial[:], data)
		return d.verifyPartial(d.partialLen, data)
	}
	return r, size
}

// nextRunePartial implements nextRune when buffered partial data exists.
func (d *UTF8ChunkDecoder) nextRunePartial(data []byte) (rune, int) {
	// Top up the partial rune from data and see if it completed.
	oldLen := d.partialLen
	d.partialLen += copy(d.partial[oldLen:], data)
	if !utf8.FullRune(d.partial[:d.partialLen]) {
		// Still not a full rune; keep accumulating.
		return d.verifyPartial(d.partialLen-oldLen, data)
	}
	r, size := utf8.DecodeRune(d.partial[:d.partialLen])
	if size < oldLen {
		// The buffer held the right number of bytes for a rune but they
		// don't form a valid code point.  E.g. with oldLen == 2, the byte
		// just appended to a would-be 3-byte rune isn't a continuation
		// byte: DecodeRune returns U+FFFD with size 1, meaning only the
		// first byte is to be skipped.
		//
		// Slide the unconsumed old bytes forward.  partialLen strictly
		// decreases, which isn't needed for correctness but avoids
		// recopying the same bytes on every call.
		copy(d.partial[:], d.partial[size:oldLen])
		d.partialLen = oldLen - size
		return r, 0
	}
	// The buffered bytes are fully consumed; account only for the bytes
	// that came from data.
	d.partialLen = 0
	return r, size - oldLen
}

// verifyPartial is called when no full rune was available and ncopy bytes of
// data were moved into the partial buffer.  All of data must have been
// buffered; the caller then reports EOF with the full data size consumed.
func (d *UTF8ChunkDecoder) verifyPartial(ncopy int, data []byte) (rune, int) {
	if ncopy < len(data) {
		// The partial buffer filled before data ran out, which cannot
		// happen: any utf8.UTFMax bytes contain a full rune.
		panic(fmt.Errorf("UTF8ChunkDecoder: partial rune %v with leftover data %v", d.partial[:d.partialLen], data[ncopy:]))
	}
	return EOF, len(data)
}

// utf8ChunkStream implements UTF8ChunkDecoder.Decode.
type utf8ChunkStream struct {
	d    *UTF8ChunkDecoder
	data []byte
	pos  int
}

var _ RuneStreamDecoder = (*utf8ChunkStream)(nil)

func (s *utf8ChunkStream) Next() rune {
	if s.pos == len(s.data) {
		return EOF
	}
	r, size := s.d.nextRune(s.data[s.pos:])
	s.pos += size
	return r
}

func (s *utf8ChunkStream) BytePos() int {
	return s.pos
}

// utf8PartialStream implements UTF8ChunkDecoder.DecodeLeftover.
type utf8PartialStream struct {
	d   *UTF8ChunkDecoder
	pos int
}

var _ RuneStreamDecoder = (*utf8PartialStream)(nil)

func (s *utf8PartialStream) Next() rune {
	if s.d.partialLen == 0 {
		return EOF
	}
	r, size := utf8.DecodeRune(s.d.partial[:s.d.partialLen])
	copy(s.d.partial[:], s.d.partial[size:])
	s.d.partialLen -= size
	s.pos += size
	return r
}

func (s *utf8PartialStream) BytePos() int {
	return s.pos
}
