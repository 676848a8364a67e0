package textutil

import (
	"io"
	"unicode"
	"unicode/utf8"
)

// LineWriter implements an io.Writer filter that formats input text into
// output lines no wider than a target width in runes.
//
// Input is interpreted line by line, where lines are terminated by \n, \r,
// \v, \f or U+2028, with \r\n and \n\r each treated as a single terminator:
//
//   - A line starting with a non-space rune belongs to the current paragraph.
//     Paragraph text is re-flowed: input line breaks act as word separators,
//     and output lines break at word boundaries so that no output line is
//     wider than the target width.  Spaces between words on the same input
//     line are preserved.
//   - A line whose first rune is a space is verbatim: it is output on its own
//     line, without wrapping, ending the wrapped line under construction.
//   - A line with no non-space runes is blank: it ends the current paragraph.
//     Consecutive blank lines collapse, a single blank output line separates
//     paragraphs, and no blank line is output before the first paragraph
//     following a Flush.  U+2029 also ends the paragraph.
//
// Output lines never contain trailing spaces; only verbatim output lines may
// contain leading spaces.  A single word wider than the target width is
// output on a line of its own, unbroken.
type LineWriter struct {
	w       io.Writer
	width   int
	dec     RuneChunkDecoder
	indents []string
	err     error

	atLineStart  bool   // no runes seen yet on the current input line
	isVerbatim   bool   // the current input line started with a space
	lineHasWords bool   // the current input line contains at least one word
	verbatim     []rune // the current verbatim input line
	word         []rune // word under construction
	sep          []rune // spaces preceding word on the same input line
	wrap         []rune // wrapped output line under construction
	paraPending  bool   // a blank output line is owed before the next line
	started      bool   // an output line has been emitted since the last Flush
	emitted      int    // lines emitted since the last Flush; selects the indent
	prevEOL      rune   // previous rune, iff it was an end-of-line rune
}

// NewLineWriter returns a new LineWriter filtering writes to w, with the
// given target width in runes, decoding input bytes with dec.  A negative
// width means no line wrapping.
func NewLineWriter(w io.Writer, width int, dec RuneChunkDecoder) *LineWriter {
	return &LineWriter{w: w, width: width, dec: dec, atLineStart: true}
}

// NewUTF8LineWriter returns a new LineWriter filtering UTF-8 writes to w,
// with the given target width in runes.
func NewUTF8LineWriter(w io.Writer, width int) *LineWriter {
	return NewLineWriter(w, width, &UTF8ChunkDecoder{})
}

// Width returns the target width in runes.  If width < 0 lines are never
// wrapped.
func (w *LineWriter) Width() int { return w.width }

// SetIndents sets the indentation for subsequent output lines.  The first
// output line after a Flush is prefixed with indents[0], the second with
// indents[1], and so on; the last indent is used for all remaining lines.
// With no indents all lines start at the left margin.  SetIndents implies a
// Flush.
func (w *LineWriter) SetIndents(indents ...string) {
	w.Flush()
	w.indents = append([]string(nil), indents...)
}

// Write implements io.Writer by buffering data into lines and writing
// formatted lines to the underlying writer.
func (w *LineWriter) Write(data []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	return RuneChunkWrite(w.dec, w.nextRune, data)
}

// Flush terminates the input line and wrapped line under construction,
// writes them to the underlying writer, and resets the indent and paragraph
// state.  Flush must be called after the last Write, and may be called at
// any point in between to force a line break.
func (w *LineWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := RuneChunkFlush(w.dec, w.nextRune); err != nil {
		return err
	}
	if w.isVerbatim || w.lineHasWords {
		w.endLine()
	}
	w.finishWrap()
	w.paraPending = false
	w.started = false
	w.emitted = 0
	w.prevEOL = 0
	return w.err
}

func (w *LineWriter) nextRune(r rune) error {
	// Treat \r\n and \n\r each as a single end-of-line.
	if (r == '\n' && w.prevEOL == '\r') || (r == '\r' && w.prevEOL == '\n') {
		w.prevEOL = 0
		return w.err
	}
	switch r {
	case '\n', '\r', '\v', '\f', LineSeparator:
		w.endLine()
		w.prevEOL = r
	case ParagraphSeparator:
		w.endLine()
		w.finishWrap()
		w.paraPending = true
		w.prevEOL = 0
	default:
		w.addRune(r)
		w.prevEOL = 0
	}
	return w.err
}

func (w *LineWriter) addRune(r rune) {
	if w.atLineStart {
		w.atLineStart = false
		w.isVerbatim = unicode.IsSpace(r)
	}
	switch {
	case w.isVerbatim:
		w.verbatim = append(w.verbatim, r)
	case unicode.IsSpace(r):
		if len(w.word) > 0 {
			w.commitWord()
		}
		w.sep = append(w.sep, r)
	default:
		w.word = append(w.word, r)
		w.lineHasWords = true
	}
}

// endLine handles an input line terminator: a verbatim line is output as-is,
// a blank line becomes a paragraph break, and the final word of a paragraph
// line is committed, with the line break acting as a word separator.
func (w *LineWriter) endLine() {
	switch {
	case w.isVerbatim:
		line := trimTrailingSpace(w.verbatim)
		w.finishWrap()
		if len(line) == 0 {
			w.paraPending = true
		} else {
			w.emitLine(line)
		}
		w.verbatim = w.verbatim[:0]
		w.isVerbatim = false
	case !w.lineHasWords:
		w.finishWrap()
		w.paraPending = true
	default:
		if len(w.word) > 0 {
			w.commitWord()
		}
	}
	w.word = w.word[:0]
	w.sep = w.sep[:0]
	w.atLineStart = true
	w.lineHasWords = false
}

// commitWord moves the word under construction onto the wrapped line,
// breaking the line first if the word wouldn't fit.  Spaces between words on
// the same input line are preserved; a break or an input line terminator
// between words becomes a single space.  Wrapped lines never start with
// spaces, so a word carried to a fresh line drops its separator.
func (w *LineWriter) commitWord() {
	sep := w.sep
	switch {
	case len(w.wrap) == 0:
		sep = nil
	case len(sep) == 0:
		sep = oneSpace
	}
	if w.width >= 0 && len(w.wrap) > 0 &&
		w.indentLen()+len(w.wrap)+len(sep)+len(w.word) > w.width {
		w.emitLine(w.wrap)
		w.wrap = w.wrap[:0]
		sep = nil
	}
	w.wrap = append(w.wrap, sep...)
	w.wrap = append(w.wrap, w.word...)
	w.word = w.word[:0]
	w.sep = w.sep[:0]
}

var oneSpace = []rune{' '}

func (w *LineWriter) finishWrap() {
	if len(w.wrap) > 0 {
		w.emitLine(w.wrap)
		w.wrap = w.wrap[:0]
	}
}

func (w *LineWriter) emitLine(line []rune) {
	if w.err != nil {
		return
	}
	if w.paraPending {
		w.paraPending = false
		if w.started {
			if _, err := io.WriteString(w.w, "\n"); err != nil {
				w.err = err
				return
			}
		}
	}
	if _, err := io.WriteString(w.w, w.indent(w.emitted)+string(line)+"\n"); err != nil {
		w.err = err
		return
	}
	w.started = true
	w.emitted++
}

func (w *LineWriter) indent(n int) string {
	if len(w.indents) == 0 {
		return ""
	}
	if n >= len(w.indents) {
		n = len(w.indents) - 1
	}
	return w.indents[n]
}

func (w *LineWriter) indentLen() int {
	return utf8.RuneCountInString(w.indent(w.emitted))
}

func trimTrailingSpace(line []rune) []rune {
	end := len(line)
	for end > 0 && unicode.IsSpace(line[end-1]) {
		end--
	}
	return line[:end]
}
