package protocol

// decodeQuotedField decodes a double-quoted row field in place. buf[start]
// is the first byte after the opening quote. It scans for the closing
// unescaped quote, rewriting escape sequences into buf starting at
// start as it goes (the decoded length can never exceed the source
// length, so this never overruns what it has already read). It returns
// the decoded subslice and the index in buf just past the closing quote.
//
// A field with no backslash takes a fast path: the original subslice is
// returned unmodified and no bytes are rewritten, per spec.md §4.H /
// §9's "no per-row heap allocation, skip the copy when there is nothing
// to unescape" contract.
func decodeQuotedField(buf []byte, start int) (value []byte, end int, err error) {
	i := start
	for i < len(buf) && buf[i] != '"' && buf[i] != '\\' {
		i++
	}
	if i >= len(buf) {
		return nil, 0, badReplyErr("UnexpectedEOF", "unterminated quoted field")
	}
	if buf[i] == '"' {
		// fast path: no escapes encountered
		return buf[start:i], i + 1, nil
	}

	// slow path: rewrite in place from 'start'
	w := start
	r := start
	for {
		if r >= len(buf) {
			return nil, 0, badReplyErr("UnexpectedEOF", "unterminated quoted field")
		}
		c := buf[r]
		switch {
		case c == '"':
			return buf[start:w], r + 1, nil
		case c == '\\':
			r++
			if r >= len(buf) {
				return nil, 0, badReplyErr("UnexpectedEOF", "unterminated escape sequence")
			}
			e := buf[r]
			switch e {
			case 't':
				buf[w] = '\t'
				w++
				r++
			case 'n':
				buf[w] = '\n'
				w++
				r++
			case 'r':
				buf[w] = '\r'
				w++
				r++
			case 'f':
				buf[w] = '\f'
				w++
				r++
			case '\\':
				buf[w] = '\\'
				w++
				r++
			case '"':
				buf[w] = '"'
				w++
				r++
			case '0', '1', '2', '3':
				if r+2 >= len(buf) {
					return nil, 0, badReplyErr("UnexpectedEOF", "truncated octal escape")
				}
				d1, d2 := buf[r+1], buf[r+2]
				if !isOctalDigit(d1) || !isOctalDigit(d2) {
					return nil, 0, badReplyErr("InvalidBackslashEscape", "invalid octal escape digits")
				}
				val := (int(e-'0') << 6) | (int(d1-'0') << 3) | int(d2-'0')
				buf[w] = byte(val)
				w++
				r += 3
			default:
				return nil, 0, badReplyErr("InvalidBackslashEscape", "unrecognized escape \\"+string(e))
			}
		default:
			buf[w] = c
			w++
			r++
		}
	}
}

func isOctalDigit(b byte) bool { return b >= '0' && b <= '7' }
