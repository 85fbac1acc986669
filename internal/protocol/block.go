package protocol

import (
	"encoding/binary"
	"io"
)

// BlockSize is the maximum payload size of a single MAPI block.
const BlockSize = 8190

// blockHeader is the 2-byte little-endian block header: the high 15 bits
// carry the payload size, the low bit carries the "last block" flag.
type blockHeader uint16

func newBlockHeader(size int, last bool) blockHeader {
	n := uint16(size) * 2
	if last {
		n |= 1
	}
	return blockHeader(n)
}

func (h blockHeader) size() int    { return int(h) / 2 }
func (h blockHeader) isLast() bool { return h&1 != 0 }

func (h blockHeader) put(dst []byte) {
	binary.LittleEndian.PutUint16(dst, uint16(h))
}

func blockHeaderFromBytes(b [2]byte) blockHeader {
	return blockHeader(binary.LittleEndian.Uint16(b[:]))
}

// blockState tracks the reader's position within the incoming block
// stream: start (awaiting a header), body (inside a block's payload),
// and end (the last block's payload has been fully delivered). Unlike an
// implementation built over raw, non-blocking reads, blockReader sits on
// top of io.ReadFull, which already absorbs any misalignment between
// block boundaries and the underlying transport's read sizes — so no
// separate "saw one header byte so far" state is needed here.
type blockState int

const (
	stateStart blockState = iota
	stateBody
	stateEnd
)

// blockReader incrementally deframes a MAPI message from an underlying
// io.Reader without assuming any alignment between block boundaries and
// the caller's read sizes. One blockReader corresponds to one message;
// call reset to reuse it for the next message on the same connection.
type blockReader struct {
	r         io.Reader
	st        blockState
	remaining int
	last      bool
}

func newBlockReader(r io.Reader) *blockReader {
	return &blockReader{r: r, st: stateStart}
}

// reset rearms the reader for a new message. It must only be called once
// the previous message reached stateEnd (or was abandoned because the
// connection is being torn down).
func (br *blockReader) reset() {
	br.st = stateStart
	br.remaining = 0
	br.last = false
}

// done reports whether the last block of the current message has been
// fully consumed.
func (br *blockReader) done() bool { return br.st == stateEnd }

// readHeader blocks until a full 2-byte header has been read and
// transitions into stateBody (or directly to stateEnd for a zero-length
// last block).
func (br *blockReader) readHeader() error {
	var buf [2]byte
	if _, err := io.ReadFull(br.r, buf[:]); err != nil {
		return framingErr("UnexpectedEOF", "transport EOF within block header: "+err.Error())
	}
	h := blockHeaderFromBytes(buf)
	if h.size() > BlockSize {
		return framingErr("InvalidBlockSize", "block size exceeds maximum")
	}
	br.remaining = h.size()
	br.last = h.isLast()
	if br.remaining == 0 {
		if br.last {
			br.st = stateEnd
		} else {
			br.st = stateStart
		}
	} else {
		br.st = stateBody
	}
	return nil
}

// Read implements io.Reader over the deframed payload stream of the
// current message. It returns (0, io.EOF) once the last block has been
// fully delivered.
func (br *blockReader) Read(p []byte) (int, error) {
	for {
		switch br.st {
		case stateEnd:
			return 0, io.EOF
		case stateStart:
			if err := br.readHeader(); err != nil {
				return 0, err
			}
			continue
		case stateBody:
			if len(p) == 0 {
				return 0, nil
			}
			toRead := len(p)
			if toRead > br.remaining {
				toRead = br.remaining
			}
			n, err := br.r.Read(p[:toRead])
			br.remaining -= n
			if br.remaining == 0 {
				if br.last {
					br.st = stateEnd
				} else {
					br.st = stateStart
				}
			}
			if err != nil && n == 0 {
				return 0, framingErr("UnexpectedEOF", "transport EOF within block body: "+err.Error())
			}
			return n, nil
		}
	}
}

// blockWriter segments arbitrary writes into blocks of up to BlockSize
// bytes, back-patching each block's header once its payload is known.
type blockWriter struct {
	w   io.Writer
	buf []byte // pending unflushed payload, header-less
}

func newBlockWriter(w io.Writer) *blockWriter {
	return &blockWriter{w: w}
}

// Write buffers data, eagerly flushing full BlockSize chunks as
// non-final blocks. Any remainder smaller than BlockSize stays buffered
// until finish decides how to terminate the message.
func (bw *blockWriter) Write(p []byte) (int, error) {
	bw.buf = append(bw.buf, p...)
	for len(bw.buf) >= BlockSize {
		if err := bw.writeBlock(bw.buf[:BlockSize], false); err != nil {
			return 0, err
		}
		bw.buf = bw.buf[BlockSize:]
	}
	return len(p), nil
}

// writeData is the non-streaming equivalent of Write followed by finish
// when last is true, or just Write when last is false.
func (bw *blockWriter) writeData(data []byte, last bool) error {
	if _, err := bw.Write(data); err != nil {
		return err
	}
	if last {
		return bw.finish()
	}
	return nil
}

func (bw *blockWriter) writeBlock(data []byte, last bool) error {
	h := newBlockHeader(len(data), last)
	frame := make([]byte, 2+len(data))
	h.put(frame[:2])
	copy(frame[2:], data)
	_, err := bw.w.Write(frame)
	return err
}

// finish flushes any buffered bytes (always fewer than BlockSize, by
// Write's invariant) as the final, last-flagged block. If nothing is
// buffered — including when the message length was an exact multiple of
// BlockSize — this emits the empty last=1 block that makes the boundary
// representable on the wire.
func (bw *blockWriter) finish() error {
	if err := bw.writeBlock(bw.buf, true); err != nil {
		return err
	}
	bw.buf = bw.buf[:0]
	return nil
}
