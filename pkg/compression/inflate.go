// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/klauspost/compress/flate"
)

const (
	MinWindowBits = 8
	MaxWindowBits = 15

	// ChunkSize is the size of the blocks the Inflater reads at a time.
	ChunkSize = 8192
)

var (
	// ErrInvalidWindow is returned for window bits outside [MinWindowBits, MaxWindowBits].
	ErrInvalidWindow = errors.New("invalid deflate window bits")

	// tail is the sync flush marker stripped by the sender.
	tail = []byte{0x00, 0x00, 0xff, 0xff}

	// final is an empty final stored block, so the reader ends on io.EOF
	// instead of waiting for more input.
	final = []byte{0x01, 0x00, 0x00, 0xff, 0xff}
)

// Inflater decompresses inbound permessage-deflate payloads.
// It is not safe for concurrent use.
type Inflater struct {
	reader io.ReadCloser
	window int
	limit  int
	dict   []byte
	src    messageReader
	chunk  []byte
}

// messageReader yields a payload followed by the final stored block. It
// implements io.ByteReader so the decompressor does not buffer past it.
type messageReader struct {
	body bytes.Reader
	end  bytes.Reader
}

func (r *messageReader) reset(body []byte) {
	r.body.Reset(body)
	r.end.Reset(final)
}

func (r *messageReader) Read(p []byte) (int, error) {
	if r.body.Len() > 0 {
		return r.body.Read(p)
	}
	return r.end.Read(p)
}

func (r *messageReader) ReadByte() (byte, error) {
	if r.body.Len() > 0 {
		return r.body.ReadByte()
	}
	return r.end.ReadByte()
}

// NewInflater returns an Inflater for a peer compressing with the given window
// bits. A positive limit bounds the size of one inflated message.
func NewInflater(bits, limit int) (*Inflater, error) {
	if bits < MinWindowBits || bits > MaxWindowBits {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, bits)
	}
	return &Inflater{
		window: 1 << bits,
		limit:  limit,
		chunk:  make([]byte, ChunkSize),
	}, nil
}

// Inflate decompresses one message payload. The payload is extended in place
// with the stripped tail when it has spare capacity. On error no partial
// output is returned.
func (f *Inflater) Inflate(payload []byte) ([]byte, error) {
	f.src.reset(append(payload, tail...))

	if f.reader == nil {
		f.reader = flate.NewReaderDict(&f.src, f.dict)
	} else if err := f.reader.(flate.Resetter).Reset(&f.src, f.dict); err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrCompressionFailure, err)
	}

	var out []byte
	for {
		n, err := f.reader.Read(f.chunk)
		out = append(out, f.chunk[:n]...)
		if f.limit > 0 && len(out) > f.limit {
			f.dict = f.dict[:0]
			return nil, fmt.Errorf("%w: inflated message exceeds %d bytes", gwerrors.ErrCompressionFailure, f.limit)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.dict = f.dict[:0]
			return nil, fmt.Errorf("%w: %v", gwerrors.ErrCompressionFailure, err)
		}
	}

	f.slide(out)
	return out, nil
}

// slide appends out to the dictionary, keeping only the last window bytes.
func (f *Inflater) slide(out []byte) {
	if len(out) >= f.window {
		f.dict = append(f.dict[:0], out[len(out)-f.window:]...)
		return
	}
	if keep := f.window - len(out); len(f.dict) > keep {
		f.dict = append(f.dict[:0], f.dict[len(f.dict)-keep:]...)
	}
	f.dict = append(f.dict, out...)
}

// Close releases the decompressor.
func (f *Inflater) Close() error {
	f.dict = nil
	if f.reader == nil {
		return nil
	}
	err := f.reader.Close()
	f.reader = nil
	return err
}
