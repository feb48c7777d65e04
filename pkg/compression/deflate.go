// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bytes"
	"fmt"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/klauspost/compress/flate"
)

// Deflater compresses outbound permessage-deflate payloads.
// It is not safe for concurrent use.
type Deflater struct {
	writer    *flate.Writer
	buf       bytes.Buffer
	marker    [1]byte
	noContext bool
}

// NewDeflater returns a Deflater limited to a window of 2^bits bytes. When
// noContextTakeover is set every message is compressed independently.
// level is honoured for the full window only; smaller windows use the
// fixed level of flate.NewWriterWindow.
func NewDeflater(bits, level int, noContextTakeover bool) (*Deflater, error) {
	if bits < MinWindowBits || bits > MaxWindowBits {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, bits)
	}

	d := &Deflater{noContext: noContextTakeover}

	var err error
	if bits == MaxWindowBits {
		d.writer, err = flate.NewWriter(&d.buf, level)
	} else {
		d.writer, err = flate.NewWriterWindow(&d.buf, 1<<bits)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrCompressionFailure, err)
	}

	return d, nil
}

// Deflate compresses the continuation marker followed by content as one
// message and returns it without the sync flush tail. The returned slice is
// owned by the caller.
func (d *Deflater) Deflate(marker byte, content []byte) ([]byte, error) {
	d.buf.Reset()
	d.marker[0] = marker

	if _, err := d.writer.Write(d.marker[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrCompressionFailure, err)
	}
	if _, err := d.writer.Write(content); err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrCompressionFailure, err)
	}
	if err := d.writer.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrCompressionFailure, err)
	}

	out := d.buf.Bytes()
	if !bytes.HasSuffix(out, tail) {
		return nil, fmt.Errorf("%w: missing sync flush tail", gwerrors.ErrCompressionFailure)
	}
	out = bytes.Clone(out[:len(out)-len(tail)])

	if d.noContext {
		d.writer.Reset(&d.buf)
	}
	return out, nil
}

// Close releases the compressor.
func (d *Deflater) Close() error {
	if d.writer == nil {
		return nil
	}
	err := d.writer.Close()
	d.writer = nil
	d.buf = bytes.Buffer{}
	return err
}
