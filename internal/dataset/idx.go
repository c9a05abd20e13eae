package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// IDX magic numbers.
const (
	idxImagesMagic = 2051 // 0x00000803: unsigned byte, 3 dimensions
	idxLabelsMagic = 2049 // 0x00000801: unsigned byte, 1 dimension
)

// maxIDXItems bounds the item count a header may declare.
const maxIDXItems = 1 << 20

// idxBlockItems is the number of images decoded per read.
const idxBlockItems = 4096

var (
	// ErrInvalidMagic is returned when an IDX stream does not start with the expected magic.
	ErrInvalidMagic = errors.New("invalid IDX magic number")
	// ErrInvalidHeader is returned for an IDX header declaring an implausible item count.
	ErrInvalidHeader = errors.New("invalid IDX header")
)

// readMagic reads the leading uint32 and checks it before anything else is decoded.
func readMagic(r io.Reader, want uint32) error {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return err
	}
	if magic != want {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidMagic, magic, want)
	}
	return nil
}

// maybeGunzip returns a reader over the decompressed stream when r starts with the gzip
// header, and over r unchanged otherwise.
func maybeGunzip(r io.Reader) (io.Reader, func() error, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil {
		return nil, nil, fmt.Errorf("peek header: %w", err)
	}
	if head[0] != 0x1f || head[1] != 0x8b {
		return br, func() error { return nil }, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return zr, zr.Close, nil
}

// ReadIDXImages decodes an IDX image stream (plain or gzip-compressed).
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255), row-major
//
// Every image must be rows x cols == want pixels.
func ReadIDXImages(r io.Reader, wantRows, wantCols int) ([][]byte, error) {
	src, closeFn, err := maybeGunzip(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if err := readMagic(src, idxImagesMagic); err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	var dims [3]uint32
	if err := binary.Read(src, binary.BigEndian, &dims); err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	numImages, rows, cols := int(dims[0]), int(dims[1]), int(dims[2])
	if rows != wantRows || cols != wantCols {
		return nil, fmt.Errorf("image geometry %dx%d, want %dx%d", rows, cols, wantRows, wantCols)
	}
	if numImages > maxIDXItems {
		return nil, fmt.Errorf("%w: header declares %d images, limit is %d", ErrInvalidHeader, numImages, maxIDXItems)
	}

	imageSize := rows * cols
	// Read in blocks so a header that overstates the count fails on the short read
	// instead of allocating for images that are not there.
	images := make([][]byte, 0, min(numImages, idxBlockItems))
	for read := 0; read < numImages; {
		n := min(idxBlockItems, numImages-read)
		block := make([]byte, n*imageSize)
		if _, err := io.ReadFull(src, block); err != nil {
			return nil, fmt.Errorf("read %d images: %w", numImages, err)
		}
		for i := 0; i < n; i++ {
			images = append(images, block[i*imageSize:(i+1)*imageSize:(i+1)*imageSize])
		}
		read += n
	}
	return images, nil
}

// ReadIDXLabels decodes an IDX label stream (plain or gzip-compressed).
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes
//
// Labels outside [0, numClasses) are rejected.
func ReadIDXLabels(r io.Reader, numClasses int) ([]uint8, error) {
	src, closeFn, err := maybeGunzip(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if err := readMagic(src, idxLabelsMagic); err != nil {
		return nil, fmt.Errorf("read label header: %w", err)
	}
	var count uint32
	if err := binary.Read(src, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read label header: %w", err)
	}
	if int(count) > maxIDXItems {
		return nil, fmt.Errorf("%w: header declares %d labels, limit is %d", ErrInvalidHeader, count, maxIDXItems)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(src, int64(count)))
	if err != nil {
		return nil, fmt.Errorf("read %d labels: %w", count, err)
	}
	if n != int64(count) {
		return nil, fmt.Errorf("read %d labels: got %d: %w", count, n, io.ErrUnexpectedEOF)
	}
	labels := buf.Bytes()
	for i, l := range labels {
		if int(l) >= numClasses {
			return nil, fmt.Errorf("label %d out of range [0, %d) at index %d", l, numClasses, i)
		}
	}
	return labels, nil
}
