package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeImages builds an IDX image stream for images of rows x cols pixels.
func encodeImages(t *testing.T, rows, cols int, images ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	header := []uint32{idxImagesMagic, uint32(len(images)), uint32(rows), uint32(cols)}
	require.NoError(t, binary.Write(&buf, binary.BigEndian, header))
	for _, img := range images {
		buf.Write(img)
	}
	return buf.Bytes()
}

func encodeLabels(t *testing.T, labels ...uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []uint32{idxLabelsMagic, uint32(len(labels))}))
	buf.Write(labels)
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func filledImage(v byte) []byte {
	return bytes.Repeat([]byte{v}, ImageSize)
}

func TestReadIDXImages(t *testing.T) {
	raw := encodeImages(t, ImageHeight, ImageWidth, filledImage(1), filledImage(2), filledImage(3))

	tests := []struct {
		name string
		data []byte
	}{
		{"plain", raw},
		{"gzip", gzipBytes(t, raw)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := ReadIDXImages(bytes.NewReader(tt.data), ImageHeight, ImageWidth)
			require.NoError(t, err)
			require.Len(t, images, 3)
			for i, img := range images {
				assert.Len(t, img, ImageSize)
				assert.Equal(t, byte(i+1), img[0])
				assert.Equal(t, byte(i+1), img[ImageSize-1])
			}
		})
	}
}

func TestReadIDXImages_Errors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		data := encodeLabels(t, 1, 2, 3)
		_, err := ReadIDXImages(bytes.NewReader(data), ImageHeight, ImageWidth)
		require.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("wrong geometry", func(t *testing.T) {
		data := encodeImages(t, 2, 2, []byte{0, 0, 0, 0})
		_, err := ReadIDXImages(bytes.NewReader(data), ImageHeight, ImageWidth)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2x2")
	})

	t.Run("truncated", func(t *testing.T) {
		data := encodeImages(t, ImageHeight, ImageWidth, filledImage(7))
		_, err := ReadIDXImages(bytes.NewReader(data[:len(data)-10]), ImageHeight, ImageWidth)
		require.Error(t, err)
	})
}

func TestReadIDXLabels(t *testing.T) {
	labels, err := ReadIDXLabels(bytes.NewReader(gzipBytes(t, encodeLabels(t, 0, 9, 4))), NumClasses)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 9, 4}, labels)

	_, err = ReadIDXLabels(bytes.NewReader(encodeLabels(t, 3, 10)), NumClasses)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = ReadIDXLabels(bytes.NewReader(encodeImages(t, ImageHeight, ImageWidth)), NumClasses)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestReadIDXImages_ShortStreamReportsMagic(t *testing.T) {
	// An 8-byte label header is shorter than an image header.
	_, err := ReadIDXImages(bytes.NewReader(encodeLabels(t)), ImageHeight, ImageWidth)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestReadIDX_OversizedCount(t *testing.T) {
	encodeHeader := func(fields ...uint32) []byte {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.BigEndian, fields))
		return buf.Bytes()
	}

	tests := []struct {
		name    string
		data    []byte
		images  bool
		wantErr error
	}{
		{
			name:    "images beyond limit",
			data:    append(encodeHeader(idxImagesMagic, 0x00FFFFFF, ImageHeight, ImageWidth), filledImage(1)...),
			images:  true,
			wantErr: ErrInvalidHeader,
		},
		{
			name:    "images overstated",
			data:    append(encodeHeader(idxImagesMagic, 50000, ImageHeight, ImageWidth), filledImage(1)...),
			images:  true,
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "labels beyond limit",
			data:    append(encodeHeader(idxLabelsMagic, 0xFFFFFFFF), 1, 2, 3),
			wantErr: ErrInvalidHeader,
		},
		{
			name:    "labels overstated",
			data:    append(encodeHeader(idxLabelsMagic, 50000), 1, 2, 3),
			wantErr: io.ErrUnexpectedEOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.images {
				_, err = ReadIDXImages(bytes.NewReader(tt.data), ImageHeight, ImageWidth)
			} else {
				_, err = ReadIDXLabels(bytes.NewReader(tt.data), NumClasses)
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
