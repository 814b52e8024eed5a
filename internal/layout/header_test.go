// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexHeaderRoundTrip(t *testing.T) {
	h := IndexHeader{
		Magic:      Magic,
		Tag:        0xdeadbeef,
		AlphaType:  2,
		Flags:      0,
		MaxNameLen: 64,
		MaxAccLen:  32,
		MaxDescLen: 256,
		MaxSeqLen:  123456,
		NSeq:       10,
		NRes:       987654321,
	}
	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	require.EqualValues(t, IndexHeaderSize, n)
	require.Equal(t, IndexHeaderSize, buf.Len())

	var got IndexHeader
	require.NoError(t, got.UnmarshalBytes(buf.Bytes()))
	require.Equal(t, h, got)
}

func TestIndexHeaderUnmarshalTruncated(t *testing.T) {
	var got IndexHeader
	require.Error(t, got.UnmarshalBytes(make([]byte, IndexHeaderSize-1)))
}

func TestSideHeaderRoundTrip(t *testing.T) {
	h := SideHeader{Magic: Magic, Tag: 42}
	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	var got SideHeader
	require.NoError(t, got.UnmarshalBytes(buf.Bytes()))
	require.Equal(t, h, got)
}

func TestIndexRecordRoundTrip(t *testing.T) {
	r := IndexRecord{PsqEnd: -1, MetadataEnd: 1000000}
	buf := make([]byte, IndexRecordSize)
	PutIndexRecord(buf, r)
	require.Equal(t, r, GetIndexRecord(buf))
}
