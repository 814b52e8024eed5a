// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubRoundTripNoDigest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStub(&buf, 777, nil))

	tag, digest, err := ReadStub(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(777), tag)
	require.Nil(t, digest)
}

func TestStubRoundTripWithDigest(t *testing.T) {
	var buf bytes.Buffer
	d := &Digest{SequenceChecksum: 111, MetadataChecksum: 222}
	require.NoError(t, WriteStub(&buf, 9, d))

	tag, got, err := ReadStub(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(9), tag)
	require.Equal(t, d, got)
}

func TestStubIgnoresTrailingHumanText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStub(&buf, 5, nil))
	buf.WriteString("this database was built on a Tuesday\nand has 10000 sequences\n")

	tag, _, err := ReadStub(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(5), tag)
}

func TestReadStubRejectsMalformedFirstLine(t *testing.T) {
	_, _, err := ReadStub(bytes.NewBufferString("not a dsqdata stub\n"))
	require.Error(t, err)
}
