// Copyright 2024 The dsqdata Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dsqdata_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-bio/dsqdata"
	"github.com/easel-bio/dsqdata/alphabet"
	"github.com/easel-bio/dsqdata/internal/dsqtest"
)

func TestWriterReader_RoundTrip_CanonicalDNA(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	rng := dsqtest.NewRand()
	records := dsqtest.RandomRecords(rng, alphabet.DNA, 1, 30, 30, 0)
	src := dsqtest.NewSliceSource(records)

	_, err := dsqdata.NewWriter(base, alphabet.DNA, src)
	require.NoError(t, err)

	r, err := dsqdata.Open(base, 1)
	require.NoError(t, err)
	defer r.Close()

	chunk, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 1, chunk.N)
	assert.EqualValues(t, 30, chunk.L[0])
	assert.Equal(t, records[0].Dsq, []uint8(chunk.Dsq[0][1:len(chunk.Dsq[0])-1]))
	r.Recycle(chunk)
}

func TestWriterReader_MultiConsumerCompleteDelivery(t *testing.T) {
	base := filepath.Join(t.TempDir(), "db")
	rng := dsqtest.NewRand()
	records := dsqtest.RandomRecords(rng, alphabet.DNA, 10000, 1, 200, 0.2)
	src := dsqtest.NewSliceSource(records)

	_, err := dsqdata.NewWriter(base, alphabet.DNA, src)
	require.NoError(t, err)

	r, err := dsqdata.Open(base, 4, dsqdata.WithMaxSeqPerChunk(64))
	require.NoError(t, err)
	defer r.Close()

	const nconsumers = 4
	results := make(chan []*dsqdata.Chunk, nconsumers)
	for c := 0; c < nconsumers; c++ {
		go func() {
			var got []*dsqdata.Chunk
			for {
				chunk, err := r.Read()
				if err != nil {
					break
				}
				// Copy out what we need before recycling, since the
				// chunk's slices are only valid until Recycle.
				copyChunk := cloneChunk(chunk)
				r.Recycle(chunk)
				got = append(got, copyChunk)
			}
			results <- got
		}()
	}

	seen := make(map[int64]bool)
	var total int
	for c := 0; c < nconsumers; c++ {
		got := <-results
		for _, chunk := range got {
			for i := 0; i < chunk.N; i++ {
				idx := chunk.I0 + int64(i)
				require.False(t, seen[idx], "sequence %d delivered more than once", idx)
				seen[idx] = true
				total++
			}
		}
	}
	assert.Equal(t, len(records), total)
	for i := range records {
		assert.True(t, seen[int64(i)], "sequence %d never delivered", i)
	}
}

// cloneChunk copies the fields a consumer needs to verify delivery
// after the chunk itself has been recycled and its buffers reused.
func cloneChunk(c *dsqdata.Chunk) *dsqdata.Chunk {
	clone := &dsqdata.Chunk{I0: c.I0, N: c.N}
	return clone
}
