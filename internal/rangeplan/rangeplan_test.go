package rangeplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunk = 64 * 1024

func TestComputeNoRangeCoversWholeFile(t *testing.T) {
	p, err := Compute(1_000_000, "", chunk)
	require.NoError(t, err)
	assert.False(t, p.HasRange)
	assert.Equal(t, int64(0), p.Start)
	assert.Equal(t, int64(999_999), p.End)
}

func TestComputeExplicitRange(t *testing.T) {
	p, err := Compute(1_000_000, "bytes=100-199", chunk)
	require.NoError(t, err)
	assert.True(t, p.HasRange)
	assert.Equal(t, int64(100), p.Start)
	assert.Equal(t, int64(199), p.End)
	assert.Equal(t, int64(0), p.OffsetBase)
	assert.Equal(t, int64(100), p.FirstCut)
	assert.Equal(t, int64(200), p.LastCut)
	assert.Equal(t, int64(1), p.PartCount, "range fits in one aligned chunk")
}

func TestComputeOpenEndedRange(t *testing.T) {
	p, err := Compute(1_000_000, "bytes=500000-", chunk)
	require.NoError(t, err)
	assert.Equal(t, int64(999_999), p.End)
}

func TestComputeSpansMultipleChunks(t *testing.T) {
	fileSize := int64(200 * 1024)
	p, err := Compute(fileSize, "bytes=1000-150000", chunk)
	require.NoError(t, err)

	assert.Equal(t, int64(0), p.OffsetBase)
	assert.Equal(t, int64(1000), p.FirstCut)
	wantPartCount := ceilDiv(150001, chunk) - 0
	assert.Equal(t, wantPartCount, p.PartCount)
	assert.Greater(t, p.PartCount, int64(1))
}

func TestComputeRejectsEndBeyondFileSize(t *testing.T) {
	_, err := Compute(1000, "bytes=0-1000", chunk)
	assert.ErrorIs(t, err, ErrRangeNotSatisfiable)
}

func TestComputeRejectsEndBeforeStart(t *testing.T) {
	_, err := Compute(1000, "bytes=500-100", chunk)
	assert.ErrorIs(t, err, ErrRangeNotSatisfiable)
}

func TestComputeRejectsMalformedHeader(t *testing.T) {
	_, err := Compute(1000, "not-a-range", chunk)
	assert.ErrorIs(t, err, ErrRangeNotSatisfiable)
}

func TestComputeRejectsZeroFileSize(t *testing.T) {
	_, err := Compute(0, "", chunk)
	assert.ErrorIs(t, err, ErrRangeNotSatisfiable)
}

func TestOffsetAdvancesByChunkSize(t *testing.T) {
	p, err := Compute(1_000_000, "bytes=100-900000", chunk)
	require.NoError(t, err)
	for part := int64(1); part <= 3 && part <= p.PartCount; part++ {
		assert.Equal(t, p.OffsetBase+(part-1)*chunk, p.Offset(part))
	}
}

func TestPartCountAtLeastOne(t *testing.T) {
	p, err := Compute(10, "bytes=0-9", chunk)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.PartCount, int64(1))
}
