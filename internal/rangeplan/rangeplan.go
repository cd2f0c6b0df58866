// Package rangeplan turns an HTTP Range header into an aligned chunk-fetch
// plan, per spec.md §4.6.
package rangeplan

import (
	"github.com/pkg/errors"
	range_parser "github.com/quantumsheep/range-parser"
)

// ErrRangeNotSatisfiable is returned when the requested range is malformed
// or falls outside [0, fileSize); callers must answer 416 with
// Content-Range: bytes */<file_size>.
var ErrRangeNotSatisfiable = errors.New("rangeplan: range not satisfiable")

// Plan is the immutable, per-request aligned fetch plan of spec.md §3.
type Plan struct {
	Start      int64
	End        int64
	FileSize   int64
	ChunkSize  int64
	OffsetBase int64
	FirstCut   int64
	LastCut    int64
	PartCount  int64

	// HasRange records whether the caller supplied a Range header at all,
	// so HTTPFrontend knows whether to answer 200 or 206.
	HasRange bool
}

// Offset returns the byte offset of part (1-indexed) within the file.
func (p *Plan) Offset(part int64) int64 {
	return p.OffsetBase + (part-1)*p.ChunkSize
}

// Compute computes the aligned fetch plan for fileSize bytes, parsing
// rangeHeader per spec.md §4.6's grammar (`bytes=<s>-<e>`, `bytes=<s>-`, or
// absent). chunkSize must be a positive multiple of 1 KiB within
// [64 KiB, 512 KiB].
func Compute(fileSize int64, rangeHeader string, chunkSize int64) (*Plan, error) {
	if fileSize <= 0 {
		return nil, ErrRangeNotSatisfiable
	}

	start, end := int64(0), fileSize-1
	hasRange := rangeHeader != ""

	if hasRange {
		ranges, err := range_parser.Parse(fileSize, rangeHeader)
		if err != nil || len(ranges) == 0 {
			return nil, ErrRangeNotSatisfiable
		}
		start, end = ranges[0].Start, ranges[0].End
	}

	if start < 0 || end >= fileSize || end < start {
		return nil, ErrRangeNotSatisfiable
	}

	offsetBase := start - (start % chunkSize)
	firstCut := start - offsetBase
	lastCut := (end % chunkSize) + 1
	partCount := ceilDiv(end+1, chunkSize) - (offsetBase / chunkSize)

	return &Plan{
		Start:      start,
		End:        end,
		FileSize:   fileSize,
		ChunkSize:  chunkSize,
		OffsetBase: offsetBase,
		FirstCut:   firstCut,
		LastCut:    lastCut,
		PartCount:  partCount,
		HasRange:   hasRange,
	}, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
