// Package features derives fixed-length feature vectors from sensor segments.
//
// A feature vector is the concatenation of five per-channel statistics
// (mean, population std, max, min, range) and a frequency block holding the
// DFT magnitudes of the first bins of every channel. The frequency block is
// flattened bin-major (bin 0 of every channel, then bin 1, ...) to match the
// layout the classifier was trained on, and is zero-padded to a fixed size.
package features

import (
	"errors"
	"fmt"
	"time"

	"physio-predictor/internal/common"
	"physio-predictor/internal/matrix"

	"github.com/rs/zerolog/log"
)

// Segment is the unit of feature extraction: rows are time samples, columns
// are channels.
type Segment = *matrix.Matrix

// ErrEmptySegment is returned for segments without samples or channels.
var ErrEmptySegment = errors.New("segment has no samples")

// ChannelCountError is returned when a segment has more channels than the
// frequency block can hold.
type ChannelCountError struct {
	Index    int
	Channels int
	Max      int
}

func (e *ChannelCountError) Error() string {
	return fmt.Sprintf("segment %d has %d channels, at most %d supported", e.Index, e.Channels, e.Max)
}

// MetricsTracker receives feature calculation telemetry.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCalcDuration(time.Duration)
	FeatureSampleCount(int)
}

// Extractor computes feature vectors. The zero value is not usable; use
// NewExtractor.
type Extractor struct {
	bins        int
	blockSize   int
	maxChannels int
	metrics     MetricsTracker
}

// NewExtractor returns an extractor for the standard 9-channel geometry.
func NewExtractor() *Extractor {
	return &Extractor{
		bins:        common.FFTBins,
		blockSize:   common.FFTBlockSize,
		maxChannels: common.SegmentChannels,
	}
}

// NewExtractorWithMetrics is NewExtractor with telemetry.
func NewExtractorWithMetrics(m MetricsTracker) *Extractor {
	e := NewExtractor()
	e.metrics = m
	return e
}

// VectorLen is the length of the vectors produced for segments with the
// given channel count.
func (e *Extractor) VectorLen(channels int) int {
	return common.StatCount*channels + e.blockSize
}

// Extract returns one feature vector per segment, in order.
func (e *Extractor) Extract(segments []Segment) ([][]float64, error) {
	start := time.Now()
	out := make([][]float64, 0, len(segments))
	samples := 0

	for i, seg := range segments {
		vec, err := e.extractOne(i, seg)
		if err != nil {
			if e.metrics != nil {
				e.metrics.FeatureErrorsInc()
			}
			return nil, err
		}
		samples += seg.Rows()
		out = append(out, vec)
	}

	if e.metrics != nil {
		e.metrics.FeatureCalcDuration(time.Since(start))
		e.metrics.FeatureSampleCount(samples)
	}
	return out, nil
}

func (e *Extractor) extractOne(idx int, seg Segment) ([]float64, error) {
	if seg == nil || seg.Rows() == 0 || seg.Cols() == 0 {
		return nil, fmt.Errorf("segment %d: %w", idx, ErrEmptySegment)
	}
	if seg.Cols() > e.maxChannels {
		return nil, &ChannelCountError{Index: idx, Channels: seg.Cols(), Max: e.maxChannels}
	}

	stats := channelStats(seg)
	freq := e.frequencyBlock(seg)

	vec := make([]float64, 0, e.VectorLen(seg.Cols()))
	vec = append(vec, stats.Mean...)
	vec = append(vec, stats.Std...)
	vec = append(vec, stats.Max...)
	vec = append(vec, stats.Min...)
	vec = append(vec, stats.Range...)
	vec = append(vec, freq...)

	log.Debug().
		Int("segment", idx).
		Stringer("shape", seg.Shape()).
		Int("features", len(vec)).
		Msg("features extracted")

	return vec, nil
}

// frequencyBlock lays out DFT magnitudes bin-major and zero-pads to blockSize.
func (e *Extractor) frequencyBlock(seg Segment) []float64 {
	cols := seg.Cols()
	mags := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		mags[j] = dftMagnitudes(seg.Column(j), e.bins)
	}

	block := make([]float64, e.blockSize)
	bins := len(mags[0])
	pos := 0
	for k := 0; k < bins; k++ {
		for j := 0; j < cols; j++ {
			block[pos] = mags[j][k]
			pos++
		}
	}
	return block
}

// Extract runs the default extractor.
func Extract(segments []Segment) ([][]float64, error) {
	return NewExtractor().Extract(segments)
}
