// Package segment implements the pure silence-pivot segmenter: given a
// buffer of mono float32 PCM samples, decide where (if anywhere) to cut
// the next transcription chunk.
//
// The heuristic is adapted from the teacher project's RMS "is this chunk
// too quiet" check (internal/session/recording.go, internal/session/session.go),
// generalized from a fixed-size window to a trailing-silence scan over a
// growable buffer.
package segment

// MinChunkSeconds is the minimum chunk length the segmenter will ever cut
// on silence grounds. Once the buffer is at least this long and its tail
// is silent, the segmenter cuts there rather than waiting indefinitely.
const MinChunkSeconds = 3

// silenceRMSThreshold is the RMS level (on a [0,1] float32 scale) below
// which a window of samples is considered silent. Mirrors the teacher's
// `rms < 0.01` quiet-chunk check in internal/session/recording.go.
const silenceRMSThreshold = 0.01

// silenceWindowSeconds is the trailing window scanned for silence, in
// seconds. A silence run must span at least this long at the tail of the
// buffer to trigger a cut once MinChunkSeconds worth of audio has
// accumulated.
const silenceWindowSeconds = 0.75

// maxChunkSeconds bounds how long the segmenter lets a buffer grow before
// forcing a cut regardless of whether the tail is silent, so a single
// long utterance with no pause still gets transcribed incrementally.
const maxChunkSeconds = 12

// Find returns the pivot index at which to cut buf, or ok=false if no cut
// should happen yet. It never returns pivot == 0, and always returns
// pivot <= len(buf).
//
// When the cut happens purely because the tail of the buffer is silent,
// Find returns exactly MinChunkSeconds*sampleRate so a caller can
// distinguish "cut on silence" from "cut because the buffer grew long".
// The session reader does not make that distinction: it cuts at whatever
// pivot is returned and keeps no silence_length count.
func Find(buf []float32, sampleRate int) (pivot int, ok bool) {
	if sampleRate <= 0 || len(buf) == 0 {
		return 0, false
	}

	minChunk := MinChunkSeconds * sampleRate
	maxChunk := maxChunkSeconds * sampleRate

	if len(buf) >= maxChunk {
		return maxChunk, true
	}

	if len(buf) < minChunk {
		return 0, false
	}

	window := int(silenceWindowSeconds * float64(sampleRate))
	if window <= 0 || window > len(buf) {
		return 0, false
	}

	if isSilent(buf[len(buf)-window:]) {
		return minChunk, true
	}

	return 0, false
}

// isSilent reports whether the RMS level of samples is below the silence
// threshold.
func isSilent(samples []float32) bool {
	if len(samples) == 0 {
		return true
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := sum / float64(len(samples))
	return rms < silenceRMSThreshold*silenceRMSThreshold
}
