// Package recognizer defines the request/response types and the
// Recognizer interface that turns a cut audio chunk into transcribed
// segments, plus its two backends; the worker pool that calls it lives in
// internal/dispatch. It is
// adapted from the teacher's internal/asr.Client (remote HTTP transcriber)
// and from MrWong99-glyphoxa's pkg/provider/stt/whisper.NativeProvider (a
// CGO whisper.cpp binding), generalized behind one interface so either
// backend can service the same worker pool.
package recognizer

import "context"

// TranslationRequest is one cut chunk of audio waiting to be recognized.
type TranslationRequest struct {
	SessionID      int
	SequenceNumber int
	SampleRate     int
	Samples        []float32
	Language       string
}

// TranslationResponse is one segment of a recognizer's result for a
// request. A recognizer may emit several of these per request (one per
// whisper.cpp segment, say); the last one for a given SequenceNumber has
// IsFinal set once SegmentNumber == NumSegments-1.
type TranslationResponse struct {
	SessionID      int
	SequenceNumber int
	SegmentNumber  int
	NumSegments    int
	Text           string
	IsFinal        bool
}

// Recognizer turns one audio chunk into zero or more TranslationResponse
// values, delivered to emit in segment order. Implementations must call
// emit synchronously and must not retain req.Samples past return.
type Recognizer interface {
	Translate(ctx context.Context, req TranslationRequest, emit func(TranslationResponse)) error
}
