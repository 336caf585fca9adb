package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Local is a Recognizer backed by an in-process whisper.cpp model via CGO
// bindings, eliminating the network hop a remote recognizer pays on every
// chunk. The model is loaded once and shared; each Translate call opens
// its own whisper.cpp context, since a context is not safe for concurrent
// use but the model is.
type Local struct {
	mu    sync.Mutex // whisper.cpp contexts from the same model may not be created concurrently
	model whisperlib.Model
}

// NewLocal loads a whisper.cpp model from modelPath.
func NewLocal(modelPath string) (*Local, error) {
	if modelPath == "" {
		return nil, errors.New("recognizer: local model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("recognizer: load whisper model %q: %w", modelPath, err)
	}
	return &Local{model: model}, nil
}

// Close releases the underlying whisper.cpp model.
func (l *Local) Close() error {
	if l.model == nil {
		return nil
	}
	return l.model.Close()
}

// Translate runs whisper.cpp inference on req.Samples and emits one
// TranslationResponse per recognized segment.
func (l *Local) Translate(ctx context.Context, req TranslationRequest, emit func(TranslationResponse)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	wctx, err := l.model.NewContext()
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("recognizer: create whisper context: %w", err)
	}

	if req.Language != "" {
		if err := wctx.SetLanguage(req.Language); err != nil {
			return fmt.Errorf("recognizer: set language %q: %w", req.Language, err)
		}
	}

	if err := wctx.Process(req.Samples, nil, nil, nil); err != nil {
		return fmt.Errorf("recognizer: process audio: %w", err)
	}

	var texts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("recognizer: read whisper segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			texts = append(texts, text)
		}
	}

	if len(texts) == 0 {
		return nil
	}
	for i, text := range texts {
		emit(TranslationResponse{
			SessionID:      req.SessionID,
			SequenceNumber: req.SequenceNumber,
			SegmentNumber:  i,
			NumSegments:    len(texts),
			Text:           text,
			IsFinal:        i == len(texts)-1,
		})
	}
	return nil
}
