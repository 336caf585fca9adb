package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"speechbridge/internal/wav"
)

// Remote is a Recognizer that POSTs each cut chunk, encoded as a WAV file,
// to a standalone recognition server. Adapted from the teacher's
// internal/asr.Client.TranscribeWAV.
type Remote struct {
	BaseURL string
	HTTP    *http.Client
}

// NewRemote returns a Remote pointed at baseURL (e.g. WHISPER_SERVER).
func NewRemote(baseURL string) *Remote {
	return &Remote{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

type remoteResponse struct {
	Text string `json:"text"`
}

// Translate encodes req.Samples as WAV and posts it to BaseURL+"/transcribe".
// The remote server is not expected to segment output further, so Remote
// always emits exactly one final TranslationResponse (or none, for a
// silent/empty result).
func (r *Remote) Translate(ctx context.Context, req TranslationRequest, emit func(TranslationResponse)) error {
	payload := wav.Encode(req.Samples, req.SampleRate)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/transcribe", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("recognizer: build remote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "audio/wav")
	if req.Language != "" {
		httpReq.Header.Set("x-language", req.Language)
	}

	resp, err := r.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("recognizer: remote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("recognizer: remote status %s", resp.Status)
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("recognizer: decode remote response: %w", err)
	}
	if parsed.Text == "" {
		return nil
	}

	emit(TranslationResponse{
		SessionID:      req.SessionID,
		SequenceNumber: req.SequenceNumber,
		SegmentNumber:  0,
		NumSegments:    1,
		Text:           parsed.Text,
		IsFinal:        true,
	})
	return nil
}
