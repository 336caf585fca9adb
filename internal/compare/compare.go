// Package compare produces a word-level diff between a session's
// transcript and a resource's reference translation, for the practice
// "what did I miss" view. Grounded on the original server's compare.rs
// (changes, using similar::TextDiff::diff_words), reimplemented with
// pmezard/go-difflib's SequenceMatcher operating on word tokens, since Go
// has no direct counterpart to the similar crate.
package compare

import (
	"fmt"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"speechbridge/internal/resource"
)

// Change is one token of the diff: a word (or run of whitespace) tagged
// with how it relates to the reference translation.
type Change struct {
	ChangeType string `json:"change_type"` // "equal", "delete", or "insert"
	Content    string `json:"content"`
}

// words splits s into whitespace tokens interleaved with the whitespace
// itself, the way similar::diff_words treats runs of whitespace as their
// own tokens so re-joining the equal/insert/delete stream reproduces
// readable text.
func words(s string) []string {
	var out []string
	var tok strings.Builder
	flush := func() {
		if tok.Len() > 0 {
			out = append(out, tok.String())
			tok.Reset()
		}
	}
	lastSpace := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace != lastSpace && tok.Len() > 0 {
			flush()
		}
		tok.WriteRune(r)
		lastSpace = isSpace
	}
	flush()
	return out
}

// Changes diffs transcript (what the session actually produced) against
// the reference translation for resourcePath/lang. change_type "delete"
// marks words present in the transcript but missing from the reference;
// "insert" marks words present in the reference but missing from the
// transcript; "equal" marks words common to both — matching the original
// server's diff_words(transcript, reference) orientation exactly.
func Changes(assetsDir, resourcePath, lang, transcript string) ([]Change, error) {
	meta, err := resource.FromResourcePath(assetsDir, resourcePath)
	if err != nil {
		return nil, err
	}
	translationPath, err := meta.TranslationPath(lang)
	if err != nil {
		return nil, err
	}
	referenceBytes, err := os.ReadFile(translationPath)
	if err != nil {
		return nil, fmt.Errorf("compare: read reference translation %s: %w", translationPath, err)
	}
	reference := string(referenceBytes)

	src := words(transcript)
	dst := words(reference)

	sm := difflib.NewMatcher(src, dst)
	var changes []Change
	for _, op := range sm.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, w := range src[op.I1:op.I2] {
				changes = append(changes, Change{ChangeType: "equal", Content: w})
			}
		case 'd':
			for _, w := range src[op.I1:op.I2] {
				changes = append(changes, Change{ChangeType: "delete", Content: w})
			}
		case 'i':
			for _, w := range dst[op.J1:op.J2] {
				changes = append(changes, Change{ChangeType: "insert", Content: w})
			}
		case 'r':
			for _, w := range src[op.I1:op.I2] {
				changes = append(changes, Change{ChangeType: "delete", Content: w})
			}
			for _, w := range dst[op.J1:op.J2] {
				changes = append(changes, Change{ChangeType: "insert", Content: w})
			}
		}
	}
	return changes, nil
}
