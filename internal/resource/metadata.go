// Package resource reads the metadata.json that accompanies each practice
// resource under ASSETS_DIR. Adapted from the original server's
// metadata.rs (Metadata::from_resource_path), expressed with Go's
// encoding/json instead of serde.
package resource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata describes one practice resource: its source audio, native
// language, and the set of reference translations available for
// comparison, keyed by language code.
type Metadata struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	URL          string            `json:"url"`
	License      string            `json:"license"`
	Audio        string            `json:"audio"`
	Skip         int               `json:"skip,omitempty"`
	Native       string            `json:"native"`
	Transcript   string            `json:"transcript,omitempty"`
	Translations map[string]string `json:"translations"`

	// EnclosingDirectory is the directory metadata.json was read from, not
	// part of the JSON wire format; every relative path in Metadata is
	// resolved against it.
	EnclosingDirectory string `json:"-"`
}

// FromResourcePath loads metadata.json for a resource under assetsDir.
// resourcePath may be an absolute path (used as-is) or a name relative to
// assetsDir, mirroring the original server's handling of both forms.
func FromResourcePath(assetsDir, resourcePath string) (*Metadata, error) {
	full := resourcePath
	if !strings.HasPrefix(resourcePath, "/") {
		full = filepath.Join(assetsDir, resourcePath)
	}

	metadataPath := filepath.Join(full, "metadata.json")
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", metadataPath, err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", metadataPath, err)
	}
	m.EnclosingDirectory = full
	return &m, nil
}

// AudioPath returns the full path to this resource's source audio file.
func (m *Metadata) AudioPath() string {
	return filepath.Join(m.EnclosingDirectory, m.Audio)
}

// TranslationPath returns the full path to the reference translation file
// for lang, or an error if no translation is registered for that
// language.
func (m *Metadata) TranslationPath(lang string) (string, error) {
	rel, ok := m.Translations[lang]
	if !ok {
		return "", fmt.Errorf("resource: no translation for language %q on resource %q", lang, m.Name)
	}
	return filepath.Join(m.EnclosingDirectory, rel), nil
}
