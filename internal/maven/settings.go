package maven

import (
	"os"
	"path/filepath"
)

// SettingsSource tells where a settings document came from.
type SettingsSource string

const (
	SourceFile   SettingsSource = "file"
	SourceInline SettingsSource = "inline"
)

// SettingsDocument is the content destined for ~/.m2/settings.xml.
type SettingsDocument struct {
	Content []byte
	Source  SettingsSource
	// Path is the file that was read. Empty for inline documents.
	Path string
	// FileErr is why the file could not be used, when Source is inline.
	FileErr error
}

// ResolveSettings reads the settings file at pathCandidate. Any failure to
// read it selects the inline fallback, which is used verbatim.
func ResolveSettings(pathCandidate, inlineFallback string) SettingsDocument {
	if pathCandidate != "" {
		b, err := os.ReadFile(pathCandidate)
		if err == nil {
			return SettingsDocument{Content: b, Source: SourceFile, Path: pathCandidate}
		}
		return SettingsDocument{Content: []byte(inlineFallback), Source: SourceInline, FileErr: err}
	}
	return SettingsDocument{Content: []byte(inlineFallback), Source: SourceInline}
}

// SettingsPath is the well-known settings location under home.
func SettingsPath(home string) string {
	return filepath.Join(home, ".m2", "settings.xml")
}

// LocalRepositoryPath is Maven's default local repository under home.
func LocalRepositoryPath(home string) string {
	return filepath.Join(home, ".m2", "repository")
}

// WriteSettings writes doc to the settings location under home.
func WriteSettings(home string, doc SettingsDocument) (string, error) {
	p := SettingsPath(home)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, doc.Content, 0o600); err != nil {
		return "", err
	}
	return p, nil
}
