package config

import (
	"os"
	"path/filepath"

	"github.com/galeed/Conversor/internal/domain"
)

// DefaultSettings returns baseline configuration for first launch:
// converted files land next to the user's downloads, WAV at CD
// quality preselected.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:    filepath.Join(homeDir, "Downloads"),
		TargetFormat: "wav",
		SampleRate:   44100,
		BitDepth:     16,
	}
}
