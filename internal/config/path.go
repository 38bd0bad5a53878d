package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary ensures that targetPath is within or equal to
// boundaryPath, so manifest paths in a config file cannot escape its
// directory with "../" sequences.
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve target path %q: %w", targetPath, err)
	}

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}

	return nil
}

// resolveManifests joins relative manifest paths onto baseDir and rejects
// those that end up outside it. Absolute paths are kept as written.
func resolveManifests(baseDir string, manifests []string) ([]string, error) {
	resolved := make([]string, 0, len(manifests))
	for _, m := range manifests {
		if filepath.IsAbs(m) {
			resolved = append(resolved, filepath.Clean(m))
			continue
		}
		p := filepath.Join(baseDir, m)
		if err := ValidatePathWithinBoundary(baseDir, p); err != nil {
			return nil, fmt.Errorf("invalid manifest path: %w", err)
		}
		resolved = append(resolved, filepath.Clean(p))
	}
	return resolved, nil
}
