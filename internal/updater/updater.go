// Package updater decides whether an upstream CNPJ data release supersedes
// the one the backend last imported.
package updater

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// ParseRelease parses a release tag. Monthly tags such as "2026-10" are read
// as 2026.10.0; semver-style tags ("v1.4.2") parse as-is.
func ParseRelease(tag string) (*semver.Version, error) {
	tag = strings.TrimSpace(strings.TrimPrefix(tag, "v"))
	if tag == "" {
		return nil, fmt.Errorf("empty release tag")
	}
	if !strings.Contains(tag, ".") {
		tag = strings.ReplaceAll(tag, "-", ".")
	}
	v, err := semver.NewVersion(tag)
	if err != nil {
		return nil, fmt.Errorf("invalid release tag %q: %w", tag, err)
	}
	return v, nil
}

// Newer reports whether latest supersedes current.
func Newer(current, latest string) (bool, error) {
	currentVer, err := ParseRelease(current)
	if err != nil {
		return false, err
	}
	latestVer, err := ParseRelease(latest)
	if err != nil {
		return false, err
	}
	return latestVer.GreaterThan(currentVer), nil
}

// Reconcile sets UpdateAvailable when the release tags show a newer release
// the backend did not flag. An update the backend reported is never cleared.
// Unparseable tags leave info untouched.
func Reconcile(info *models.UpdateInfo, logger *slog.Logger) *models.UpdateInfo {
	if info == nil || info.UpdateAvailable || info.CurrentRelease == "" || info.LatestRelease == "" {
		return info
	}
	newer, err := Newer(info.CurrentRelease, info.LatestRelease)
	if err != nil {
		if logger != nil {
			logger.Debug("cannot compare release tags", "error", err)
		}
		return info
	}
	info.UpdateAvailable = newer
	return info
}
