// Package configutil loads the json5 configuration files pricescout reads at
// startup: a base file with an optional ".local" sibling merged over it, so
// per-machine overrides (local proxy endpoints, API keys) stay out of the
// committed config.
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// localPath derives the override sibling of a config path:
// pricescout.json5 -> pricescout.local.json5.
func localPath(name string) string {
	dir := filepath.Dir(name)
	base := filepath.Base(name)
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i] + ".local" + base[i:]
	} else {
		base += ".local"
	}
	return filepath.Join(dir, base)
}

// ReadConfig reads name and, when present, merges its local sibling over it.
// Override fields win field by field. When neither file exists the error
// satisfies os.IsNotExist so callers can fall back to defaults.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	base, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(base) > 0 {
		if err := json5.Unmarshal(base, &out); err != nil {
			return out, fmt.Errorf("parsing %s: %w", name, err)
		}
		found = true
	}

	overridePath := localPath(name)
	override, err := os.ReadFile(overridePath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(override) > 0 {
		var local T
		if err := json5.Unmarshal(override, &local); err != nil {
			return out, fmt.Errorf("parsing %s: %w", overridePath, err)
		}
		if err := mergo.Merge(&out, local, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("applied local config overrides", "path", overridePath)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively walks from the working directory toward the filesystem
// root looking for name. Telemetry uses it so one telemetry.json5 at the
// repo root covers every package's tests.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return zero, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return zero, os.ErrNotExist
		}
		current = parent
	}
}
