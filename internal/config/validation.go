package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"voidmod/internal/install"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Validate checks the config against the registered game ids.
func (c Config) Validate(knownGames []string) []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateActiveGame(knownGames)...)
	results = append(results, c.validateActivation()...)
	results = append(results, c.validateDownloads()...)
	results = append(results, c.validateGames(knownGames)...)
	return results
}

// HasErrors reports whether any result is at error level.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}

func (c Config) validateActiveGame(known []string) []ValidationResult {
	if c.ActiveGame == "" || contains(known, c.ActiveGame) {
		return nil
	}
	return []ValidationResult{{
		Level:   "error",
		Message: fmt.Sprintf("active_game %q is not a known game (known: %s)", c.ActiveGame, strings.Join(known, ", ")),
	}}
}

func (c Config) validateActivation() []ValidationResult {
	if _, err := install.ParseActivation(c.Activation); err != nil {
		return []ValidationResult{{Level: "error", Message: "activation: " + err.Error()}}
	}
	return nil
}

func (c Config) validateDownloads() []ValidationResult {
	var results []ValidationResult
	d := c.Downloads
	if d.QueueSize < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("downloads.queue_size must be positive, got %d", d.QueueSize),
		})
	}
	if d.Workers < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("downloads.workers must be positive, got %d", d.Workers),
		})
	}
	if d.Workers > 1 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("downloads.workers=%d: downloads will no longer finish in queue order", d.Workers),
		})
	}
	if d.TimeoutSec < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("downloads.timeout_s must not be negative, got %d", d.TimeoutSec),
		})
	}
	return results
}

func (c Config) validateGames(known []string) []ValidationResult {
	ids := make([]string, 0, len(c.Games))
	for id := range c.Games {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []ValidationResult
	for _, id := range ids {
		g := c.Games[id]
		if !contains(known, id) {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("games.%s: unknown game id, settings are ignored", id),
			})
		}
		if g.ScriptThreshold != nil && *g.ScriptThreshold < 0 {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("games.%s.script_threshold must not be negative, got %d", id, *g.ScriptThreshold),
			})
		}
		if g.InstallDir != "" {
			if st, err := os.Stat(g.InstallDir); err != nil || !st.IsDir() {
				results = append(results, ValidationResult{
					Level:   "warning",
					Message: fmt.Sprintf("games.%s.install_dir %q is not a directory", id, g.InstallDir),
				})
			}
		}
	}
	return results
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
