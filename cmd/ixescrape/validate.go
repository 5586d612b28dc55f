package main

import (
	"fmt"
	"regexp"

	"github.com/Clean1ines/iXe/internal/config"
)

// Project ids are hex GUIDs as the bank issues them.
var projectIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8,}$`)

// validateRunFlags checks the flag combination before any network or
// browser work starts.
func validateRunFlags(cfg *config.Config) error {
	if projectID == "" && subject == "" {
		return fmt.Errorf("either --proj or --subject is required")
	}
	if projectID != "" && subject != "" {
		return fmt.Errorf("--proj and --subject are mutually exclusive")
	}
	if projectID != "" && !projectIDPattern.MatchString(projectID) {
		return fmt.Errorf("--proj %q does not look like a project id", projectID)
	}
	if totalPages < 0 {
		return fmt.Errorf("--pages must be >= 0, got %d", totalPages)
	}
	if rateLimit < 0 {
		return fmt.Errorf("--rate must be > 0, got %v", rateLimit)
	}
	if renderers < 0 {
		return fmt.Errorf("--renderers must be >= 1, got %d", renderers)
	}
	switch storeKind {
	case "", config.StoreSQLite, config.StoreJSONL:
	default:
		return fmt.Errorf("--store must be %q or %q, got %q", config.StoreSQLite, config.StoreJSONL, storeKind)
	}
	return cfg.Validate()
}
