package cli

import (
	"fmt"
	"strings"

	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/model"
)

// suggestKinds provides helpful suggestions when a store kind is not
// recognized. Returns a formatted suggestion string.
func suggestKinds(query string) string {
	// Try to find close matches by prefix, then substring
	var matches []string
	for _, kind := range model.StoreKinds {
		if strings.HasPrefix(string(kind), strings.ToLower(query)) {
			matches = append(matches, color.Success(string(kind)))
		}
	}
	if len(matches) == 0 {
		for _, kind := range model.StoreKinds {
			if strings.Contains(string(kind), strings.ToLower(query)) {
				matches = append(matches, color.Success(string(kind)))
			}
		}
	}

	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
	}

	// No close matches - list the valid kinds
	var names []string
	for _, kind := range model.StoreKinds {
		names = append(names, color.Success(string(kind)))
	}
	return fmt.Sprintf("Store kinds: %s", strings.Join(names, ", "))
}

// suggestVersions provides helpful suggestions when a store version is
// not found among the versions rollback could reach.
func suggestVersions(query string, status model.StoreStatus) string {
	var known []string
	if status.Active != nil {
		known = append(known, status.Active.Version)
	}
	for _, info := range status.Retained {
		known = append(known, info.Version)
	}

	var matches []string
	for _, v := range known {
		if strings.HasPrefix(v, query) {
			matches = append(matches, color.Version(v))
		}
	}

	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
	}

	if len(known) == 0 {
		return fmt.Sprintf("No versions installed for %s yet.", status.Kind)
	}

	var names []string
	for _, v := range known {
		names = append(names, color.Version(v))
	}
	return fmt.Sprintf("Available versions: %s", strings.Join(names, ", "))
}

// suggestInit provides a suggestion to initialize an appliance state dir.
func suggestInit() string {
	return fmt.Sprintf("Run %s to create one.", color.Code("quorum init"))
}

// formatKindNotFoundError formats an unknown store kind error with
// suggestions.
func formatKindNotFoundError(query string) string {
	var sb strings.Builder

	sb.WriteString(color.Error(fmt.Sprintf("unknown store kind '%s'", query)))
	sb.WriteString("\n")

	// Add suggestions
	suggestion := suggestKinds(query)
	sb.WriteString(color.Dim("  " + suggestion))

	return sb.String()
}

// formatVersionNotFoundError formats a version not found error with
// suggestions drawn from the store's retained window.
func formatVersionNotFoundError(query string, status model.StoreStatus) string {
	var sb strings.Builder

	sb.WriteString(color.Error(fmt.Sprintf("version '%s' not found for store %s", query, status.Kind)))
	sb.WriteString("\n")

	// Add suggestions
	suggestion := suggestVersions(query, status)
	sb.WriteString(color.Dim("  " + suggestion))

	return sb.String()
}

// formatNotInApplianceError formats an error when not inside an appliance
// state directory.
func formatNotInApplianceError() string {
	var sb strings.Builder

	sb.WriteString(color.Error("not a quorum state directory (or any parent)"))
	sb.WriteString("\n")
	sb.WriteString(color.Dim("  " + suggestInit()))

	return sb.String()
}
