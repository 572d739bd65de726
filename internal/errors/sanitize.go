package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Pattern to match file paths (Linux and Windows)
	filePathPattern = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+)|([A-Z]:\\[a-zA-Z0-9_\-\\ ./]+)`)

	// Pattern to match IP addresses
	ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// Pattern to match credentials leaking through transport errors
	credentialPattern = regexp.MustCompile(`(?i)(password=|secret=|token=|api[_-]?key=|authorization:)`)
)

// ProductionMode determines whether status messages are sanitized.
var ProductionMode = false

// SetProductionMode sets the production mode flag.
func SetProductionMode(production bool) {
	ProductionMode = production
}

// SanitizeString removes sensitive information from a string.
func SanitizeString(s string) string {
	if !ProductionMode {
		return s
	}

	// Endpoint paths are useful to investigators; only strip local files.
	s = filePathPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "/neo") || strings.HasPrefix(match, "/afasa") ||
			strings.HasPrefix(match, "/investigator") || strings.HasPrefix(match, "/alerts") {
			return match
		}
		return filepath.Base(match)
	})

	s = ipPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.Split(match, ".")
		if len(parts) == 4 {
			return fmt.Sprintf("%s.%s.x.x", parts[0], parts[1])
		}
		return "x.x.x.x"
	})

	if credentialPattern.MatchString(s) {
		s = "request failed"
	}

	return s
}

// SafeMessage converts any error into a single user-visible status line.
// Known kinds get a fixed prefix; server-provided detail is kept after it.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return SanitizeString(err.Error())
	}

	var prefix string
	switch e.Kind {
	case KindNetwork:
		prefix = "Backend unreachable"
	case KindTimeout:
		prefix = "Request timed out"
	case KindServer:
		prefix = "Server error"
	case KindGraphNotFound:
		prefix = "Graph not found"
	case KindIneligibleAlert:
		prefix = "Alert not eligible for dispute"
	case KindNoActiveDispute:
		prefix = "No active dispute"
	case KindNoSelection:
		prefix = "No selection"
	case KindValidation:
		prefix = "Invalid input"
	case KindPersistence:
		prefix = "Save failed"
	case KindNotFound:
		prefix = "Not found"
	default:
		prefix = "Error"
	}

	detail := e.Message
	if detail == "" && e.Err != nil {
		// Nested workbench errors carry the more specific message.
		var inner *Error
		if errors.As(e.Err, &inner) && inner.Message != "" {
			detail = inner.Message
		}
	}
	if detail == "" {
		return prefix
	}
	return prefix + ": " + SanitizeString(detail)
}
