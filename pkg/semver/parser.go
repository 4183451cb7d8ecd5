// Package semver provides capability reference parsing and version checks for
// device API versions.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ParsedCapabilityRef holds the parsed components of a capability reference string.
type ParsedCapabilityRef struct {
	// Capability id as advertised by the device (e.g., "mqtt-client")
	ID string
	// Version range if specified (e.g., "^1.0", "1", ""); empty string means any version
	Range string
	// Raw input string
	Raw string
}

var (
	capabilityIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+(\.\d+)?(-[\w.]+)?$`)
)

// ParseCapabilityRef parses a capability reference string.
//
// Supported formats:
//   - mqtt-client           (any version)
//   - mqtt-client@1         (major only)
//   - mqtt-client@1.0       (exact version, two or three components)
//   - mqtt-client@^1.0      (caret range)
//   - mqtt-client@>=1.1     (comparison range)
func ParseCapabilityRef(input string) (*ParsedCapabilityRef, error) {
	raw := strings.TrimSpace(input)

	id, rangeStr, _ := strings.Cut(raw, "@")
	if !ValidateCapabilityID(id) {
		return nil, fmt.Errorf("%s - invalid capability id: %q", logPrefix, raw)
	}
	if strings.Contains(raw, "@") && rangeStr == "" {
		return nil, fmt.Errorf("%s - empty version range: %q", logPrefix, raw)
	}

	return &ParsedCapabilityRef{
		ID:    id,
		Range: rangeStr,
		Raw:   raw,
	}, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "1").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "1.0" or "1.2.3").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// BuildCapabilityString builds a capability reference from an id and optional version.
func BuildCapabilityString(id, version string) string {
	if version != "" {
		return id + "@" + version
	}
	return id
}

// ValidateCapabilityID validates a capability id (lowercase, alphanumeric, hyphens).
func ValidateCapabilityID(id string) bool {
	return capabilityIDRegex.MatchString(id)
}
