package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// Parse parses a device API version. Devices advertise short forms such as
// "1.0"; missing components are treated as zero.
func Parse(version string) (*masterminds.Version, error) {
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", resolverLogPrefix, version, err)
	}
	return v, nil
}

// Major returns the major component of a version, or -1 if it cannot be parsed.
func Major(version string) int {
	v, err := Parse(version)
	if err != nil {
		return -1
	}
	return int(v.Major())
}

// Satisfies reports whether version matches rangeStr.
//
// An empty range matches every parseable version. A major-only range ("1")
// matches any version with that major. An exact version matches by value, so
// "1.0" and "1.0.0" are equal.
func Satisfies(version, rangeStr string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}

	switch {
	case rangeStr == "":
		return true, nil
	case IsMajorOnly(rangeStr):
		return fmt.Sprintf("%d", v.Major()) == rangeStr, nil
	case IsExactVersion(rangeStr):
		want, err := Parse(rangeStr)
		if err != nil {
			return false, err
		}
		return v.Equal(want), nil
	}

	c, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false, fmt.Errorf("%s - invalid range %q: %w", resolverLogPrefix, rangeStr, err)
	}
	return c.Check(v), nil
}

// Compare returns -1, 0 or 1 comparing a to b. Unparseable versions compare
// lower than parseable ones and equal to each other.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
