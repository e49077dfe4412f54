package authz

import "strings"

// Match reports whether destination matches pattern.
// A "*" segment matches exactly one segment, a trailing "**" matches any
// suffix including none, every other segment must be equal.
func Match(pattern, destination string) bool {
	if pattern == "**" || pattern == "/**" {
		return true
	}
	patternSegments := split(pattern)
	destinationSegments := split(destination)

	for i, segment := range patternSegments {
		if segment == "**" && i == len(patternSegments)-1 {
			return true
		}
		if i >= len(destinationSegments) {
			return false
		}
		if segment != "*" && segment != destinationSegments[i] {
			return false
		}
	}
	return len(patternSegments) == len(destinationSegments)
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
