package sonar

import "strings"

var ratings = map[string]string{
	"1.0": "A",
	"2.0": "B",
	"3.0": "C",
	"4.0": "D",
	"5.0": "E",
}

// Rating converts a numeric SonarQube rating ("1.0".."5.0") to its letter
// grade. Values outside the table are returned unchanged.
func Rating(v string) string {
	if letter, ok := ratings[v]; ok {
		return letter
	}
	return v
}

// isRating reports whether a metric key holds a rating value.
func isRating(key string) bool {
	return strings.HasSuffix(key, "_rating")
}
