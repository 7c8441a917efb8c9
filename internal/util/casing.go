package util

import (
	"regexp"
	"strings"
	"unicode"
)

var splitRegex = regexp.MustCompile(`([A-Z]+[a-z0-9]*|[a-z0-9]+)`)

func splitNameIntoParts(name string) []string {
	matches := splitRegex.FindAllStringSubmatch(name, -1)
	words := make([]string, len(matches))
	for i, match := range matches {
		words[i] = match[0]
	}
	return words
}

func replaceWordCasing(s string, fn func(string) string) string {
	switch s {
	case "id":
		return "ID"
	case "ids":
		return "IDs"
	case "url":
		return "URL"
	case "urls":
		return "URLs"
	case "http":
		return "HTTP"
	case "json":
		return "JSON"
	}
	return fn(s)
}

// EnsurePascalCase converts a wire method name such as "update_settings" or
// "user_id" into the exported Go identifier it binds to ("UpdateSettings",
// "UserID").
func EnsurePascalCase(s string) string {
	words := splitNameIntoParts(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = replaceWordCasing(strings.ToLower(word), func(str string) string {
				runes := []rune(str)
				runes[0] = unicode.ToUpper(runes[0])
				return string(runes)
			})
		}
	}
	return strings.Join(words, "")
}

// EnsureSnakeCase converts a Go identifier into its snake_case wire form.
func EnsureSnakeCase(s string) string {
	words := splitNameIntoParts(s)
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	return strings.Join(words, "_")
}
