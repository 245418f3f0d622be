package main

import "strings"

const validNameChars = "-_.() abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// invalidNameChars returns the characters Synapse will not accept in an
// entity name, deduplicated, in order of first appearance.
func invalidNameChars(name string) []rune {
	badChars := make([]rune, 0)
	seen := make(map[rune]bool)
	for _, c := range name {
		if strings.ContainsRune(validNameChars, c) || seen[c] {
			continue
		}
		seen[c] = true
		badChars = append(badChars, c)
	}
	return badChars
}

// Synapse trims leading and trailing spaces when it stores a name, so
// lookups need to be retried with the trimmed form before giving up.
func trimmedName(name string) string {
	return strings.TrimSpace(name)
}
