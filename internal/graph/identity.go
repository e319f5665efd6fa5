package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a page name so that "Central_Europe", "central europe"
// and a decomposed-unicode spelling compare equal.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ToLower(strings.ReplaceAll(name, "_", " "))
	return strings.Join(strings.Fields(name), " ")
}

// QueryID is the first 16 hex characters of sha256(NormalizeName(name)).
func QueryID(name string) string {
	sum := sha256.Sum256([]byte(NormalizeName(name)))
	return hex.EncodeToString(sum[:])[:16]
}

// NodeID builds the graph id for a page from source, e.g.
// "wikivoyage_en_" + QueryID(name).
func NodeID(source, name string) string {
	return source + "_" + QueryID(name)
}

// Slug is the file-system form of a page name: lowercase with whitespace
// turned into underscores and anything outside [letters digits _ -] dropped.
func Slug(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
