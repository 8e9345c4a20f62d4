package cache

import "strings"

// Key identifies a query as a structured tuple: entity type, entity id,
// sub-resource, parameters. Keys compare by their encoded form.
type Key []string

// NewKey builds a key from its parts.
func NewKey(parts ...string) Key {
	return Key(parts)
}

// String encodes the key; ':' and '%' inside parts are escaped so that part
// boundaries survive encoding.
func (k Key) String() string {
	escaped := make([]string, len(k))
	for i, p := range k {
		escaped[i] = keyEscaper.Replace(p)
	}
	return strings.Join(escaped, ":")
}

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// matchesPrefix reports whether the encoded key starts with every part of the
// encoded prefix.
func matchesPrefix(encoded, prefix string) bool {
	if prefix == "" {
		return true
	}
	return encoded == prefix || strings.HasPrefix(encoded, prefix+":")
}
