package cache

import (
	"strings"
)

// keyPrefix namespaces all census keys in Redis.
const keyPrefix = "star-census"

// Key identifies a cached value.
type Key struct {
	// Namespace groups related values (e.g., "estimate").
	Namespace string

	// Parts further qualify the value (e.g., the search query).
	Parts []string
}

// String generates the Redis key.
// Format: star-census:namespace:part1:part2
//
// Example:
//
//	star-census:estimate:is:public
func (k Key) String() string {
	parts := []string{keyPrefix}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	for _, p := range k.Parts {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	return strings.Join(parts, ":")
}

// EstimateKey is the key of the population estimate for a search query.
func EstimateKey(query string) Key {
	return Key{Namespace: "estimate", Parts: []string{query}}
}
