package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// credentialParams never become part of a cache key.
var credentialParams = map[string]bool{
	"api_key": true,
}

// CacheKey represents a unique identifier for a cached catalog response.
type CacheKey struct {
	// Endpoint is the API path (e.g., "/movie/603/credits")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"language": "en-US"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: catalog:endpoint:query1=val1:query2=val2
//
// Example:
//
//	catalog:movie/603/credits:language=en-US
func (k CacheKey) String() string {
	parts := []string{"catalog"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if credentialParams[key] {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
