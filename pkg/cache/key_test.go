package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "simple endpoint no params",
			key:  CacheKey{Endpoint: "/movie/603"},
			want: "catalog:movie/603",
		},
		{
			name: "endpoint with query params",
			key: CacheKey{
				Endpoint:    "/movie/603/credits",
				QueryParams: url.Values{"language": []string{"en-US"}},
			},
			want: "catalog:movie/603/credits:language=en-US",
		},
		{
			name: "multiple query params sorted",
			key: CacheKey{
				Endpoint: "/movie/603",
				QueryParams: url.Values{
					"language":           []string{"en-US"},
					"append_to_response": []string{"credits"},
				},
			},
			want: "catalog:movie/603:append_to_response=credits:language=en-US",
		},
		{
			name: "api key excluded",
			key: CacheKey{
				Endpoint: "/movie/603",
				QueryParams: url.Values{
					"api_key":  []string{"secret"},
					"language": []string{"en-US"},
				},
			},
			want: "catalog:movie/603:language=en-US",
		},
		{
			name: "multi-valued param is order independent",
			key: CacheKey{
				Endpoint:    "/movie/603",
				QueryParams: url.Values{"include": []string{"b", "a"}},
			},
			want: "catalog:movie/603:include=a,b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKey_SameAcrossCredentials(t *testing.T) {
	a := CacheKey{Endpoint: "/movie/1", QueryParams: url.Values{"api_key": []string{"one"}}}
	b := CacheKey{Endpoint: "/movie/1", QueryParams: url.Values{"api_key": []string{"two"}}}

	if a.String() != b.String() {
		t.Errorf("keys differ by credential: %q vs %q", a.String(), b.String())
	}
}
