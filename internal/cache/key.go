package cache

import (
	"encoding/json"

	"github.com/mhatretamish/linkedin/internal/hash/sha256"
)

// Key derives a deterministic cache key from a URL and optional request
// parameters. encoding/json emits map keys in sorted order, so the same
// inputs always hash to the same key.
func Key(url string, params map[string]string) string {
	payload := struct {
		URL    string            `json:"url"`
		Params map[string]string `json:"params,omitempty"`
	}{URL: url, Params: params}

	data, err := json.Marshal(payload)
	if err != nil {
		// A string/map payload cannot fail to marshal; fall back to the
		// raw URL so a key is always produced.
		data = []byte(url)
	}
	return sha256.Sum(data)
}
