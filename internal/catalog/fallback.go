package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
)

//go:embed fallback.json
var fallbackJSON []byte

type fallbackSet struct {
	Version  int       `json:"version"`
	Products []Product `json:"products"`
}

// FallbackProducts returns a fresh copy of the embedded fallback set.
func FallbackProducts() ([]Product, error) {
	var set fallbackSet
	if err := json.Unmarshal(fallbackJSON, &set); err != nil {
		return nil, fmt.Errorf("catalog: decode fallback set: %w", err)
	}
	if len(set.Products) == 0 {
		return nil, errors.New("catalog: fallback set is empty")
	}
	return set.Products, nil
}
