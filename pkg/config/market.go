package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/oddslab/marketcore/internal/engine"
)

// LoadMarketParams reads and validates the engine parameter document.
// Amounts and prices use the wire encoding (scaled-integer strings).
func LoadMarketParams(path string) (engine.EngineParams, error) {
	var params engine.EngineParams

	raw, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("read market params: %w", err)
	}
	err = json.Unmarshal(raw, &params)
	if err != nil {
		return params, fmt.Errorf("parse market params: %w", err)
	}
	err = params.Validate()
	if err != nil {
		return params, fmt.Errorf("validate market params: %w", err)
	}
	return params, nil
}
