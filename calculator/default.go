package calculator

import (
	_ "embed"
)

// DefaultName is the name of the embedded definition
const DefaultName = "financial-calculator"

//go:embed financial-calculator.yaml
var defaultDefinition []byte

// Default returns a fresh copy of the embedded financial calculator
func Default() (*Definition, error) {
	return ParseYAML(defaultDefinition)
}
