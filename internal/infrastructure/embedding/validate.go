package embedding

import (
	"fmt"
	"math"
)

// Validate checks that a provider vector is usable before it is persisted:
// non-empty, exactly the expected dimensionality, and all values finite.
func (c *Client) Validate(vector []float32) error {
	return ValidateVector(vector, c.dims)
}

func ValidateVector(vector []float32, dims int) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	if dims > 0 && len(vector) != dims {
		return fmt.Errorf("embedding dimensionality %d, expected %d", len(vector), dims)
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite value at index %d", i)
		}
	}
	return nil
}
