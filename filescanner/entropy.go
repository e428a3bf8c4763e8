package filescanner

import "math"

// Entropy computes the Shannon entropy of data in bits per byte. The
// result is always in [0, 8]: 0 for empty input or a single repeated
// byte value, 8 for a perfectly uniform byte distribution.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
