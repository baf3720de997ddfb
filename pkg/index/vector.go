package index

import "math"

// normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// squaredDistance returns the squared L2 distance between a and b. Both
// slices must have the same length.
func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// similarityScore maps a squared L2 distance to a bounded similarity in
// (0, 1]: identical vectors score 1.0 and the score decays with distance.
func similarityScore(squaredDist float64) float64 {
	return 1.0 / (1.0 + math.Sqrt(squaredDist))
}
