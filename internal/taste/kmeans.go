// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
)

// errNumerical marks a clustering run that produced NaN, Inf or a
// degenerate partition. The caller discards that k.
var errNumerical = errors.New("numerical failure in clustering")

// euclidean returns the L2 distance between equal-length vectors.
func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func sqDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// distinctCount counts vectors that are not bit-for-bit equal.
func distinctCount(vectors [][]float64) int {
	seen := make(map[string]struct{}, len(vectors))
	buf := make([]byte, 0, 8*16)
	for _, v := range vectors {
		buf = buf[:0]
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
		}
		seen[string(buf)] = struct{}{}
	}
	return len(seen)
}

// kmeansResult is one Lloyd run for a fixed k.
type kmeansResult struct {
	k          int
	assign     []int
	centroids  [][]float64
	iterations int
}

// kmeans partitions vectors into k groups. Initialisation is k-means++
// driven by rng; ties in assignment go to the lower centroid index.
func kmeans(vectors [][]float64, k, maxIter int, rng *rand.Rand) (*kmeansResult, error) {
	n := len(vectors)
	if k < 1 || n < k {
		return nil, errNumerical
	}
	dim := len(vectors[0])

	centroids, err := seedCentroids(vectors, k, rng)
	if err != nil {
		return nil, err
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++
		changed := false
		for i, v := range vectors {
			c := nearest(v, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sizes := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assign[i]
			sizes[c]++
			for d, x := range v {
				next[c][d] += x
			}
		}
		for c := range next {
			if sizes[c] == 0 {
				continue
			}
			for d := range next[c] {
				next[c][d] /= float64(sizes[c])
			}
		}
		reseedEmpty(vectors, assign, sizes, next)
		centroids = next
	}

	for _, c := range centroids {
		if !finite(c) {
			return nil, errNumerical
		}
	}
	sizes := make([]int, k)
	for _, c := range assign {
		sizes[c]++
	}
	for _, s := range sizes {
		if s == 0 {
			return nil, errNumerical
		}
	}

	return &kmeansResult{k: k, assign: assign, centroids: centroids, iterations: iter}, nil
}

// seedCentroids picks k starting centroids with the k-means++ rule.
func seedCentroids(vectors [][]float64, k int, rng *rand.Rand) ([][]float64, error) {
	n := len(vectors)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(vectors[rng.Intn(n)]))

	weights := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, v := range vectors {
			best := math.Inf(1)
			for _, c := range centroids {
				if d := sqDistance(v, c); d < best {
					best = d
				}
			}
			weights[i] = best
			total += best
		}
		if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
			return nil, errNumerical
		}

		target := rng.Float64() * total
		pick := n - 1
		var acc float64
		for i, w := range weights {
			acc += w
			if acc > target && w > 0 {
				pick = i
				break
			}
		}
		for weights[pick] == 0 && pick > 0 {
			pick--
		}
		centroids = append(centroids, clone(vectors[pick]))
	}
	return centroids, nil
}

// reseedEmpty moves each empty centroid onto the point farthest from its
// current centroid, taken from a cluster that can spare a member.
func reseedEmpty(vectors [][]float64, assign, sizes []int, centroids [][]float64) {
	for c := range centroids {
		if sizes[c] != 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, v := range vectors {
			owner := assign[i]
			if sizes[owner] < 2 {
				continue
			}
			if d := sqDistance(v, centroids[owner]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			return
		}
		sizes[assign[far]]--
		assign[far] = c
		sizes[c] = 1
		centroids[c] = clone(vectors[far])
	}
}

func nearest(v []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDistance(v, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// mean returns the component-wise mean of vectors. Non-finite components
// are skipped; a dimension with no finite value is 0.
func mean(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	counts := make([]int, len(out))
	for _, v := range vectors {
		for d, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			out[d] += x
			counts[d]++
		}
	}
	for d := range out {
		if counts[d] > 0 {
			out[d] /= float64(counts[d])
		}
	}
	return out
}

// distanceMatrix precomputes pairwise Euclidean distances.
func distanceMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(vectors[i], vectors[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// silhouette returns the mean silhouette over all points and the mean per
// cluster. Members of singleton clusters score 0.
func silhouette(dist [][]float64, assign []int, k int) (float64, []float64, error) {
	n := len(assign)
	sizes := make([]int, k)
	for _, c := range assign {
		sizes[c]++
	}

	perCluster := make([]float64, k)
	sums := make([]float64, k)
	var total float64
	for i := 0; i < n; i++ {
		own := assign[i]
		var s float64
		if sizes[own] > 1 {
			toCluster := make([]float64, k)
			for j := 0; j < n; j++ {
				if j != i {
					toCluster[assign[j]] += dist[i][j]
				}
			}
			a := toCluster[own] / float64(sizes[own]-1)
			b := math.Inf(1)
			for c := 0; c < k; c++ {
				if c == own || sizes[c] == 0 {
					continue
				}
				if m := toCluster[c] / float64(sizes[c]); m < b {
					b = m
				}
			}
			if math.IsInf(b, 1) {
				return 0, nil, errNumerical
			}
			if denom := math.Max(a, b); denom > 0 {
				s = (b - a) / denom
			}
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return 0, nil, errNumerical
		}
		sums[own] += s
		total += s
	}

	for c := range perCluster {
		if sizes[c] > 0 {
			perCluster[c] = sums[c] / float64(sizes[c])
		}
	}
	return total / float64(n), perCluster, nil
}
