// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GeneralTasteName labels the single fallback cluster.
const GeneralTasteName = "General Taste"

const (
	highLevel = 0.66
	lowLevel  = 0.33
)

// clusterName composes "<Adjective> <Genre>" from the members' attributes.
func clusterName(members []Point) string {
	caser := cases.Title(language.English)

	adjective := moodAdjective(members)
	noun := dominant(members, func(p Point) []string { return p.Genres })
	if noun == "" {
		noun = "Eclectic"
	}

	name := noun
	if adjective != "" {
		name = adjective + " " + noun
	}
	return caser.String(name)
}

// moodAdjective prefers averaged acoustics and falls back to the dominant
// mood tag when no member carries acoustics.
func moodAdjective(members []Point) string {
	var energy, valence float64
	var n int
	for _, p := range members {
		if p.Acoustic == nil {
			continue
		}
		energy += p.Acoustic.Energy
		valence += p.Acoustic.Valence
		n++
	}
	if n == 0 {
		return dominant(members, func(p Point) []string { return p.Moods })
	}

	energy /= float64(n)
	valence /= float64(n)
	switch {
	case energy >= highLevel:
		return "Energetic"
	case energy <= lowLevel:
		return "Mellow"
	case valence >= highLevel:
		return "Upbeat"
	case valence <= lowLevel:
		return "Melancholic"
	default:
		return "Balanced"
	}
}

// dominant returns the most frequent normalized tag. Ties resolve
// alphabetically.
func dominant(members []Point, tags func(Point) []string) string {
	counts := make(map[string]int)
	for _, p := range members {
		for _, t := range tags(p) {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				counts[t]++
			}
		}
	}

	var best string
	bestCount := 0
	for t, c := range counts {
		if c > bestCount || (c == bestCount && t < best) {
			best, bestCount = t, c
		}
	}
	return best
}

// dedupeNames suffixes repeated names in order: "Mellow Jazz", "Mellow Jazz 2".
func dedupeNames(clusters []TasteCluster) {
	seen := make(map[string]int, len(clusters))
	taken := make(map[string]bool, len(clusters))
	for i := range clusters {
		taken[clusters[i].Name] = true
	}

	for i := range clusters {
		base := clusters[i].Name
		seen[base]++
		if seen[base] == 1 {
			continue
		}
		for n := seen[base]; ; n++ {
			candidate := fmt.Sprintf("%s %d", base, n)
			if !taken[candidate] {
				clusters[i].Name = candidate
				taken[candidate] = true
				seen[base] = n
				break
			}
		}
	}
}
