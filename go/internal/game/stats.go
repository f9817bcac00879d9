package game

import (
	"math"

	"github.com/mcdev12/colorclash/go/internal/models"
)

// CalculateColorStats returns each color's share of winningColors as a
// percentage rounded half away from zero. An empty history yields all zeros.
func CalculateColorStats(winningColors []models.Color) models.ColorStats {
	stats := make(models.ColorStats, len(models.Colors))
	for _, c := range models.Colors {
		stats[c] = 0
	}
	if len(winningColors) == 0 {
		return stats
	}

	counts := make(map[models.Color]int, len(models.Colors))
	for _, c := range winningColors {
		counts[c]++
	}
	total := float64(len(winningColors))
	for _, c := range models.Colors {
		stats[c] = int(math.Round(float64(counts[c]) / total * 100))
	}
	return stats
}
