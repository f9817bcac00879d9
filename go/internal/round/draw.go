package round

import (
	"math/rand/v2"

	"github.com/mcdev12/colorclash/go/internal/models"
)

// Drawer picks a round's winning color.
type Drawer func() models.Color

// ColorForSample maps r in [0,1) onto three equal-width buckets in
// red, green, blue order.
func ColorForSample(r float64) models.Color {
	switch {
	case r < 1.0/3.0:
		return models.ColorRed
	case r < 2.0/3.0:
		return models.ColorGreen
	default:
		return models.ColorBlue
	}
}

// RandomDraw draws a uniformly distributed color.
func RandomDraw() models.Color {
	return ColorForSample(rand.Float64())
}

// FixedDraw always returns c.
func FixedDraw(c models.Color) Drawer {
	return func() models.Color { return c }
}
