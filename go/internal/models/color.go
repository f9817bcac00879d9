package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Color is one of the three colors a round can be won by.
type Color string

const (
	ColorRed   Color = "red"
	ColorGreen Color = "green"
	ColorBlue  Color = "blue"
)

// Colors lists every color in draw-bucket order.
var Colors = []Color{ColorRed, ColorGreen, ColorBlue}

// Valid reports whether c is a known color.
func (c Color) Valid() bool {
	switch c {
	case ColorRed, ColorGreen, ColorBlue:
		return true
	}
	return false
}

func (c Color) String() string {
	return string(c)
}

// ParseColor parses a case-insensitive color name.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown color %q", s)
	}
	return c, nil
}

// UnmarshalJSON rejects unknown colors so corrupt persisted state fails loudly.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
