// Package power estimates the current an LED strip draws for a given
// brightness and colour, and checks it against a supply ceiling.
package power

import (
	"errors"
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ErrOverBudget indicates the estimated draw exceeds the ceiling.
var ErrOverBudget = errors.New("exceeds power budget")

// Budget describes the strip and its supply.
type Budget struct {
	// LEDCount is the number of pixels on the strip.
	LEDCount int

	// MilliampsPerChannel is the draw of one fully lit colour channel.
	MilliampsPerChannel float64

	// CeilingMilliamps is the maximum allowed draw.
	CeilingMilliamps float64
}

// DefaultBudget matches the reference controller: 10 APA102 pixels on a
// 500 mA supply.
func DefaultBudget() Budget {
	return Budget{
		LEDCount:            10,
		MilliampsPerChannel: 20,
		CeilingMilliamps:    500,
	}
}

// HueDegrees maps a wire hue byte onto the colour wheel.
func HueDegrees(h uint8) float64 {
	return float64(h) * 360 / 256
}

// RGB converts a wire HSV triple to 8-bit RGB.
func RGB(h, s, v uint8) (r, g, b uint8) {
	return colorful.Hsv(HueDegrees(h), float64(s)/255, float64(v)/255).RGB255()
}

// Estimate returns the expected draw in milliamps.
func (b Budget) Estimate(brightness, h, s, v uint8) float64 {
	r, g, bl := RGB(h, s, v)
	channels := (float64(r) + float64(g) + float64(bl)) / 255
	return float64(b.LEDCount) * channels * b.MilliampsPerChannel * float64(brightness) / 255
}

// Check returns an error wrapping ErrOverBudget if the combination draws
// more than the ceiling. A zero ceiling disables the check.
func (b Budget) Check(brightness, h, s, v uint8) error {
	if b.CeilingMilliamps <= 0 {
		return nil
	}
	if ma := b.Estimate(brightness, h, s, v); ma > b.CeilingMilliamps {
		return fmt.Errorf("%w: %.0f mA > %.0f mA", ErrOverBudget, ma, b.CeilingMilliamps)
	}
	return nil
}
