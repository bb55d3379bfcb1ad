package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGB(t *testing.T) {
	r, g, b := RGB(0, 255, 255)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})

	r, g, b = RGB(0, 0, 255)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	r, g, b = RGB(100, 200, 0)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})
}

func TestEstimate(t *testing.T) {
	b := DefaultBudget()

	assert.InDelta(t, 600, b.Estimate(255, 0, 0, 255), 0.01, "full white")
	assert.InDelta(t, 200, b.Estimate(255, 0, 255, 255), 0.01, "full red")
	assert.InDelta(t, 0, b.Estimate(0, 0, 0, 255), 0.01, "brightness zero")
}

func TestCheck(t *testing.T) {
	b := DefaultBudget()

	require.NoError(t, b.Check(255, 0, 255, 255))
	require.NoError(t, b.Check(128, 0, 0, 255))

	err := b.Check(255, 0, 0, 255)
	require.ErrorIs(t, err, ErrOverBudget)
	assert.Contains(t, err.Error(), "600 mA > 500 mA")

	b.CeilingMilliamps = 0
	assert.NoError(t, b.Check(255, 0, 0, 255))
}
