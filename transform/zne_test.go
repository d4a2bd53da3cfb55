//go:build unit
// +build unit

package transform

import (
	"testing"

	"github.com/qfold-team/qfold-engine/core"
	"github.com/stretchr/testify/assert"
)

func TestNewZNE(t *testing.T) {
	testCases := []struct {
		name    string
		scales  []float64
		wantErr bool
	}{
		{
			name:   "canonical scales",
			scales: []float64{1.0, 3.0, 5.0},
		},
		{
			name:    "empty",
			scales:  []float64{},
			wantErr: true,
		},
		{
			name:    "scale below one",
			scales:  []float64{1.0, 0.5},
			wantErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			z, err := NewZNE(tc.scales)
			if tc.wantErr {
				assert.Error(t, err)
				var se *core.StructuralError
				assert.ErrorAs(t, err, &se)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.scales, z.ScaleFactors())
		})
	}
}

func TestZNEExpand(t *testing.T) {
	tape := foldFixture(t)
	z, err := NewZNE([]float64{1.0, 3.0, 5.0})
	assert.NoError(t, err)

	branches, combine, err := z.Expand(tape)
	assert.NoError(t, err)
	assert.Len(t, branches, 3)
	assert.Len(t, branches[0].Ops, 2)
	assert.Len(t, branches[1].Ops, 6)
	assert.Len(t, branches[2].Ops, 10)
	for i, b := range branches {
		assert.Equal(t, tape.Measurements, b.Measurements, "branch %d", i)
		assert.Equal(t, tape.Wires, b.Wires, "branch %d", i)
	}
	// scale 1 is the unfolded circuit
	assert.True(t, branches[0].Equal(tape))

	// e = 2s + 5 measured at s = 1, 3, 5 extrapolates to 5 at s = 0
	v, err := combine([]float64{7.0, 11.0, 15.0})
	assert.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)
}

func TestZNECombinerArity(t *testing.T) {
	tape := foldFixture(t)
	z, err := NewZNE([]float64{1.0, 3.0, 5.0})
	assert.NoError(t, err)
	_, combine, err := z.Expand(tape)
	assert.NoError(t, err)

	_, err = combine([]float64{7.0, 11.0})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 results")
}
