//go:build unit
// +build unit

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAsset(t *testing.T) {
	qasm, err := GetAsset("bell_pair.qasm")
	assert.Nil(t, err)
	assert.Equal(t, "OPENQASM 3;\nqubit[2] q;\nbit[2] c;\n\nh q[0];\ncx q[0], q[1];\n\nc[0] = measure q[0];\nc[1] = measure q[1];", qasm)
}

func TestGetAssetNotFound(t *testing.T) {
	qasm, err := GetAsset("no_such_asset.qasm")
	assert.Error(t, err)
	assert.Equal(t, "", qasm)
}

func TestNormalizeGateName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "upper case",
			in:   "CX",
			want: "cx",
		},
		{
			name: "snake case",
			in:   "sqrt_x",
			want: "sqrtx",
		},
		{
			name: "plain",
			in:   "h",
			want: "h",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeGateName(tt.in))
		})
	}
}

func TestContainsGateName(t *testing.T) {
	list := []string{"H", "CX", "RZ"}
	assert.True(t, ContainsGateName("cx", list))
	assert.False(t, ContainsGateName("swap", list))
}

func TestPlaninJsonString(t *testing.T) {
	jsonString := "{\n  \"name\": \"wako\",\n  \"qubits\"}"
	expected := "{\"name\":\"wako\",\"qubits\"}"

	actual := PlainJsonString(jsonString)
	assert.Equal(t, expected, actual)
	assert.Equal(t, "", PlainJsonString(""))
	assert.Equal(t, "pseudo_inverse", PlainJsonString("\"pseudo_inverse\""))
}
