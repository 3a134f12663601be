package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVector(t *testing.T) {
	assert.Equal(t, "[]", EncodeVector(nil))
	assert.Equal(t, "[0.1,0.2,-3]", EncodeVector([]float32{0.1, 0.2, -3}))
}

func TestDecodeVector(t *testing.T) {
	got, err := DecodeVector("[0.1, 0.2, -3]")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, -3}, got)

	got, err = DecodeVector("[]")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DecodeVector("0.1,0.2")
	assert.Error(t, err)

	_, err = DecodeVector("[0.1,nope]")
	assert.Error(t, err)
}
