package nm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePSKKnownVector(t *testing.T) {
	// IEEE 802.11i-2004 Annex H.4 test vector
	psk, err := DerivePSK("IEEE", "password")
	require.NoError(t, err)
	assert.Equal(t, "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e", psk)
}

func TestDerivePSKValidation(t *testing.T) {
	_, err := DerivePSK("HomeNet", "short")
	assert.Error(t, err)

	_, err = DerivePSK("", "long enough")
	assert.Error(t, err)
}
