package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCCCDEncodeDecode(t *testing.T) {
	tests := []struct {
		name     string
		notify   bool
		indicate bool
		want     []byte
	}{
		{"both disabled", false, false, []byte{0x00, 0x00}},
		{"notifications enabled", true, false, []byte{0x01, 0x00}},
		{"indications enabled", false, true, []byte{0x02, 0x00}},
		{"both enabled", true, true, []byte{0x03, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value := EncodeCCCDValue(tt.notify, tt.indicate)
			assert.Equal(t, tt.want, value)

			notify, indicate, err := DecodeCCCDValue(value)
			require.NoError(t, err)
			assert.Equal(t, tt.notify, notify)
			assert.Equal(t, tt.indicate, indicate)
		})
	}
}

func TestCCCDDecodeInvalidLength(t *testing.T) {
	for _, v := range [][]byte{nil, {0x01}, {0x01, 0x00, 0x00}} {
		_, _, err := DecodeCCCDValue(v)
		assert.ErrorIs(t, err, ErrInvalidAttributeValueLength)
	}
}

func TestCCCDManagerSubscriptions(t *testing.T) {
	cm := NewCCCDManager()

	require.NoError(t, cm.SetSubscription(0x0005, EncodeCCCDValue(false, true)))
	require.NoError(t, cm.SetSubscription(0x0009, EncodeCCCDValue(true, false)))

	assert.True(t, cm.IsIndicateEnabled(0x0005))
	assert.False(t, cm.IsNotifyEnabled(0x0005))
	assert.True(t, cm.IsNotifyEnabled(0x0009))
	assert.Equal(t, 2, cm.Count())

	require.NoError(t, cm.SetSubscription(0x0005, EncodeCCCDValue(false, false)))
	assert.False(t, cm.IsIndicateEnabled(0x0005))
	assert.Equal(t, 1, cm.Count())

	assert.Error(t, cm.SetSubscription(0x0009, []byte{0x01}))
	assert.True(t, cm.IsNotifyEnabled(0x0009), "failed write must not change state")
}
