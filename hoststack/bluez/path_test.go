//go:build linux

package bluez

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertDBusPathToMAC(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", convertDBusPathToMAC("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"))
	assert.Equal(t, "", convertDBusPathToMAC("/org/bluez/hci0"))
	assert.Equal(t, "", convertDBusPathToMAC(""))
}

func TestToUUIDRoundTrip(t *testing.T) {
	le := []byte{
		0x58, 0xb2, 0x9c, 0xc8, 0x81, 0x28, 0x77, 0xb8,
		0xe7, 0x49, 0x0c, 0x13, 0x00, 0x78, 0x38, 0x14,
	}
	u, err := toUUID(le)
	assert.NoError(t, err)
	assert.Equal(t, "14387800-130c-49e7-b877-2881c89cb258", u.String())

	short, err := toUUID([]byte{0x01, 0x29})
	assert.NoError(t, err)
	assert.True(t, short.Is16Bit())

	_, err = toUUID([]byte{1, 2, 3})
	assert.Error(t, err)
}
