package advertising

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var provisioningUUID = []byte{
	0x58, 0xb2, 0x9c, 0xc8, 0x81, 0x28, 0x77, 0xb8,
	0xe7, 0x49, 0x0c, 0x13, 0x00, 0x78, 0x38, 0x14,
}

func TestBuildMatchesReferenceBytes(t *testing.T) {
	got := Build(Fields{Name: "mpy", Services: [][]byte{provisioningUUID}})

	want := []byte{0x02, ADTypeFlags, 0x06, 0x04, ADTypeCompleteLocalName, 'm', 'p', 'y', 0x11, ADTypeComplete128BitServiceUUIDs}
	want = append(want, provisioningUUID...)

	assert.Equal(t, want, got)
	assert.True(t, Fits(got), "provisioning advertisement must fit a legacy PDU")
}

func TestBuildFlagCombinations(t *testing.T) {
	tests := []struct {
		name    string
		limited bool
		bredr   bool
		flags   byte
	}{
		{"general LE only", false, false, 0x06},
		{"limited LE only", true, false, 0x05},
		{"general dual mode", false, true, 0x1A},
		{"limited dual mode", true, true, 0x19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Build(Fields{LimitedDiscoverable: tt.limited, BREDR: tt.bredr})
			require.Len(t, buf, 3)
			assert.Equal(t, tt.flags, buf[2])

			parsed, err := Parse(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.limited, parsed.LimitedDiscoverable)
			assert.Equal(t, tt.bredr, parsed.BREDR)
		})
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	tests := []Fields{
		{Name: "prov"},
		{Services: [][]byte{{0x0d, 0x18}}},
		{Services: [][]byte{{0x01, 0x02, 0x03, 0x04}, {0x0f, 0x18}}},
		{Name: "x", Services: [][]byte{provisioningUUID}, Appearance: 0x0340},
		{LimitedDiscoverable: true, BREDR: true, Appearance: -2},
	}

	for _, in := range tests {
		parsed, err := Parse(Build(in))
		require.NoError(t, err)
		assert.Equal(t, in, parsed)
	}
}

func TestBuildDropsInvalidServiceLengths(t *testing.T) {
	withBad := Build(Fields{Services: [][]byte{{0x01, 0x02, 0x03}, {0x0d, 0x18}, make([]byte, 8)}})
	withoutBad := Build(Fields{Services: [][]byte{{0x0d, 0x18}}})

	assert.Equal(t, withoutBad, withBad)

	parsed, err := Parse(withBad)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x0d, 0x18}}, parsed.Services)
}

func TestBuildShortensLongName(t *testing.T) {
	// 2-byte runes from offset 1, so byte 254 is mid-rune
	name := "a" + strings.Repeat("é", 200)
	buf := Build(Fields{Name: name})

	structures, err := DecodeADStructures(buf)
	require.NoError(t, err)
	require.Len(t, structures, 2)
	assert.Equal(t, byte(ADTypeShortenedLocalName), structures[1].Type)
	assert.Len(t, structures[1].Data, MaxADValueLen-1)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(parsed.Name))
	assert.True(t, strings.HasPrefix(name, parsed.Name))
}

func TestEncodeADStructuresRejectsOversizedValue(t *testing.T) {
	_, err := EncodeADStructures([]ADStructure{{Type: ADTypeManufacturerSpecificData, Data: make([]byte, MaxADValueLen+1)}})
	assert.Error(t, err)
}

func TestBuildAppearanceSignedLittleEndian(t *testing.T) {
	buf := Build(Fields{Appearance: -1})
	structures, err := DecodeADStructures(buf)
	require.NoError(t, err)
	require.Len(t, structures, 2)
	assert.Equal(t, byte(ADTypeAppearance), structures[1].Type)
	assert.Equal(t, []byte{0xFF, 0xFF}, structures[1].Data)
}

func TestScanResponseLayout(t *testing.T) {
	rsp, err := ScanResponse(provisioningUUID, 1, StatusProvisioned|StatusWifiConnected)
	require.NoError(t, err)

	require.Len(t, rsp, ScanResponseLen)
	assert.Equal(t, byte(21), rsp[0])
	assert.Equal(t, byte(ADTypeServiceData128Bit), rsp[1])
	assert.Equal(t, provisioningUUID, rsp[2:18])
	assert.Equal(t, byte(1), rsp[RevisionIndex])
	assert.Equal(t, byte(0x03), rsp[StatusFlagsIndex])

	structures, err := DecodeADStructures(rsp)
	require.NoError(t, err)
	uuid, data, ok := GetServiceData128(structures)
	require.True(t, ok)
	assert.Equal(t, provisioningUUID, uuid)
	assert.Equal(t, []byte{1, 3, 0, 0}, data)
}

func TestScanResponseRejectsShortUUID(t *testing.T) {
	_, err := ScanResponse([]byte{0x00, 0x18}, 1, 0)
	assert.Error(t, err)
}

func TestEncodeADStructuresLimit(t *testing.T) {
	_, err := EncodeADStructures([]ADStructure{{Type: ADTypeManufacturerSpecificData, Data: make([]byte, 30)}})
	assert.Error(t, err, "32 bytes must not fit")

	buf, err := EncodeADStructures([]ADStructure{{Type: ADTypeManufacturerSpecificData, Data: make([]byte, 29)}})
	require.NoError(t, err)
	assert.Len(t, buf, MaxAdvertisingDataLen)
}

func TestDecodeADStructuresTruncated(t *testing.T) {
	_, err := DecodeADStructures([]byte{0x05, ADTypeCompleteLocalName, 'a'})
	assert.Error(t, err)
}

func TestDecodeADStructuresStopsAtPadding(t *testing.T) {
	structures, err := DecodeADStructures([]byte{0x02, ADTypeFlags, 0x06, 0x00, 0x00})
	require.NoError(t, err)
	assert.Len(t, structures, 1)
}

func TestParseRequiresFlags(t *testing.T) {
	_, err := Parse([]byte{0x02, ADTypeCompleteLocalName, 'a'})
	assert.Error(t, err)
}
