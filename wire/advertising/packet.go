package advertising

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                        = 0x01 // Flags
	ADTypeIncomplete16BitServiceUUIDs  = 0x02 // Incomplete List of 16-bit Service UUIDs
	ADTypeComplete16BitServiceUUIDs    = 0x03 // Complete List of 16-bit Service UUIDs
	ADTypeIncomplete32BitServiceUUIDs  = 0x04 // Incomplete List of 32-bit Service UUIDs
	ADTypeComplete32BitServiceUUIDs    = 0x05 // Complete List of 32-bit Service UUIDs
	ADTypeIncomplete128BitServiceUUIDs = 0x06 // Incomplete List of 128-bit Service UUIDs
	ADTypeComplete128BitServiceUUIDs   = 0x07 // Complete List of 128-bit Service UUIDs
	ADTypeShortenedLocalName           = 0x08 // Shortened Local Name
	ADTypeCompleteLocalName            = 0x09 // Complete Local Name
	ADTypeTxPowerLevel                 = 0x0A // Tx Power Level
	ADTypeServiceData16Bit             = 0x16 // Service Data - 16-bit UUID
	ADTypeAppearance                   = 0x19 // Appearance
	ADTypeServiceData128Bit            = 0x21 // Service Data - 128-bit UUID
	ADTypeManufacturerSpecificData     = 0xFF // Manufacturer Specific Data
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLELimitedDiscoverableMode     = 0x01 // LE Limited Discoverable Mode
	FlagLEGeneralDiscoverableMode     = 0x02 // LE General Discoverable Mode
	FlagBREDRNotSupported             = 0x04 // BR/EDR Not Supported
	FlagSimultaneousLEBREDRController = 0x08 // Simultaneous LE and BR/EDR to Same Device Capable (Controller)
	FlagSimultaneousLEBREDRHost       = 0x10 // Simultaneous LE and BR/EDR to Same Device Capable (Host)
)

// MaxAdvertisingDataLen is the BLE 4.x legacy advertising data limit
const MaxAdvertisingDataLen = 31

// MaxADValueLen is the longest value one AD structure can carry; its length
// byte also counts the type.
const MaxADValueLen = 254

// ADStructure represents a single TLV (Type-Length-Value) structure in advertising data
// Format: [Length: 1 byte] [Type: 1 byte] [Data: N bytes]
// Note: Length includes the Type byte but not itself
type ADStructure struct {
	Type byte   // AD Type (flags, service UUIDs, etc.)
	Data []byte // AD Data
}

// EncodeADStructures encodes multiple AD structures into a single advertising data payload
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte

	for _, s := range structures {
		if len(s.Data) > MaxADValueLen {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max %d)", 1+len(s.Data), MaxADValueLen+1)
		}
		buf = appendAD(buf, s.Type, s.Data)
	}

	if !Fits(buf) {
		return nil, fmt.Errorf("total advertising data exceeds %d bytes: %d", MaxAdvertisingDataLen, len(buf))
	}

	return buf, nil
}

// Fits reports whether data fits in a legacy advertising or scan response PDU
func Fits(data []byte) bool {
	return len(data) <= MaxAdvertisingDataLen
}

func appendAD(buf []byte, adType byte, data []byte) []byte {
	buf = append(buf, byte(len(data)+1), adType)
	return append(buf, data...)
}

// DecodeADStructures parses advertising data into individual AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0

	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Padding or end of data
			break
		}

		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}
		if length < 1 {
			return nil, errors.New("AD structure length must be at least 1")
		}

		adType := data[offset]
		offset++
		adData := make([]byte, length-1)
		copy(adData, data[offset:offset+length-1])
		offset += length - 1

		structures = append(structures, ADStructure{
			Type: adType,
			Data: adData,
		})
	}

	return structures, nil
}

// GetLocalName extracts the local name from AD structures (complete or shortened)
func GetLocalName(structures []ADStructure) string {
	for _, s := range structures {
		if s.Type == ADTypeCompleteLocalName || s.Type == ADTypeShortenedLocalName {
			return string(s.Data)
		}
	}
	return ""
}

// GetFlags extracts the flags from AD structures
func GetFlags(structures []ADStructure) (byte, bool) {
	for _, s := range structures {
		if s.Type == ADTypeFlags && len(s.Data) > 0 {
			return s.Data[0], true
		}
	}
	return 0, false
}

// GetAppearance extracts the appearance value from AD structures
func GetAppearance(structures []ADStructure) (int16, bool) {
	for _, s := range structures {
		if s.Type == ADTypeAppearance && len(s.Data) == 2 {
			return int16(binary.LittleEndian.Uint16(s.Data)), true
		}
	}
	return 0, false
}

// GetServiceUUIDs returns every complete or incomplete service UUID in the order it
// was advertised, as raw little-endian byte slices of 2, 4 or 16 bytes.
func GetServiceUUIDs(structures []ADStructure) [][]byte {
	var uuids [][]byte
	for _, s := range structures {
		size := uuidSizeForType(s.Type)
		if size == 0 || len(s.Data)%size != 0 {
			continue
		}
		for i := 0; i < len(s.Data); i += size {
			uuids = append(uuids, append([]byte{}, s.Data[i:i+size]...))
		}
	}
	return uuids
}

// GetServiceData128 returns the 128-bit service data element, split into UUID and payload
func GetServiceData128(structures []ADStructure) (uuid []byte, data []byte, found bool) {
	for _, s := range structures {
		if s.Type == ADTypeServiceData128Bit && len(s.Data) >= 16 {
			return s.Data[:16], s.Data[16:], true
		}
	}
	return nil, nil, false
}

func uuidSizeForType(adType byte) int {
	switch adType {
	case ADTypeComplete16BitServiceUUIDs, ADTypeIncomplete16BitServiceUUIDs:
		return 2
	case ADTypeComplete32BitServiceUUIDs, ADTypeIncomplete32BitServiceUUIDs:
		return 4
	case ADTypeComplete128BitServiceUUIDs, ADTypeIncomplete128BitServiceUUIDs:
		return 16
	default:
		return 0
	}
}

// ADTypeName returns a human-readable name for an AD type
func ADTypeName(adType byte) string {
	switch adType {
	case ADTypeFlags:
		return "Flags"
	case ADTypeIncomplete16BitServiceUUIDs:
		return "Incomplete 16-bit Service UUIDs"
	case ADTypeComplete16BitServiceUUIDs:
		return "Complete 16-bit Service UUIDs"
	case ADTypeIncomplete32BitServiceUUIDs:
		return "Incomplete 32-bit Service UUIDs"
	case ADTypeComplete32BitServiceUUIDs:
		return "Complete 32-bit Service UUIDs"
	case ADTypeIncomplete128BitServiceUUIDs:
		return "Incomplete 128-bit Service UUIDs"
	case ADTypeComplete128BitServiceUUIDs:
		return "Complete 128-bit Service UUIDs"
	case ADTypeShortenedLocalName:
		return "Shortened Local Name"
	case ADTypeCompleteLocalName:
		return "Complete Local Name"
	case ADTypeTxPowerLevel:
		return "Tx Power Level"
	case ADTypeServiceData16Bit:
		return "Service Data (16-bit)"
	case ADTypeServiceData128Bit:
		return "Service Data (128-bit)"
	case ADTypeManufacturerSpecificData:
		return "Manufacturer Specific Data"
	case ADTypeAppearance:
		return "Appearance"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", adType)
	}
}
