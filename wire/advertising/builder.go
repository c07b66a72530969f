package advertising

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Fields describes the content of an advertising payload produced by Build.
type Fields struct {
	LimitedDiscoverable bool     // LE limited instead of general discoverable
	BREDR               bool     // advertise simultaneous LE + BR/EDR support
	Name                string   // complete local name, omitted when empty
	Services            [][]byte // little-endian service UUIDs (2, 4 or 16 bytes)
	Appearance          int16    // GAP appearance, omitted when zero
}

// Scan response layout. The 128-bit service data element carries four
// reserved bytes after the UUID; the first one is the protocol revision.
const (
	ScanResponseLen  = 22
	RevisionIndex    = 18
	StatusFlagsIndex = 19
)

// Status flag bits stored at StatusFlagsIndex.
const (
	StatusProvisioned   = 0x01
	StatusWifiConnected = 0x02
)

// Build encodes fields as a sequence of [len][type][value] elements. The
// flags element always comes first. Service identifiers whose length is not
// 2, 4 or 16 bytes are dropped. A name too long for one element is cut on a
// rune boundary and sent as a shortened name.
func Build(f Fields) []byte {
	var buf []byte

	flags := byte(FlagLEGeneralDiscoverableMode)
	if f.LimitedDiscoverable {
		flags = FlagLELimitedDiscoverableMode
	}
	if f.BREDR {
		flags += FlagSimultaneousLEBREDRController | FlagSimultaneousLEBREDRHost
	} else {
		flags += FlagBREDRNotSupported
	}
	buf = appendAD(buf, ADTypeFlags, []byte{flags})

	if f.Name != "" {
		name, adType := []byte(f.Name), byte(ADTypeCompleteLocalName)
		if len(name) > MaxADValueLen {
			n := MaxADValueLen
			for n > 0 && !utf8.RuneStart(name[n]) {
				n--
			}
			name, adType = name[:n], ADTypeShortenedLocalName
		}
		buf = appendAD(buf, adType, name)
	}

	for _, uuid := range f.Services {
		switch len(uuid) {
		case 2:
			buf = appendAD(buf, ADTypeComplete16BitServiceUUIDs, uuid)
		case 4:
			buf = appendAD(buf, ADTypeComplete32BitServiceUUIDs, uuid)
		case 16:
			buf = appendAD(buf, ADTypeComplete128BitServiceUUIDs, uuid)
		}
	}

	if f.Appearance != 0 {
		var v [2]byte
		binary.LittleEndian.PutUint16(v[:], uint16(f.Appearance))
		buf = appendAD(buf, ADTypeAppearance, v[:])
	}

	return buf
}

// Parse is the inverse of Build.
func Parse(data []byte) (Fields, error) {
	structures, err := DecodeADStructures(data)
	if err != nil {
		return Fields{}, err
	}

	flags, ok := GetFlags(structures)
	if !ok {
		return Fields{}, fmt.Errorf("advertising: missing flags element")
	}

	f := Fields{
		LimitedDiscoverable: flags&FlagLELimitedDiscoverableMode != 0,
		BREDR:               flags&(FlagSimultaneousLEBREDRController|FlagSimultaneousLEBREDRHost) != 0,
		Name:                GetLocalName(structures),
		Services:            GetServiceUUIDs(structures),
	}
	if appearance, ok := GetAppearance(structures); ok {
		f.Appearance = appearance
	}
	return f, nil
}

// ScanResponse builds the scan response for the provisioning service: a single
// 128-bit service data element holding the service UUID followed by the
// revision byte, the status flags and two zero bytes.
func ScanResponse(serviceUUID []byte, revision byte, status byte) ([]byte, error) {
	if len(serviceUUID) != 16 {
		return nil, fmt.Errorf("advertising: scan response needs a 128-bit UUID, got %d bytes", len(serviceUUID))
	}
	value := make([]byte, 0, 20)
	value = append(value, serviceUUID...)
	value = append(value, revision, status, 0, 0)
	return appendAD(nil, ADTypeServiceData128Bit, value), nil
}
