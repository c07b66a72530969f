package gatt

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Well-known GATT UUIDs (16-bit, little-endian)
var (
	UUIDPrimaryService   = []byte{0x00, 0x28} // 0x2800
	UUIDSecondaryService = []byte{0x01, 0x28} // 0x2801
	UUIDCharacteristic   = []byte{0x03, 0x28} // 0x2803

	UUIDCharUserDescription        = []byte{0x01, 0x29} // 0x2901
	UUIDClientCharacteristicConfig = []byte{0x02, 0x29} // 0x2902 (CCCD)
)

// Characteristic Properties (bitmask)
const (
	PropBroadcast            = 0x01
	PropRead                 = 0x02
	PropWriteWithoutResponse = 0x04
	PropWrite                = 0x08
	PropNotify               = 0x10
	PropIndicate             = 0x20
)

// Attribute permissions (not transmitted over the air, server-side only)
const (
	PermReadable = 0x01
	PermWritable = 0x02
)

// Attribute represents a single GATT attribute with a handle
type Attribute struct {
	Handle      uint16 // ATT handle (1-based, 0x0000 is reserved)
	Type        []byte // UUID (2 or 16 bytes)
	Value       []byte // Current value
	Permissions uint8  // Read/Write permissions
}

// AttributeDatabase manages the GATT attribute table with handle-based access
type AttributeDatabase struct {
	mu         sync.RWMutex
	attributes map[uint16]*Attribute // Handle -> Attribute
	nextHandle uint16                // Next available handle
}

// NewAttributeDatabase creates an empty attribute database
func NewAttributeDatabase() *AttributeDatabase {
	return &AttributeDatabase{
		attributes: make(map[uint16]*Attribute),
		nextHandle: 0x0001, // Handles start at 1
	}
}

// AddAttribute adds an attribute and assigns it a handle
func (db *AttributeDatabase) AddAttribute(attrType []byte, value []byte, permissions uint8) uint16 {
	db.mu.Lock()
	defer db.mu.Unlock()

	handle := db.nextHandle
	db.nextHandle++

	db.attributes[handle] = &Attribute{
		Handle:      handle,
		Type:        append([]byte{}, attrType...),
		Value:       append([]byte{}, value...),
		Permissions: permissions,
	}

	return handle
}

// GetAttribute retrieves a copy of the attribute stored at handle
func (db *AttributeDatabase) GetAttribute(handle uint16) (*Attribute, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	attr, ok := db.attributes[handle]
	if !ok {
		return nil, fmt.Errorf("gatt: invalid handle 0x%04X", handle)
	}

	return &Attribute{
		Handle:      attr.Handle,
		Type:        append([]byte{}, attr.Type...),
		Value:       append([]byte{}, attr.Value...),
		Permissions: attr.Permissions,
	}, nil
}

// SetAttributeValue updates an attribute's value
func (db *AttributeDatabase) SetAttributeValue(handle uint16, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	attr, ok := db.attributes[handle]
	if !ok {
		return fmt.Errorf("gatt: invalid handle 0x%04X", handle)
	}

	attr.Value = append([]byte{}, value...)
	return nil
}

// FindAttributesByType returns all handles with matching type UUID in a range
func (db *AttributeDatabase) FindAttributesByType(startHandle, endHandle uint16, attrType []byte) []uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var handles []uint16
	for h := startHandle; h <= endHandle && h < db.nextHandle; h++ {
		if attr, ok := db.attributes[h]; ok && bytes.Equal(attr.Type, attrType) {
			handles = append(handles, h)
		}
	}
	return handles
}

// Count returns the number of attributes in the database
func (db *AttributeDatabase) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.attributes)
}

// LastHandle returns the highest handle assigned so far (0 when empty)
func (db *AttributeDatabase) LastHandle() uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.nextHandle - 1
}

// UUID16 creates a 16-bit UUID in little-endian format
func UUID16(val uint16) []byte {
	return []byte{byte(val), byte(val >> 8)}
}

// ParseUUID parses a canonical 128-bit UUID string and returns it in the
// little-endian byte order used on the air.
func ParseUUID(s string) ([]byte, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("gatt: %w", err)
	}
	return reverse(u[:]), nil
}

// MustParseUUID is ParseUUID for package-level constants
func MustParseUUID(s string) []byte {
	b, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return b
}

// UUIDString formats a little-endian UUID (2 or 16 bytes) for logs and map keys
func UUIDString(le []byte) string {
	switch len(le) {
	case 2:
		return fmt.Sprintf("%04x", uint16(le[0])|uint16(le[1])<<8)
	case 16:
		u, err := uuid.FromBytes(reverse(le))
		if err != nil {
			return fmt.Sprintf("%x", le)
		}
		return u.String()
	default:
		return fmt.Sprintf("%x", le)
	}
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
