package gatt

import (
	"encoding/binary"
	"fmt"
)

// Service represents a high-level GATT service definition
type Service struct {
	UUID            []byte           // Service UUID (2 or 16 bytes, little-endian)
	Primary         bool             // true = primary service, false = secondary
	Characteristics []Characteristic // List of characteristics in this service
}

// Characteristic represents a high-level GATT characteristic definition
type Characteristic struct {
	UUID        []byte       // Characteristic UUID (2 or 16 bytes)
	Properties  uint8        // Characteristic properties (read, write, notify, etc.)
	Value       []byte       // Initial value
	Descriptors []Descriptor // Optional descriptors (user description, etc.)
}

// Descriptor represents a GATT descriptor
type Descriptor struct {
	UUID  []byte // Descriptor UUID (2 or 16 bytes)
	Value []byte // Descriptor value
}

// ServiceHandleInfo stores the handle ranges for a built service
type ServiceHandleInfo struct {
	ServiceHandle uint16            // Handle of the service declaration
	StartHandle   uint16            // First handle in the service
	EndHandle     uint16            // Last handle in the service
	CharHandles   map[string]uint16 // UUID -> characteristic value handle
	CCCDHandles   map[uint16]uint16 // CCCD handle -> characteristic value handle
}

// BuildAttributeDatabase converts high-level service definitions into an attribute database
func BuildAttributeDatabase(services []Service) (*AttributeDatabase, []*ServiceHandleInfo) {
	db := NewAttributeDatabase()
	infos := make([]*ServiceHandleInfo, 0, len(services))

	for _, service := range services {
		infos = append(infos, AddService(db, service))
	}

	return db, infos
}

// AddService appends a single service and its characteristics to db
func AddService(db *AttributeDatabase, service Service) *ServiceHandleInfo {
	info := &ServiceHandleInfo{
		CharHandles: make(map[string]uint16),
		CCCDHandles: make(map[uint16]uint16),
	}

	serviceType := UUIDSecondaryService
	if service.Primary {
		serviceType = UUIDPrimaryService
	}

	info.ServiceHandle = db.AddAttribute(serviceType, service.UUID, PermReadable)
	info.StartHandle = info.ServiceHandle

	for _, char := range service.Characteristics {
		charInfo := buildCharacteristic(db, char)
		info.CharHandles[UUIDString(char.UUID)] = charInfo.ValueHandle
		if charInfo.CCCDHandle != 0 {
			info.CCCDHandles[charInfo.CCCDHandle] = charInfo.ValueHandle
		}
	}

	info.EndHandle = db.LastHandle()
	return info
}

// charHandleInfo stores handle information for a characteristic
type charHandleInfo struct {
	DeclarationHandle uint16
	ValueHandle       uint16
	CCCDHandle        uint16
}

// buildCharacteristic adds a characteristic and its descriptors to the database
func buildCharacteristic(db *AttributeDatabase, char Characteristic) *charHandleInfo {
	info := &charHandleInfo{}

	// Declaration: [Properties: 1 byte][Value Handle: 2 bytes][UUID: 2 or 16 bytes]
	declValue := make([]byte, 3+len(char.UUID))
	declValue[0] = char.Properties
	binary.LittleEndian.PutUint16(declValue[1:3], db.LastHandle()+2)
	copy(declValue[3:], char.UUID)

	info.DeclarationHandle = db.AddAttribute(UUIDCharacteristic, declValue, PermReadable)
	info.ValueHandle = db.AddAttribute(char.UUID, char.Value, determinePermissions(char.Properties))

	for _, desc := range char.Descriptors {
		db.AddAttribute(desc.UUID, desc.Value, PermReadable|PermWritable)
	}

	if char.Properties&(PropNotify|PropIndicate) != 0 {
		info.CCCDHandle = db.AddAttribute(UUIDClientCharacteristicConfig, []byte{0x00, 0x00}, PermReadable|PermWritable)
	}

	return info
}

// determinePermissions converts characteristic properties to attribute permissions
func determinePermissions(properties uint8) uint8 {
	var perms uint8
	if properties&PropRead != 0 {
		perms |= PermReadable
	}
	if properties&(PropWrite|PropWriteWithoutResponse) != 0 {
		perms |= PermWritable
	}
	return perms
}

// UserDescription creates a characteristic user description descriptor (0x2901)
func UserDescription(text string) Descriptor {
	return Descriptor{
		UUID:  UUIDCharUserDescription,
		Value: []byte(text),
	}
}

// FindCharacteristicHandle finds the value handle for a characteristic UUID in a service
func FindCharacteristicHandle(serviceInfo *ServiceHandleInfo, charUUID []byte) (uint16, error) {
	key := UUIDString(charUUID)
	handle, ok := serviceInfo.CharHandles[key]
	if !ok {
		return 0, fmt.Errorf("gatt: characteristic %s not found in service", key)
	}
	return handle, nil
}
