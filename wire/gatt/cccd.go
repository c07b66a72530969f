package gatt

import (
	"encoding/binary"
	"sync"
)

// CCCD (Client Characteristic Configuration Descriptor) values
// These are written by clients to enable/disable notifications and indications
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

// SubscriptionState represents the subscription state for a characteristic
type SubscriptionState struct {
	Handle          uint16 // Characteristic value handle
	NotifyEnabled   bool
	IndicateEnabled bool
}

// CCCDManager tracks CCCD subscriptions for one connection. Subscriptions are
// never shared across connections and are dropped with the connection.
type CCCDManager struct {
	mu            sync.RWMutex
	subscriptions map[uint16]*SubscriptionState // value handle -> state
}

// NewCCCDManager creates a new CCCD manager for a connection
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{
		subscriptions: make(map[uint16]*SubscriptionState),
	}
}

// SetSubscription updates the subscription state for a characteristic
// from the 2-byte little-endian CCCD value written by the client
func (cm *CCCDManager) SetSubscription(charHandle uint16, cccdValue []byte) error {
	notify, indicate, err := DecodeCCCDValue(cccdValue)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !notify && !indicate {
		delete(cm.subscriptions, charHandle)
		return nil
	}

	cm.subscriptions[charHandle] = &SubscriptionState{
		Handle:          charHandle,
		NotifyEnabled:   notify,
		IndicateEnabled: indicate,
	}
	return nil
}

// IsNotifyEnabled returns true if notifications are enabled for a characteristic
func (cm *CCCDManager) IsNotifyEnabled(charHandle uint16) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	state, exists := cm.subscriptions[charHandle]
	return exists && state.NotifyEnabled
}

// IsIndicateEnabled returns true if indications are enabled for a characteristic
func (cm *CCCDManager) IsIndicateEnabled(charHandle uint16) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	state, exists := cm.subscriptions[charHandle]
	return exists && state.IndicateEnabled
}

// Count returns the number of active subscriptions
func (cm *CCCDManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.subscriptions)
}

// EncodeCCCDValue converts subscription state to CCCD value bytes (little-endian)
func EncodeCCCDValue(notifyEnabled, indicateEnabled bool) []byte {
	var value uint16
	if notifyEnabled {
		value |= CCCDNotificationsEnabled
	}
	if indicateEnabled {
		value |= CCCDIndicationsEnabled
	}

	cccdValue := make([]byte, 2)
	binary.LittleEndian.PutUint16(cccdValue, value)
	return cccdValue
}

// DecodeCCCDValue parses CCCD value bytes to notification/indication flags
func DecodeCCCDValue(cccdValue []byte) (notifyEnabled, indicateEnabled bool, err error) {
	if len(cccdValue) != 2 {
		return false, false, ErrInvalidAttributeValueLength
	}

	value := binary.LittleEndian.Uint16(cccdValue)
	return value&CCCDNotificationsEnabled != 0, value&CCCDIndicationsEnabled != 0, nil
}

// ErrInvalidAttributeValueLength is returned when CCCD value has incorrect length
var ErrInvalidAttributeValueLength = &Error{Code: 0x0D, Description: "Invalid Attribute Value Length"}

// Error represents a GATT error carrying its ATT error code
type Error struct {
	Code        uint8
	Description string
}

func (e *Error) Error() string {
	return e.Description
}
