package proto

import "fmt"

// OpCode selects the operation carried by a Request.
type OpCode uint32

const (
	OpGetStatus OpCode = 1
	OpStartScan OpCode = 2
	OpStopScan  OpCode = 3
	OpSetConfig OpCode = 4
)

func (o OpCode) String() string {
	switch o {
	case OpGetStatus:
		return "GET_STATUS"
	case OpStartScan:
		return "START_SCAN"
	case OpStopScan:
		return "STOP_SCAN"
	case OpSetConfig:
		return "SET_CONFIG"
	}
	return fmt.Sprintf("OP(%d)", uint32(o))
}

// Status is the outcome reported in a Response.
type Status uint32

const (
	StatusSuccess         Status = 0
	StatusInvalidArgument Status = 1
	StatusInvalidProto    Status = 2
	StatusInternalError   Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusInvalidProto:
		return "INVALID_PROTO"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	}
	return fmt.Sprintf("STATUS(%d)", uint32(s))
}

// ConnectionState describes the station link.
type ConnectionState uint32

const (
	StateDisconnected     ConnectionState = 0
	StateAuthentication   ConnectionState = 1
	StateAssociation      ConnectionState = 2
	StateObtainingIP      ConnectionState = 3
	StateConnected        ConnectionState = 4
	StateConnectionFailed ConnectionState = 5
)

var stateNames = map[ConnectionState]string{
	StateDisconnected:     "DISCONNECTED",
	StateAuthentication:   "AUTHENTICATION",
	StateAssociation:      "ASSOCIATION",
	StateObtainingIP:      "OBTAINING_IP",
	StateConnected:        "CONNECTED",
	StateConnectionFailed: "CONNECTION_FAILED",
}

func (s ConnectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", uint32(s))
}

// AuthMode is the security of an access point.
type AuthMode uint32

const (
	AuthOpen           AuthMode = 0
	AuthWEP            AuthMode = 1
	AuthWPAPSK         AuthMode = 2
	AuthWPA2PSK        AuthMode = 3
	AuthWPAWPA2PSK     AuthMode = 4
	AuthWPA2Enterprise AuthMode = 5
	AuthWPA3PSK        AuthMode = 6
)

var authNames = map[AuthMode]string{
	AuthOpen:           "OPEN",
	AuthWEP:            "WEP",
	AuthWPAPSK:         "WPA_PSK",
	AuthWPA2PSK:        "WPA2_PSK",
	AuthWPAWPA2PSK:     "WPA_WPA2_PSK",
	AuthWPA2Enterprise: "WPA2_ENTERPRISE",
	AuthWPA3PSK:        "WPA3_PSK",
}

func (a AuthMode) String() string {
	if name, ok := authNames[a]; ok {
		return name
	}
	return fmt.Sprintf("AUTH(%d)", uint32(a))
}

// ParseAuthMode is the inverse of AuthMode.String.
func ParseAuthMode(s string) (AuthMode, error) {
	for mode, name := range authNames {
		if name == s {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("proto: unknown auth mode %q", s)
}

// Band is the radio band of an access point.
type Band uint32

const (
	BandAny Band = 0
	Band2G4 Band = 1
	Band5G  Band = 2
)

func (b Band) String() string {
	switch b {
	case BandAny:
		return "ANY"
	case Band2G4:
		return "2.4GHz"
	case Band5G:
		return "5GHz"
	}
	return fmt.Sprintf("BAND(%d)", uint32(b))
}

// ChannelAny is reported when the channel of a stored profile is not known.
const ChannelAny = 255
