package proto

// Info is the value of the Information characteristic.
type Info struct {
	Version uint32
}

// ProtocolVersion is the version advertised in Info.
const ProtocolVersion = 1

func (m *Info) Marshal() []byte {
	return appendUint(nil, 1, uint64(m.Version))
}

func (m *Info) Unmarshal(b []byte) error {
	*m = Info{}
	return each(b, func(f RawField) (err error) {
		if f.Num == 1 {
			m.Version, err = f.asUint32("Info")
		}
		return err
	})
}

// ScanParams tunes an access point scan.
type ScanParams struct {
	Band          Band
	Passive       bool
	PeriodMs      uint32
	GroupChannels uint32
}

func (m *ScanParams) Marshal() []byte {
	var b []byte
	if m.Band != 0 {
		b = appendUint(b, 1, uint64(m.Band))
	}
	if m.Passive {
		b = appendBool(b, 2, true)
	}
	if m.PeriodMs != 0 {
		b = appendUint(b, 3, uint64(m.PeriodMs))
	}
	if m.GroupChannels != 0 {
		b = appendUint(b, 4, uint64(m.GroupChannels))
	}
	return b
}

func (m *ScanParams) Unmarshal(b []byte) error {
	*m = ScanParams{}
	return each(b, func(f RawField) (err error) {
		switch f.Num {
		case 1:
			var v uint32
			v, err = f.asUint32("ScanParams")
			m.Band = Band(v)
		case 2:
			m.Passive, err = f.asBool("ScanParams")
		case 3:
			m.PeriodMs, err = f.asUint32("ScanParams")
		case 4:
			m.GroupChannels, err = f.asUint32("ScanParams")
		}
		return err
	})
}

// WifiInfo identifies an access point.
type WifiInfo struct {
	SSID    []byte
	BSSID   []byte
	Band    Band
	Channel uint32
	Auth    AuthMode
}

// ssid, bssid and channel are always written, even when zero.
func (m *WifiInfo) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.SSID)
	b = appendBytes(b, 2, m.BSSID)
	if m.Band != 0 {
		b = appendUint(b, 3, uint64(m.Band))
	}
	b = appendUint(b, 4, uint64(m.Channel))
	if m.Auth != 0 {
		b = appendUint(b, 5, uint64(m.Auth))
	}
	return b
}

func (m *WifiInfo) Unmarshal(b []byte) error {
	*m = WifiInfo{}
	return each(b, func(f RawField) (err error) {
		var v uint32
		switch f.Num {
		case 1:
			m.SSID, err = f.asBytes("WifiInfo")
		case 2:
			m.BSSID, err = f.asBytes("WifiInfo")
		case 3:
			v, err = f.asUint32("WifiInfo")
			m.Band = Band(v)
		case 4:
			m.Channel, err = f.asUint32("WifiInfo")
		case 5:
			v, err = f.asUint32("WifiInfo")
			m.Auth = AuthMode(v)
		}
		return err
	})
}

// WifiConfig carries credentials for SET_CONFIG.
type WifiConfig struct {
	Wifi       *WifiInfo
	Passphrase []byte
	Volatile   bool
}

func (m *WifiConfig) Marshal() []byte {
	var b []byte
	if m.Wifi != nil {
		b = appendBytes(b, 1, m.Wifi.Marshal())
	}
	if len(m.Passphrase) > 0 {
		b = appendBytes(b, 2, m.Passphrase)
	}
	if m.Volatile {
		b = appendBool(b, 3, true)
	}
	return b
}

func (m *WifiConfig) Unmarshal(b []byte) error {
	*m = WifiConfig{}
	return each(b, func(f RawField) (err error) {
		switch f.Num {
		case 1:
			m.Wifi = &WifiInfo{}
			err = f.asMessage("WifiConfig", m.Wifi)
		case 2:
			m.Passphrase, err = f.asBytes("WifiConfig")
		case 3:
			m.Volatile, err = f.asBool("WifiConfig")
		}
		return err
	})
}

// Request is written by the client to the Control Point.
type Request struct {
	Op     OpCode
	Scan   *ScanParams
	Config *WifiConfig
}

func (m *Request) Marshal() []byte {
	b := appendUint(nil, 1, uint64(m.Op))
	if m.Scan != nil {
		b = appendBytes(b, 10, m.Scan.Marshal())
	}
	if m.Config != nil {
		b = appendBytes(b, 11, m.Config.Marshal())
	}
	return b
}

func (m *Request) Unmarshal(b []byte) error {
	*m = Request{}
	return each(b, func(f RawField) (err error) {
		switch f.Num {
		case 1:
			var v uint32
			v, err = f.asUint32("Request")
			m.Op = OpCode(v)
		case 10:
			m.Scan = &ScanParams{}
			err = f.asMessage("Request", m.Scan)
		case 11:
			m.Config = &WifiConfig{}
			err = f.asMessage("Request", m.Config)
		}
		return err
	})
}

// ConnectionInfo describes an established station link.
type ConnectionInfo struct {
	IP4 []byte
}

func (m *ConnectionInfo) Marshal() []byte {
	if len(m.IP4) == 0 {
		return nil
	}
	return appendBytes(nil, 1, m.IP4)
}

func (m *ConnectionInfo) Unmarshal(b []byte) error {
	*m = ConnectionInfo{}
	return each(b, func(f RawField) (err error) {
		if f.Num == 1 {
			m.IP4, err = f.asBytes("ConnectionInfo")
		}
		return err
	})
}

// DeviceStatus is returned by GET_STATUS.
type DeviceStatus struct {
	State            ConnectionState
	ProvisioningInfo *WifiInfo
	ConnectionInfo   *ConnectionInfo
	ScanInfo         *ScanParams
}

func (m *DeviceStatus) Marshal() []byte {
	b := appendUint(nil, 1, uint64(m.State))
	if m.ProvisioningInfo != nil {
		b = appendBytes(b, 10, m.ProvisioningInfo.Marshal())
	}
	if m.ConnectionInfo != nil {
		b = appendBytes(b, 11, m.ConnectionInfo.Marshal())
	}
	if m.ScanInfo != nil {
		b = appendBytes(b, 12, m.ScanInfo.Marshal())
	}
	return b
}

func (m *DeviceStatus) Unmarshal(b []byte) error {
	*m = DeviceStatus{}
	return each(b, func(f RawField) (err error) {
		switch f.Num {
		case 1:
			var v uint32
			v, err = f.asUint32("DeviceStatus")
			m.State = ConnectionState(v)
		case 10:
			m.ProvisioningInfo = &WifiInfo{}
			err = f.asMessage("DeviceStatus", m.ProvisioningInfo)
		case 11:
			m.ConnectionInfo = &ConnectionInfo{}
			err = f.asMessage("DeviceStatus", m.ConnectionInfo)
		case 12:
			m.ScanInfo = &ScanParams{}
			err = f.asMessage("DeviceStatus", m.ScanInfo)
		}
		return err
	})
}

// Response is indicated on the Control Point for every Request.
type Response struct {
	Op           OpCode
	Status       Status
	DeviceStatus *DeviceStatus
}

func (m *Response) Marshal() []byte {
	b := appendUint(nil, 1, uint64(m.Op))
	b = appendUint(b, 2, uint64(m.Status))
	if m.DeviceStatus != nil {
		b = appendBytes(b, 10, m.DeviceStatus.Marshal())
	}
	return b
}

func (m *Response) Unmarshal(b []byte) error {
	*m = Response{}
	return each(b, func(f RawField) (err error) {
		var v uint32
		switch f.Num {
		case 1:
			v, err = f.asUint32("Response")
			m.Op = OpCode(v)
		case 2:
			v, err = f.asUint32("Response")
			m.Status = Status(v)
		case 10:
			m.DeviceStatus = &DeviceStatus{}
			err = f.asMessage("Response", m.DeviceStatus)
		}
		return err
	})
}

// ScanRecord is one access point found by START_SCAN. Wifi holds an encoded
// WifiInfo and is decoded on demand with Info. RSSI is the magnitude of the
// signal strength in dBm.
type ScanRecord struct {
	Wifi []byte
	RSSI uint32
}

// NewScanRecord encodes info and stores the magnitude of dbm.
func NewScanRecord(info *WifiInfo, dbm int) *ScanRecord {
	if dbm < 0 {
		dbm = -dbm
	}
	return &ScanRecord{Wifi: info.Marshal(), RSSI: uint32(dbm)}
}

// DBm returns the signal strength, which is always negative.
func (m *ScanRecord) DBm() int {
	return -int(m.RSSI)
}

// Info decodes the nested WifiInfo.
func (m *ScanRecord) Info() (*WifiInfo, error) {
	info := &WifiInfo{}
	if err := info.Unmarshal(m.Wifi); err != nil {
		return nil, err
	}
	return info, nil
}

func (m *ScanRecord) Marshal() []byte {
	b := appendBytes(nil, 1, m.Wifi)
	if m.RSSI != 0 {
		b = appendUint(b, 2, uint64(m.RSSI))
	}
	return b
}

func (m *ScanRecord) Unmarshal(b []byte) error {
	*m = ScanRecord{}
	return each(b, func(f RawField) (err error) {
		switch f.Num {
		case 1:
			m.Wifi, err = f.asBytes("ScanRecord")
		case 2:
			m.RSSI, err = f.asUint32("ScanRecord")
		}
		return err
	})
}

// Result is notified on the Data characteristic: one per scanned access
// point, and once when a join attempt completes.
type Result struct {
	ScanRecord *ScanRecord
	State      ConnectionState
	Reason     uint32
}

func (m *Result) Marshal() []byte {
	var b []byte
	if m.ScanRecord != nil {
		b = appendBytes(b, 1, m.ScanRecord.Marshal())
	}
	if m.State != 0 {
		b = appendUint(b, 2, uint64(m.State))
	}
	if m.Reason != 0 {
		b = appendUint(b, 3, uint64(m.Reason))
	}
	return b
}

func (m *Result) Unmarshal(b []byte) error {
	*m = Result{}
	return each(b, func(f RawField) (err error) {
		switch f.Num {
		case 1:
			m.ScanRecord = &ScanRecord{}
			err = f.asMessage("Result", m.ScanRecord)
		case 2:
			var v uint32
			v, err = f.asUint32("Result")
			m.State = ConnectionState(v)
		case 3:
			m.Reason, err = f.asUint32("Result")
		}
		return err
	})
}

// each runs fn over the top-level fields of b. Fields fn does not recognise
// are ignored.
func each(b []byte, fn func(RawField) error) error {
	fields, err := DecodeRaw(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
