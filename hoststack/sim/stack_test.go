package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/wifiprov/hoststack"
	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/wire"
	"github.com/user/wifiprov/wire/att"
	"github.com/user/wifiprov/wire/gatt"
)

var (
	svcUUID  = gatt.MustParseUUID("14387800-130c-49e7-b877-2881c89cb258")
	ctrlUUID = gatt.MustParseUUID("14387802-130c-49e7-b877-2881c89cb258")
	infoUUID = gatt.MustParseUUID("14387801-130c-49e7-b877-2881c89cb258")
)

type recorder struct {
	connects    []hoststack.Connection
	disconnects []hoststack.Connection
	writes      [][]byte
	passkeys    []pairing.Event
	code        uint8
}

func (r *recorder) OnConnect(c hoststack.Connection)    { r.connects = append(r.connects, c) }
func (r *recorder) OnDisconnect(c hoststack.Connection) { r.disconnects = append(r.disconnects, c) }
func (r *recorder) OnWrite(conn, attr uint16, value []byte) uint8 {
	r.writes = append(r.writes, value)
	return r.code
}
func (r *recorder) OnPasskeyAction(ev pairing.Event) { r.passkeys = append(r.passkeys, ev) }

func setup(t *testing.T) (*Stack, *recorder, *gatt.ServiceHandleInfo) {
	t.Helper()
	s := New(nil)
	r := &recorder{}
	s.SetHandler(r)
	info, err := s.RegisterService(gatt.Service{
		UUID:    svcUUID,
		Primary: true,
		Characteristics: []gatt.Characteristic{
			{UUID: infoUUID, Properties: gatt.PropRead},
			{UUID: ctrlUUID, Properties: gatt.PropWrite | gatt.PropIndicate},
		},
	})
	require.NoError(t, err)
	return s, r, info
}

func TestConnectDisconnectEvents(t *testing.T) {
	s, r, _ := setup(t)
	require.NoError(t, s.Advertise(hoststack.Advertisement{Data: []byte{0x02, 0x01, 0x06}}))

	c := s.Connect("aa:bb:cc:dd:ee:ff", hoststack.AddrRandom)
	_, on := s.Advertising()
	assert.False(t, on, "connecting stops advertising")
	require.Len(t, r.connects, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", r.connects[0].Addr)

	assert.True(t, s.Disconnect(c))
	assert.False(t, s.Disconnect(c))
	require.Len(t, r.disconnects, 1)
	assert.Equal(t, c, r.disconnects[0].Handle)
	assert.Empty(t, s.Connections())
}

func TestWriteRoutesToHandler(t *testing.T) {
	s, r, info := setup(t)
	c := s.Connect("peer", hoststack.AddrPublic)
	ctrl, err := gatt.FindCharacteristicHandle(info, ctrlUUID)
	require.NoError(t, err)

	assert.Equal(t, uint8(att.ErrSuccess), s.Write(c, ctrl, []byte{0x08, 0x01}))
	assert.Equal(t, [][]byte{{0x08, 0x01}}, r.writes)

	r.code = att.ErrProcedureAlreadyInProgress
	assert.Equal(t, uint8(att.ErrProcedureAlreadyInProgress), s.Write(c, ctrl, []byte{0x08, 0x02}))

	infoHandle, err := gatt.FindCharacteristicHandle(info, infoUUID)
	require.NoError(t, err)
	assert.Equal(t, uint8(att.ErrWriteNotPermitted), s.Write(c, infoHandle, []byte{1}))
	assert.Equal(t, uint8(att.ErrInvalidHandle), s.Write(c, 0x0FFF, []byte{1}))
}

func TestReadLocalValue(t *testing.T) {
	s, _, info := setup(t)
	c := s.Connect("peer", hoststack.AddrPublic)
	infoHandle, err := gatt.FindCharacteristicHandle(info, infoUUID)
	require.NoError(t, err)

	require.NoError(t, s.WriteLocal(infoHandle, []byte{0x08, 0x01}))
	v, code := s.Read(c, infoHandle)
	assert.Equal(t, uint8(att.ErrSuccess), code)
	assert.Equal(t, []byte{0x08, 0x01}, v)
}

func TestSubscriptionRequired(t *testing.T) {
	s, _, info := setup(t)
	s.RequireSubscription = true
	c := s.Connect("peer", hoststack.AddrPublic)
	ctrl, err := gatt.FindCharacteristicHandle(info, ctrlUUID)
	require.NoError(t, err)

	err = s.Indicate(c, ctrl, []byte{1})
	assert.True(t, att.IsATTError(err, att.ErrCCCDImproperlyConfigured))

	require.Equal(t, uint8(att.ErrSuccess), s.Subscribe(c, ctrl, false, true))
	require.NoError(t, s.Indicate(c, ctrl, []byte{1}))

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, Outbound{Kind: KindIndicate, Conn: c, Attr: ctrl, Value: []byte{1}}, sent[0])
	assert.Empty(t, s.Sent(), "Sent drains")
}

func TestPushToUnknownConnection(t *testing.T) {
	s, _, info := setup(t)
	ctrl, err := gatt.FindCharacteristicHandle(info, ctrlUUID)
	require.NoError(t, err)
	assert.Error(t, s.Notify(9, ctrl, []byte{1}))
}

func TestPushRespectsMTU(t *testing.T) {
	cfg := wire.PerfectSimulationConfig()
	cfg.DefaultMTU = 23
	s := New(cfg)
	info, err := s.RegisterService(gatt.Service{
		UUID:            svcUUID,
		Primary:         true,
		Characteristics: []gatt.Characteristic{{UUID: ctrlUUID, Properties: gatt.PropNotify}},
	})
	require.NoError(t, err)
	c := s.Connect("peer", hoststack.AddrPublic)
	h, err := gatt.FindCharacteristicHandle(info, ctrlUUID)
	require.NoError(t, err)

	assert.NoError(t, s.Notify(c, h, make([]byte, 20)))
	assert.Error(t, s.Notify(c, h, make([]byte, 21)))
}

func TestLossyIndicationFails(t *testing.T) {
	cfg := wire.PerfectSimulationConfig()
	cfg.PacketLossRate = 1
	s := New(cfg)
	info, err := s.RegisterService(gatt.Service{
		UUID:            svcUUID,
		Primary:         true,
		Characteristics: []gatt.Characteristic{{UUID: ctrlUUID, Properties: gatt.PropWrite | gatt.PropIndicate}},
	})
	require.NoError(t, err)
	c := s.Connect("peer", hoststack.AddrPublic)
	h, err := gatt.FindCharacteristicHandle(info, ctrlUUID)
	require.NoError(t, err)

	assert.Error(t, s.Indicate(c, h, []byte{1}))
	assert.NoError(t, s.Notify(c, h, []byte{1}), "lost notifications are silent")
	assert.Empty(t, s.Sent())
}

func TestPasskeyAndReply(t *testing.T) {
	s, r, _ := setup(t)
	c := s.Connect("peer", hoststack.AddrPublic)

	s.Passkey(c, pairing.ActionNumericComparison, 123456)
	require.Len(t, r.passkeys, 1)
	assert.True(t, r.passkeys[0].HasPasskey)

	require.NoError(t, s.PasskeyReply(c, pairing.ActionNumericComparison, 1))
	assert.Equal(t, []Reply{{Conn: c, Action: pairing.ActionNumericComparison, Value: 1}}, s.Replies())
	assert.Error(t, s.PasskeyReply(99, pairing.ActionInput, 0))
}

func smallMTUStack(t *testing.T) (*Stack, *recorder, uint16) {
	t.Helper()
	cfg := wire.PerfectSimulationConfig()
	cfg.DefaultMTU = 23
	s := New(cfg)
	r := &recorder{}
	s.SetHandler(r)
	info, err := s.RegisterService(gatt.Service{
		UUID:            svcUUID,
		Primary:         true,
		Characteristics: []gatt.Characteristic{{UUID: ctrlUUID, Properties: gatt.PropWrite | gatt.PropIndicate}},
	})
	require.NoError(t, err)
	h, err := gatt.FindCharacteristicHandle(info, ctrlUUID)
	require.NoError(t, err)
	return s, r, h
}

func TestWriteLongerThanMTURequiresLongWrite(t *testing.T) {
	s, r, h := smallMTUStack(t)
	c := s.Connect("peer", hoststack.AddrPublic)
	value := make([]byte, 60)
	for i := range value {
		value[i] = byte(i)
	}

	assert.Equal(t, uint8(att.ErrInvalidAttributeValueLength), s.Write(c, h, value))
	assert.Empty(t, r.writes)

	assert.Equal(t, uint8(att.ErrSuccess), s.WriteLong(c, h, value))
	require.Len(t, r.writes, 1, "prepared chunks reach the handler as one write")
	assert.Equal(t, value, r.writes[0])

	attr, err := s.Attribute(h)
	require.NoError(t, err)
	assert.Equal(t, value, attr.Value)
}

func TestWriteLongShortValue(t *testing.T) {
	s, r, h := smallMTUStack(t)
	c := s.Connect("peer", hoststack.AddrPublic)

	assert.Equal(t, uint8(att.ErrSuccess), s.WriteLong(c, h, []byte{1, 2, 3}))
	assert.Equal(t, [][]byte{{1, 2, 3}}, r.writes)
}

func TestExecuteWriteCancel(t *testing.T) {
	s, r, h := smallMTUStack(t)
	c := s.Connect("peer", hoststack.AddrPublic)

	require.Equal(t, uint8(att.ErrSuccess), s.prepareWrite(c, att.Chunk{Handle: h, Value: []byte{1, 2}}))
	assert.Equal(t, uint8(att.ErrSuccess), s.ExecuteWrite(c, false))
	assert.Empty(t, r.writes)

	assert.Equal(t, uint8(att.ErrUnlikelyError), s.WriteLong(99, h, make([]byte, 40)))
}
