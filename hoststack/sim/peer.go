package sim

import (
	"github.com/user/wifiprov/hoststack"
	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/wire/att"
	"github.com/user/wifiprov/wire/gatt"
)

// Connect simulates a central connecting from addr and returns its handle.
func (s *Stack) Connect(addr string, addrType uint8) uint16 {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	c := hoststack.Connection{Handle: s.nextConn, Addr: addr, AddrType: addrType}
	s.nextConn++
	cfg := s.radio.Config()
	s.peers[c.Handle] = &peer{
		conn: c,
		mtu:  s.radio.NegotiatedMTU(cfg.DefaultMTU, cfg.MaxMTU),
		cccd: gatt.NewCCCDManager(),
	}
	// a connection ends advertising, as on a real controller
	s.advertising = false
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h.OnConnect(c)
	}
	return c.Handle
}

// Disconnect simulates the central going away. Subscriptions are dropped.
func (s *Stack) Disconnect(conn uint16) bool {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	p, ok := s.peers[conn]
	delete(s.peers, conn)
	h := s.handler
	s.mu.Unlock()

	if ok && h != nil {
		h.OnDisconnect(p.conn)
	}
	return ok
}

// Write simulates a write request and returns the ATT code the central sees.
// Values longer than the peer's MTU allows must go through WriteLong.
func (s *Stack) Write(conn uint16, attr uint16, value []byte) uint8 {
	s.mu.Lock()
	p, ok := s.peers[conn]
	s.mu.Unlock()
	if ok && att.NeedsLongWrite(p.mtu, value) {
		return att.ErrInvalidAttributeValueLength
	}
	return s.write(conn, attr, value)
}

func (s *Stack) write(conn uint16, attr uint16, value []byte) uint8 {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	p, ok := s.peers[conn]
	if !ok {
		s.mu.Unlock()
		return att.ErrUnlikelyError
	}
	a, err := s.db.GetAttribute(attr)
	if err != nil {
		s.mu.Unlock()
		return att.ErrInvalidHandle
	}
	if a.Permissions&gatt.PermWritable == 0 {
		s.mu.Unlock()
		return att.ErrWriteNotPermitted
	}
	if owner, isCCCD := s.cccdOwner[attr]; isCCCD {
		defer s.mu.Unlock()
		if err := p.cccd.SetSubscription(owner, value); err != nil {
			return att.ErrInvalidAttributeValueLength
		}
		return att.ErrSuccess
	}
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		return att.ErrSuccess
	}
	code := h.OnWrite(conn, attr, value)
	if code == att.ErrSuccess {
		_ = s.db.SetAttributeValue(attr, value)
	}
	return code
}

// WriteLong simulates a reliable long write: the value is prepared in chunks
// sized to the peer's MTU and then executed. Short values are written
// directly.
func (s *Stack) WriteLong(conn uint16, attr uint16, value []byte) uint8 {
	s.mu.Lock()
	p, ok := s.peers[conn]
	s.mu.Unlock()
	if !ok {
		return att.ErrUnlikelyError
	}
	if !att.NeedsLongWrite(p.mtu, value) {
		return s.write(conn, attr, value)
	}

	chunks, err := att.SplitLongWrite(attr, value, p.mtu)
	if err != nil {
		return att.ErrInvalidAttributeValueLength
	}
	for _, c := range chunks {
		if code := s.prepareWrite(conn, c); code != att.ErrSuccess {
			s.ExecuteWrite(conn, false)
			return code
		}
	}
	return s.ExecuteWrite(conn, true)
}

func (s *Stack) prepareWrite(conn uint16, c att.Chunk) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[conn]
	if !ok {
		return att.ErrUnlikelyError
	}
	a, err := s.db.GetAttribute(c.Handle)
	if err != nil {
		return att.ErrInvalidHandle
	}
	if a.Permissions&gatt.PermWritable == 0 {
		return att.ErrWriteNotPermitted
	}
	return p.prepare.Prepare(c)
}

// ExecuteWrite commits or cancels the prepared writes of conn.
func (s *Stack) ExecuteWrite(conn uint16, commit bool) uint8 {
	s.mu.Lock()
	p, ok := s.peers[conn]
	if !ok {
		s.mu.Unlock()
		return att.ErrUnlikelyError
	}
	handle, value, ok := p.prepare.Execute(commit)
	s.mu.Unlock()

	if !ok {
		return att.ErrSuccess
	}
	return s.write(conn, handle, value)
}

// Read returns the stored value of attr.
func (s *Stack) Read(conn uint16, attr uint16) ([]byte, uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peers[conn]; !ok {
		return nil, att.ErrUnlikelyError
	}
	a, err := s.db.GetAttribute(attr)
	if err != nil {
		return nil, att.ErrInvalidHandle
	}
	if a.Permissions&gatt.PermReadable == 0 {
		return nil, att.ErrReadNotPermitted
	}
	return a.Value, att.ErrSuccess
}

// Subscribe writes the CCCD belonging to value handle attr.
func (s *Stack) Subscribe(conn uint16, attr uint16, notify, indicate bool) uint8 {
	s.mu.Lock()
	var cccd uint16
	for c, owner := range s.cccdOwner {
		if owner == attr {
			cccd = c
		}
	}
	s.mu.Unlock()

	if cccd == 0 {
		return att.ErrAttributeNotFound
	}
	return s.write(conn, cccd, gatt.EncodeCCCDValue(notify, indicate))
}

// Passkey raises a passkey action for conn.
func (s *Stack) Passkey(conn uint16, action pairing.Action, passkey uint32) {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h.OnPasskeyAction(pairing.Event{
			Conn:       conn,
			Action:     action,
			Passkey:    passkey,
			HasPasskey: action == pairing.ActionDisplay || action == pairing.ActionNumericComparison,
		})
	}
}

// Sent returns and clears the recorded outbound values.
func (s *Stack) Sent() []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

// Replies returns the recorded passkey replies.
func (s *Stack) Replies() []Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reply(nil), s.replies...)
}

// Advertising returns the current advertisement and whether it is on air.
func (s *Stack) Advertising() (hoststack.Advertisement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adv, s.advertising
}

// AdvertiseCount is the number of Advertise calls so far.
func (s *Stack) AdvertiseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advCount
}

// Connections returns the live connection handles.
func (s *Stack) Connections() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]uint16, 0, len(s.peers))
	for h := range s.peers {
		handles = append(handles, h)
	}
	return handles
}

// Attribute returns the attribute stored at handle.
func (s *Stack) Attribute(handle uint16) (*gatt.Attribute, error) {
	return s.db.GetAttribute(handle)
}
