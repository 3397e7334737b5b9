// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import "scsibridge/pkg/logger"

const (
	transportIDSize = 24
	protocolIDSAS   = 0x06
)

// synthesizeTransportID builds a SAS-format transport identifier for a
// session that never had one stored: a fixed protocol tag plus the
// session number spread over the reserved address nibbles.
func synthesizeTransportID(number int64) []byte {
	id := make([]byte, transportIDSize)
	id[0] = 0x00 | protocolIDSAS

	id[4] = 0x5F
	id[5] = 0xEE
	id[6] = 0xDE
	id[7] = 0x40 | byte((number>>4)&0x0F)
	id[8] = 0x0F | byte((number&0x0F)<<4)
	id[9] = 0xAD
	id[10] = 0xE0
	id[11] = 0x50

	logger.GetLogger().Debugf(
		"created tid '%02X:%02X:%02X:%02X:%02X:%02X:%02X:%02X'",
		id[4], id[5], id[6], id[7], id[8], id[9], id[10], id[11])
	return id
}

// TransportID returns a copy of the stored transport identifier, lazily
// synthesizing one when nothing has been stored.
func (session *Session) TransportID() []byte {
	session.transportIDMutex.Lock()
	defer session.transportIDMutex.Unlock()
	if session.transportID == nil {
		return synthesizeTransportID(session.number)
	}
	id := make([]byte, len(session.transportID))
	copy(id, session.transportID)
	return id
}

// SetTransportID replaces the cached identifier wholesale; an empty value
// clears it so the synthesized form is used again.
func (session *Session) SetTransportID(id []byte) {
	session.transportIDMutex.Lock()
	defer session.transportIDMutex.Unlock()
	if len(id) == 0 {
		session.transportID = nil
		return
	}
	session.transportID = make([]byte, len(id))
	copy(session.transportID, id)
}
