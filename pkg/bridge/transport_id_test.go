// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSynthesizedTransportIDEncodesSessionNumber(t *testing.T) {
	id := synthesizeTransportID(0x25)

	require.Len(t, id, transportIDSize)
	require.Equal(t, byte(0x06), id[0])
	require.Equal(t, byte(0x5F), id[4])
	require.Equal(t, byte(0xEE), id[5])
	require.Equal(t, byte(0xDE), id[6])
	// High nibble of the number lands in byte 7, low nibble in byte 8.
	require.Equal(t, byte(0x42), id[7])
	require.Equal(t, byte(0x5F), id[8])
	require.Equal(t, byte(0xAD), id[9])
	require.Equal(t, byte(0xE0), id[10])
	require.Equal(t, byte(0x50), id[11])
}

func TestTransportIDStoreAndClear(t *testing.T) {
	session := &Session{number: 1}
	synthesized := session.TransportID()

	custom := []byte{0x05, 0x01, 0x02, 0x03}
	session.SetTransportID(custom)
	require.Equal(t, custom, session.TransportID())

	// The stored value must not alias the caller's slice.
	custom[1] = 0xff
	require.Equal(t, byte(0x01), session.TransportID()[1])

	session.SetTransportID(nil)
	require.Equal(t, synthesized, session.TransportID())
}

func TestTransportIDReturnsCopy(t *testing.T) {
	session := &Session{number: 1}
	session.SetTransportID([]byte{0x05, 0x01})

	id := session.TransportID()
	id[0] = 0xff
	require.Equal(t, byte(0x05), session.TransportID()[0])
}
