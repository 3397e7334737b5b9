// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"encoding/json"
	"fmt"
)

type Response struct {
	Type   string
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type SessionRepresentation struct {
	Number        int64  `json:"number"`
	InitiatorName string `json:"initiator_name"`
	Unregistering bool   `json:"unregistering"`
}

type TargetRepresentation struct {
	ScsiTransportVersion uint16                  `json:"scsi_transport_version"`
	PhysTransportVersion uint16                  `json:"phys_transport_version"`
	Sessions             []SessionRepresentation `json:"sessions"`
}

type ListResponse map[string]TargetRepresentation

func (response ListResponse) ToCmdlineOutput() string {
	result := ""
	result += "Listed targets: \n"
	for targetName, targetRepresentation := range response {
		result += fmt.Sprintf("  Target: %s\n", targetName)
		result += fmt.Sprintf("  SCSI transport version: 0x%04x\n",
			targetRepresentation.ScsiTransportVersion)
		result += fmt.Sprintf("  Phys transport version: 0x%04x\n",
			targetRepresentation.PhysTransportVersion)
		result += "  Sessions: \n"
		for _, session := range targetRepresentation.Sessions {
			result += fmt.Sprintf("    - Session: %d\n", session.Number)
			result += fmt.Sprintf("      Initiator: %s\n", session.InitiatorName)
			if session.Unregistering {
				result += "      State: unregistering\n"
			}
		}
	}
	return result
}

type StatsResponse struct {
	Version      string `json:"version"`
	Aborts       uint64 `json:"aborts"`
	DeviceResets uint64 `json:"device_resets"`
	TargetResets uint64 `json:"target_resets"`
}

func (response StatsResponse) ToCmdlineOutput() string {
	return fmt.Sprintf(
		"%s\nAborts: %d\nDevice resets: %d\nTarget resets: %d",
		response.Version,
		response.Aborts,
		response.DeviceResets,
		response.TargetResets,
	)
}

type GetVersionsResponse struct {
	ScsiTransportVersion uint16 `json:"scsi_transport_version"`
	PhysTransportVersion uint16 `json:"phys_transport_version"`
}

func (response GetVersionsResponse) ToCmdlineOutput() string {
	return fmt.Sprintf(
		"SCSI transport version: 0x%04x\nPhys transport version: 0x%04x",
		response.ScsiTransportVersion,
		response.PhysTransportVersion,
	)
}

type GetTransportIDResponse struct {
	TransportID []byte `json:"transport_id"`
}

func (response GetTransportIDResponse) ToCmdlineOutput() string {
	return fmt.Sprintf("Transport ID: %x", response.TransportID)
}

type AttachUnitResponse struct {
	UnitNumber byte `json:"unit_number"`
}

func (response AttachUnitResponse) ToCmdlineOutput() string {
	return fmt.Sprintf("Successfully attached unit at lun %d", response.UnitNumber)
}
