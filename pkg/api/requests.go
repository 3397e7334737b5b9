// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import "encoding/json"

const (
	TypeEmptyResponse  = "EMPTY"
	TypeAddTarget      = "ADDTARGET"
	TypeDeleteTarget   = "DELETETARGET"
	TypeAddSession     = "ADDSESSION"
	TypeDeleteSession  = "DELETESESSION"
	TypeList           = "LIST"
	TypeStats          = "STATS"
	TypeGetVersions    = "GETVERSIONS"
	TypeSetVersions    = "SETVERSIONS"
	TypeGetTransportID = "GETTID"
	TypeSetTransportID = "SETTID"
	TypeAttachUnit     = "ATTACHUNIT"
	TypeDetachUnit     = "DETACHUNIT"
)

type Request struct {
	Type    string          `json:"type"`
	Command json.RawMessage `json:"command"`
}

type AddTargetRequest struct {
	TargetName string `json:"target_name"`
	// Optional initial session, registered atomically with the target.
	SessionName string `json:"session_name,omitempty"`
}

type DeleteTargetRequest struct {
	TargetName string `json:"target_name"`
}

type AddSessionRequest struct {
	TargetName  string `json:"target_name"`
	SessionName string `json:"session_name"`
}

type DeleteSessionRequest struct {
	TargetName  string `json:"target_name"`
	SessionName string `json:"session_name"`
}

type GetVersionsRequest struct {
	TargetName string `json:"target_name"`
}

type SetVersionsRequest struct {
	TargetName           string  `json:"target_name"`
	ScsiTransportVersion *uint16 `json:"scsi_transport_version,omitempty"`
	PhysTransportVersion *uint16 `json:"phys_transport_version,omitempty"`
}

type GetTransportIDRequest struct {
	TargetName  string `json:"target_name"`
	SessionName string `json:"session_name"`
}

type SetTransportIDRequest struct {
	TargetName  string `json:"target_name"`
	SessionName string `json:"session_name"`
	TransportID []byte `json:"transport_id"`
}

type AttachUnitRequest struct {
	TargetName string `json:"target_name"`
	Size       uint64 `json:"size"`
}

type DetachUnitRequest struct {
	TargetName string `json:"target_name"`
	UnitNumber byte   `json:"unit_number"`
}

func ParseRequest(data []byte) (*Request, error) {
	request := &Request{}
	err := json.Unmarshal(data, request)
	if err != nil {
		return nil, err
	}
	return request, nil
}
