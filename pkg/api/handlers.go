// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"encoding/json"
	"fmt"
	"sync"

	"scsibridge/pkg/bridge"
	"scsibridge/pkg/engine"
)

type DaemonApiHandler struct {
	bridge  *bridge.Bridge
	engine  *engine.LocalEngine
	apiLock sync.Mutex
}

func (handler *DaemonApiHandler) AddTarget(request AddTargetRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	target, err := handler.bridge.AddTarget(request.TargetName)
	if err != nil {
		return err
	}
	if request.SessionName == "" {
		return nil
	}
	if _, err := handler.bridge.AddSession(target, request.SessionName); err != nil {
		// The target must not outlive a failed initial session.
		if removeErr := handler.bridge.RemoveTarget(request.TargetName); removeErr != nil {
			return fmt.Errorf("%v (target cleanup also failed: %v)", err, removeErr)
		}
		return err
	}
	return nil
}

func (handler *DaemonApiHandler) DeleteTarget(request DeleteTargetRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	return handler.bridge.RemoveTarget(request.TargetName)
}

func (handler *DaemonApiHandler) AddSession(request AddSessionRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	target, err := handler.bridge.FindTarget(request.TargetName)
	if err != nil {
		return err
	}
	_, err = handler.bridge.AddSession(target, request.SessionName)
	return err
}

func (handler *DaemonApiHandler) DeleteSession(request DeleteSessionRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	session, err := handler.bridge.FindSession(request.TargetName, request.SessionName)
	if err != nil {
		return err
	}
	return handler.bridge.RemoveSession(session, false)
}

func (handler *DaemonApiHandler) ListTargets() ListResponse {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	response := make(ListResponse)
	for _, target := range handler.bridge.List() {
		targetRepresentation := TargetRepresentation{
			ScsiTransportVersion: target.ScsiTransportVersion,
			PhysTransportVersion: target.PhysTransportVersion,
			Sessions:             make([]SessionRepresentation, len(target.Sessions)),
		}
		for index, session := range target.Sessions {
			targetRepresentation.Sessions[index] = SessionRepresentation{
				Number:        session.Number,
				InitiatorName: session.InitiatorName,
				Unregistering: session.Unregistering,
			}
		}
		response[target.Name] = targetRepresentation
	}
	return response
}

func (handler *DaemonApiHandler) Stats() StatsResponse {
	snapshot := handler.bridge.Stats()
	return StatsResponse{
		Version:      bridge.VersionString(),
		Aborts:       snapshot.Aborts,
		DeviceResets: snapshot.DeviceResets,
		TargetResets: snapshot.TargetResets,
	}
}

func (handler *DaemonApiHandler) GetVersions(request GetVersionsRequest) (*GetVersionsResponse, error) {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	target, err := handler.bridge.FindTarget(request.TargetName)
	if err != nil {
		return nil, err
	}
	return &GetVersionsResponse{
		ScsiTransportVersion: target.ScsiTransportVersion(),
		PhysTransportVersion: target.PhysTransportVersion(),
	}, nil
}

func (handler *DaemonApiHandler) SetVersions(request SetVersionsRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	target, err := handler.bridge.FindTarget(request.TargetName)
	if err != nil {
		return err
	}
	if request.ScsiTransportVersion != nil {
		target.SetScsiTransportVersion(*request.ScsiTransportVersion)
	}
	if request.PhysTransportVersion != nil {
		target.SetPhysTransportVersion(*request.PhysTransportVersion)
	}
	return nil
}

func (handler *DaemonApiHandler) GetTransportID(
	request GetTransportIDRequest,
) (*GetTransportIDResponse, error) {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	session, err := handler.bridge.FindSession(request.TargetName, request.SessionName)
	if err != nil {
		return nil, err
	}
	return &GetTransportIDResponse{TransportID: session.TransportID()}, nil
}

func (handler *DaemonApiHandler) SetTransportID(request SetTransportIDRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	session, err := handler.bridge.FindSession(request.TargetName, request.SessionName)
	if err != nil {
		return err
	}
	session.SetTransportID(request.TransportID)
	return nil
}

func (handler *DaemonApiHandler) AttachUnit(request AttachUnitRequest) (*AttachUnitResponse, error) {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	if _, err := handler.bridge.FindTarget(request.TargetName); err != nil {
		return nil, err
	}
	unitNumber, err := handler.engine.AttachUnit(request.TargetName, request.Size)
	if err != nil {
		return nil, err
	}
	return &AttachUnitResponse{UnitNumber: unitNumber}, nil
}

func (handler *DaemonApiHandler) DetachUnit(request DetachUnitRequest) error {
	handler.apiLock.Lock()
	defer handler.apiLock.Unlock()
	if _, err := handler.bridge.FindTarget(request.TargetName); err != nil {
		return err
	}
	return handler.engine.DetachUnit(request.TargetName, request.UnitNumber)
}

func (handler *DaemonApiHandler) HandleRequest(request *Request) Response {
	response := Response{Type: request.Type}
	switch request.Type {
	case TypeAddTarget:
		command := &AddTargetRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.AddTarget(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	case TypeDeleteTarget:
		command := &DeleteTargetRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.DeleteTarget(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	case TypeAddSession:
		command := &AddSessionRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.AddSession(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	case TypeDeleteSession:
		command := &DeleteSessionRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.DeleteSession(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	case TypeList:
		var err error
		listResult := handler.ListTargets()
		response.Result, err = json.Marshal(listResult)
		if err != nil {
			return ErrorResponse(err)
		}
		return response
	case TypeStats:
		var err error
		response.Result, err = json.Marshal(handler.Stats())
		if err != nil {
			return ErrorResponse(err)
		}
		return response
	case TypeGetVersions:
		command := &GetVersionsRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		result, err := handler.GetVersions(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		response.Result, err = json.Marshal(result)
		if err != nil {
			return ErrorResponse(err)
		}
		return response
	case TypeSetVersions:
		command := &SetVersionsRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.SetVersions(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	case TypeGetTransportID:
		command := &GetTransportIDRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		result, err := handler.GetTransportID(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		response.Result, err = json.Marshal(result)
		if err != nil {
			return ErrorResponse(err)
		}
		return response
	case TypeSetTransportID:
		command := &SetTransportIDRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.SetTransportID(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	case TypeAttachUnit:
		command := &AttachUnitRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		result, err := handler.AttachUnit(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		response.Result, err = json.Marshal(result)
		if err != nil {
			return ErrorResponse(err)
		}
		return response
	case TypeDetachUnit:
		command := &DetachUnitRequest{}
		err := json.Unmarshal(request.Command, command)
		if err != nil {
			return ErrorResponse(err)
		}
		err = handler.DetachUnit(*command)
		if err != nil {
			return ErrorResponse(err)
		}
		return emptyResponse()
	default:
		return ErrorResponse(fmt.Errorf("unknown request type %s", request.Type))
	}
}

func emptyResponse() Response {
	return Response{Error: "", Result: json.RawMessage{'{', '}'}, Type: TypeEmptyResponse}
}

func ErrorResponse(err error) Response {
	return Response{Error: err.Error(), Result: json.RawMessage{'{', '}'}, Type: TypeEmptyResponse}
}
