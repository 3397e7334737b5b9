// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

type ErrApiRequestFailed struct {
	errorMessage string
}

func (apiErr ErrApiRequestFailed) Error() string {
	return strings.Replace(
		apiErr.errorMessage, `\n`, "\n", -1)
}

type ErrUnexpectedResponseType struct {
	responseType string
}

func (err ErrUnexpectedResponseType) Error() string {
	return fmt.Sprintf("Unknown response type %s", err.responseType)
}

func unmarshal[T any](response *Response) (*T, error) {
	result := new(T)
	err := json.Unmarshal(response.Result, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type ClientRequester struct {
	socketPath string
}

func NewApiRequester(socketPath string) ClientRequester {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return ClientRequester{
		socketPath: socketPath,
	}
}

func (api ClientRequester) performUnixSocketRequest(data []byte) ([]byte, error) {
	connection, err := net.Dial("unix", api.socketPath)
	if err != nil {
		return nil, err
	}
	_, err = connection.Write(data)
	if err != nil {
		return nil, err
	}
	_, err = connection.Write([]byte("\n"))
	if err != nil {
		return nil, err
	}
	reader := bufio.NewReader(connection)
	delimiter := byte('\n')
	responseBytes, err := reader.ReadBytes(delimiter)
	return responseBytes, err
}

func (api ClientRequester) request(request Request) (*Response, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	responseBytes, err := api.performUnixSocketRequest(data)
	if err != nil {
		return nil, err
	}
	response := &Response{}
	err = json.Unmarshal(responseBytes, response)
	if err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, &ErrApiRequestFailed{errorMessage: response.Error}
	}
	return response, nil
}

func specificRequest[ReqType, RespType any](
	api ClientRequester,
	command ReqType,
	typeName string,
) (*RespType, error) {
	jsonCommand, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}
	request := Request{Type: typeName, Command: jsonCommand}
	response, err := api.request(request)
	if err != nil {
		return nil, err
	}
	if response.Type != typeName {
		return nil, &ErrUnexpectedResponseType{responseType: response.Type}
	}
	return unmarshal[RespType](response)
}

func emptyResponseRequest[ReqType any](
	api ClientRequester,
	command ReqType,
	typeName string,
) error {
	jsonCommand, err := json.Marshal(command)
	if err != nil {
		return err
	}
	request := Request{Type: typeName, Command: jsonCommand}
	response, err := api.request(request)
	if err != nil {
		return err
	}
	if response.Type != TypeEmptyResponse {
		return &ErrUnexpectedResponseType{responseType: response.Type}
	}
	return nil
}

func (api ClientRequester) PerformAddTarget(targetName, sessionName string) error {
	command := AddTargetRequest{
		TargetName:  targetName,
		SessionName: sessionName,
	}
	return emptyResponseRequest[AddTargetRequest](
		api,
		command,
		TypeAddTarget,
	)
}

func (api ClientRequester) PerformDeleteTarget(targetName string) error {
	command := DeleteTargetRequest{
		TargetName: targetName,
	}
	return emptyResponseRequest[DeleteTargetRequest](
		api,
		command,
		TypeDeleteTarget,
	)
}

func (api ClientRequester) PerformAddSession(targetName, sessionName string) error {
	command := AddSessionRequest{
		TargetName:  targetName,
		SessionName: sessionName,
	}
	return emptyResponseRequest[AddSessionRequest](
		api,
		command,
		TypeAddSession,
	)
}

func (api ClientRequester) PerformDeleteSession(targetName, sessionName string) error {
	command := DeleteSessionRequest{
		TargetName:  targetName,
		SessionName: sessionName,
	}
	return emptyResponseRequest[DeleteSessionRequest](
		api,
		command,
		TypeDeleteSession,
	)
}

func (api ClientRequester) PerformList() (*ListResponse, error) {
	request := Request{Type: TypeList, Command: json.RawMessage{'{', '}'}}
	response, err := api.request(request)
	if err != nil {
		return nil, err
	}
	if response.Type != TypeList {
		return nil, &ErrUnexpectedResponseType{responseType: response.Type}
	}
	return unmarshal[ListResponse](response)
}

func (api ClientRequester) PerformStats() (*StatsResponse, error) {
	request := Request{Type: TypeStats, Command: json.RawMessage{'{', '}'}}
	response, err := api.request(request)
	if err != nil {
		return nil, err
	}
	if response.Type != TypeStats {
		return nil, &ErrUnexpectedResponseType{responseType: response.Type}
	}
	return unmarshal[StatsResponse](response)
}

func (api ClientRequester) PerformGetVersions(targetName string) (*GetVersionsResponse, error) {
	command := GetVersionsRequest{
		TargetName: targetName,
	}
	return specificRequest[GetVersionsRequest, GetVersionsResponse](
		api,
		command,
		TypeGetVersions,
	)
}

func (api ClientRequester) PerformSetVersions(
	targetName string,
	scsiVersion *uint16,
	physVersion *uint16,
) error {
	command := SetVersionsRequest{
		TargetName:           targetName,
		ScsiTransportVersion: scsiVersion,
		PhysTransportVersion: physVersion,
	}
	return emptyResponseRequest[SetVersionsRequest](
		api,
		command,
		TypeSetVersions,
	)
}

func (api ClientRequester) PerformGetTransportID(
	targetName string,
	sessionName string,
) (*GetTransportIDResponse, error) {
	command := GetTransportIDRequest{
		TargetName:  targetName,
		SessionName: sessionName,
	}
	return specificRequest[GetTransportIDRequest, GetTransportIDResponse](
		api,
		command,
		TypeGetTransportID,
	)
}

func (api ClientRequester) PerformSetTransportID(
	targetName string,
	sessionName string,
	transportID []byte,
) error {
	command := SetTransportIDRequest{
		TargetName:  targetName,
		SessionName: sessionName,
		TransportID: transportID,
	}
	return emptyResponseRequest[SetTransportIDRequest](
		api,
		command,
		TypeSetTransportID,
	)
}

func (api ClientRequester) PerformAttachUnit(
	targetName string,
	size uint64,
) (*AttachUnitResponse, error) {
	command := AttachUnitRequest{
		TargetName: targetName,
		Size:       size,
	}
	return specificRequest[AttachUnitRequest, AttachUnitResponse](
		api,
		command,
		TypeAttachUnit,
	)
}

func (api ClientRequester) PerformDetachUnit(targetName string, unitNumber int) error {
	if unitNumber > 0xff {
		return fmt.Errorf("unit number must be < 256")
	}
	command := DetachUnitRequest{
		TargetName: targetName,
		UnitNumber: byte(unitNumber),
	}
	return emptyResponseRequest[DetachUnitRequest](
		api,
		command,
		TypeDetachUnit,
	)
}
