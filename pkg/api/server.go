// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"

	"scsibridge/pkg/bridge"
	"scsibridge/pkg/engine"
	"scsibridge/pkg/logger"
)

const DefaultSocketPath = "/tmp/scsibridge.sock"

type DaemonApiServer struct {
	handler       DaemonApiHandler
	socketAddress string
}

func NewApiServer(
	bridgeService *bridge.Bridge,
	targetEngine *engine.LocalEngine,
	socketAddress string,
) *DaemonApiServer {
	if socketAddress == "" {
		socketAddress = DefaultSocketPath
	}
	return &DaemonApiServer{
		handler: DaemonApiHandler{
			bridge: bridgeService,
			engine: targetEngine,
		},
		socketAddress: socketAddress,
	}
}

func (server *DaemonApiServer) HandleConnection(connection net.Conn) {
	log := logger.GetLogger()
	defer func() {
		err := connection.Close()
		if err != nil {
			log.Warnf("connection close: %v", err)
		}
	}()
	reader := bufio.NewReader(connection)
	delimiter := byte('\n')
	requestBytes, err := reader.ReadBytes(delimiter)
	if err != nil {
		log.Warnf("request read: %v", err)
		return
	}
	request, err := ParseRequest(requestBytes[:len(requestBytes)-1])
	if err != nil {
		log.Warnf("request parse: %v", err)
		server.sendResponse(connection, ErrorResponse(err), delimiter)
		return
	}
	response := server.handler.HandleRequest(request)
	server.sendResponse(connection, response, delimiter)
}

func (server *DaemonApiServer) sendResponse(connection net.Conn, response Response, delimiter byte) {
	log := logger.GetLogger()
	response.Error = strings.Replace(response.Error, "\n", `\n`, -1)
	result, err := json.Marshal(response)
	if err != nil {
		log.Errorf("response marshal: %v", err)
		return
	}
	_, err = connection.Write(result)
	if err != nil {
		log.Warnf("response write: %v", err)
		return
	}
	_, err = connection.Write([]byte{delimiter})
	if err != nil {
		log.Warnf("response write: %v", err)
		return
	}
}

// Run serves the management socket until the context is cancelled. The
// listener is torn down from the context watcher, which unblocks Accept.
func (server *DaemonApiServer) Run(ctx context.Context) error {
	log := logger.GetLogger()
	if err := os.RemoveAll(server.socketAddress); err != nil {
		return err
	}
	listener, err := net.Listen("unix", server.socketAddress)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Warnf("listener close: %v", err)
		}
	}()
	log.Infof("management interface listening on %s", server.socketAddress)
	for {
		connection, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go server.HandleConnection(connection)
	}
}
