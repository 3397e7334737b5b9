// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"scsibridge/pkg/api"
	"scsibridge/pkg/cli"
)

const (
	CommandAddTarget     = "addtarget"
	CommandDeleteTarget  = "deletetarget"
	CommandAddSession    = "addsession"
	CommandDeleteSession = "deletesession"
	CommandListTargets   = "list"
	CommandStats         = "stats"
	CommandGetVersions   = "getversions"
	CommandSetVersions   = "setversions"
	CommandGetTid        = "gettid"
	CommandSetTid        = "settid"
	CommandAttachUnit    = "attachunit"
	CommandDetachUnit    = "detachunit"
)

type Client struct {
	client   api.ClientRequester
	commands *cli.CommandList
}

func addTargetCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandAddTarget,
		"Create new target if not exists."+
			" If exists - fails.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-s",
		"session_name",
		"optional initial session registered with the target",
		"session name",
		false,
	)
}

func deleteTargetCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandDeleteTarget,
		"Delete target together with all its sessions.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	)
}

func addSessionCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandAddSession,
		"Register a session on an existing target.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-s",
		"session_name",
		"string initiator name of the session",
		"session name",
		true,
	)
}

func deleteSessionCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandDeleteSession,
		"Unregister a session from a target.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-s",
		"session_name",
		"string initiator name of the session",
		"session name",
		true,
	)
}

func listCli(commands *cli.CommandList) {
	commands.AddCommand(CommandListTargets, "List all targets with sessions")
}

func statsCli(commands *cli.CommandList) {
	commands.AddCommand(CommandStats, "Show daemon version and task management counters")
}

func getVersionsCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandGetVersions,
		"Show transport version descriptors of a target.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	)
}

func setVersionsCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandSetVersions,
		"Override transport version descriptors of a target.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-v",
		"scsi_version",
		"16 bit SCSI transport version, hex or decimal",
		"version",
		false,
	).AddParameter(
		"-p",
		"phys_version",
		"16 bit physical transport version, hex or decimal",
		"version",
		false,
	)
}

func getTidCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandGetTid,
		"Show the transport identifier of a session.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-s",
		"session_name",
		"string initiator name of the session",
		"session name",
		true,
	)
}

func setTidCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandSetTid,
		"Replace the transport identifier of a session."+
			" An empty value restores the synthesized one.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-s",
		"session_name",
		"string initiator name of the session",
		"session name",
		true,
	).AddParameter(
		"-i",
		"transport_id",
		"hex encoded transport identifier bytes",
		"hex bytes",
		false,
	)
}

func attachUnitCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandAttachUnit,
		"Attach a memory backed logical unit to a target.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-z",
		"size",
		"integer unit size in bytes, block aligned",
		"size",
		true,
	)
}

func detachUnitCli(commands *cli.CommandList) {
	commands.AddCommand(
		CommandDetachUnit,
		"Detach a logical unit from a target by number.",
	).AddParameter(
		"-t",
		"target_name",
		"string target name",
		"target name",
		true,
	).AddParameter(
		"-u",
		"unit_number",
		"integer number of the logical unit",
		"unit number",
		true,
	)
}

func NewClient() Client {
	commands := cli.NewCommandList(
		"scsibridgeadm",
		"a tool to communicate with "+
			"the scsibridge daemon\n",
	)
	addTargetCli(commands)
	deleteTargetCli(commands)
	addSessionCli(commands)
	deleteSessionCli(commands)
	listCli(commands)
	statsCli(commands)
	getVersionsCli(commands)
	setVersionsCli(commands)
	getTidCli(commands)
	setTidCli(commands)
	attachUnitCli(commands)
	detachUnitCli(commands)
	return Client{
		client:   api.NewApiRequester(os.Getenv("SCSIBRIDGE_SOCKET")),
		commands: commands,
	}
}

func (client Client) PerformAddTarget(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	sessionName := ""
	if command.IsSet("session_name") {
		sessionName, _ = command.GetParameter("session_name")
	}
	return client.client.PerformAddTarget(targetName, sessionName)
}

func (client Client) PerformDeleteTarget(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	return client.client.PerformDeleteTarget(targetName)
}

func (client Client) PerformAddSession(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	sessionName, err := command.GetParameter("session_name")
	if err != nil {
		return err
	}
	return client.client.PerformAddSession(targetName, sessionName)
}

func (client Client) PerformDeleteSession(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	sessionName, err := command.GetParameter("session_name")
	if err != nil {
		return err
	}
	return client.client.PerformDeleteSession(targetName, sessionName)
}

func (client Client) PerformList() error {
	response, err := client.client.PerformList()
	if err != nil {
		return err
	}
	fmt.Println(response.ToCmdlineOutput())
	return nil
}

func (client Client) PerformStats() error {
	response, err := client.client.PerformStats()
	if err != nil {
		return err
	}
	fmt.Println(response.ToCmdlineOutput())
	return nil
}

func (client Client) PerformGetVersions(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	response, err := client.client.PerformGetVersions(targetName)
	if err != nil {
		return err
	}
	fmt.Println(response.ToCmdlineOutput())
	return nil
}

func parseVersion(command *cli.Command, parameterName string) (*uint16, error) {
	if !command.IsSet(parameterName) {
		return nil, nil
	}
	raw, err := command.GetParameter(parameterName)
	if err != nil {
		return nil, err
	}
	value, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("%s must be a 16 bit number, '%s' received",
			parameterName, raw)
	}
	version := uint16(value)
	return &version, nil
}

func (client Client) PerformSetVersions(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	scsiVersion, err := parseVersion(command, "scsi_version")
	if err != nil {
		return err
	}
	physVersion, err := parseVersion(command, "phys_version")
	if err != nil {
		return err
	}
	if scsiVersion == nil && physVersion == nil {
		return fmt.Errorf("nothing to set, pass at least one version")
	}
	return client.client.PerformSetVersions(targetName, scsiVersion, physVersion)
}

func (client Client) PerformGetTid(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	sessionName, err := command.GetParameter("session_name")
	if err != nil {
		return err
	}
	response, err := client.client.PerformGetTransportID(targetName, sessionName)
	if err != nil {
		return err
	}
	fmt.Println(response.ToCmdlineOutput())
	return nil
}

func (client Client) PerformSetTid(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	sessionName, err := command.GetParameter("session_name")
	if err != nil {
		return err
	}
	var transportID []byte
	if command.IsSet("transport_id") {
		raw, _ := command.GetParameter("transport_id")
		transportID, err = hex.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("transport_id must be hex encoded, '%s' received", raw)
		}
	}
	return client.client.PerformSetTransportID(targetName, sessionName, transportID)
}

func (client Client) PerformAttachUnit(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	sizeStr, err := command.GetParameter("size")
	if err != nil {
		return err
	}
	size, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return fmt.Errorf("size must be int, '%s' received", sizeStr)
	}
	response, err := client.client.PerformAttachUnit(targetName, size)
	if err != nil {
		return err
	}
	fmt.Println(response.ToCmdlineOutput())
	return nil
}

func (client Client) PerformDetachUnit(command *cli.Command) error {
	targetName, err := command.GetParameter("target_name")
	if err != nil {
		return err
	}
	unitStr, err := command.GetParameter("unit_number")
	if err != nil {
		return err
	}
	unitNumber, err := strconv.Atoi(unitStr)
	if err != nil {
		return fmt.Errorf("unit number must be int, '%s' received", unitStr)
	}
	return client.client.PerformDetachUnit(targetName, unitNumber)
}

func (client Client) PerformCommand() error {
	commandName, command := client.commands.GetCurrentCommand()
	if command == nil {
		return fmt.Errorf(
			"command is nil, probably an" +
				" implementation issue of command line arguments parsing",
		)
	}
	switch commandName {
	case CommandAddTarget:
		return client.PerformAddTarget(command)
	case CommandDeleteTarget:
		return client.PerformDeleteTarget(command)
	case CommandAddSession:
		return client.PerformAddSession(command)
	case CommandDeleteSession:
		return client.PerformDeleteSession(command)
	case CommandListTargets:
		return client.PerformList()
	case CommandStats:
		return client.PerformStats()
	case CommandGetVersions:
		return client.PerformGetVersions(command)
	case CommandSetVersions:
		return client.PerformSetVersions(command)
	case CommandGetTid:
		return client.PerformGetTid(command)
	case CommandSetTid:
		return client.PerformSetTid(command)
	case CommandAttachUnit:
		return client.PerformAttachUnit(command)
	case CommandDetachUnit:
		return client.PerformDetachUnit(command)
	case "":
		return fmt.Errorf("received empty command type name")
	default:
		return fmt.Errorf("unknown command name %s", commandName)
	}
}

func main() {
	client := NewClient()
	err := client.commands.Parse(os.Args)
	if err != nil {
		if helpCmd, ok := err.(*cli.ErrHelpPageRequested); ok {
			fmt.Println(helpCmd)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	err = client.PerformCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
