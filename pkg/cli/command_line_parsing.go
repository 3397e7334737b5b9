// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package cli

import (
	"fmt"
	"strings"
)

type ErrHelpPageRequested struct {
	helpMessage string
}

func (err ErrHelpPageRequested) Error() string {
	return err.helpMessage
}

type ErrCommandNotFound struct {
	commandName string
}

func (err ErrCommandNotFound) Error() string {
	return fmt.Sprintf("unknown command '%s'", err.commandName)
}

type ErrInvalidOption struct {
	option string
}

func (err ErrInvalidOption) Error() string {
	return fmt.Sprintf("invalid option -- '%s'", err.option)
}

type parameter struct {
	value       string
	shortFlag   string
	name        string
	description string
	placeholder string
	required    bool
	set         bool
}

func (param parameter) matches(argument string) bool {
	return strings.HasPrefix(argument, "--"+param.name) ||
		strings.HasPrefix(argument, param.shortFlag)
}

func (param parameter) bareFlag(argument string) bool {
	return argument == "--"+param.name || argument == param.shortFlag
}

func (param parameter) help() string {
	return fmt.Sprintf("    %s/--%s - %s", param.shortFlag, param.name, param.description)
}

func (param parameter) usage() string {
	return fmt.Sprintf("[%s|--%s %s]", param.shortFlag, param.name, param.placeholder)
}

type Command struct {
	name        string
	description string
	parameters  []*parameter
}

func (command *Command) AddParameter(
	short string,
	name string,
	description string,
	placeholder string,
	required bool,
) *Command {
	command.parameters = append(command.parameters, &parameter{
		shortFlag:   short,
		name:        name,
		description: description,
		placeholder: placeholder,
		required:    required,
	})
	return command
}

func (command *Command) GetParameter(parameterName string) (string, error) {
	for _, param := range command.parameters {
		if param.name == parameterName && param.set {
			return param.value, nil
		}
	}
	return "", fmt.Errorf("missing parameter %s", parameterName)
}

// IsSet tells an optional parameter apart from a missing one.
func (command *Command) IsSet(parameterName string) bool {
	for _, param := range command.parameters {
		if param.name == parameterName {
			return param.set
		}
	}
	return false
}

func (command *Command) findParameter(argument string) *parameter {
	for _, param := range command.parameters {
		if param.set {
			continue
		}
		if param.matches(argument) {
			return param
		}
	}
	return nil
}

func (command *Command) usage() string {
	usages := make([]string, 0, len(command.parameters)+1)
	usages = append(usages, command.name)
	for _, param := range command.parameters {
		usages = append(usages, param.usage())
	}
	return strings.Join(usages, " ")
}

func (command *Command) Help() string {
	if len(command.parameters) == 0 {
		return command.description + "\n"
	}
	helps := make([]string, 0, len(command.parameters))
	for _, param := range command.parameters {
		helps = append(helps, param.help())
	}
	return fmt.Sprintf("%s\n  Options:\n%s", command.description, strings.Join(helps, "\n"))
}

// ParseArgs consumes "--name value", "-n value" and "--name=value" forms.
func (command *Command) ParseArgs(args []string) error {
	var pending *parameter
	for index, argument := range args {
		if index == 0 && (argument == "--help" || argument == "-h") {
			return &ErrHelpPageRequested{helpMessage: command.Help()}
		}
		if pending != nil {
			pending.value = argument
			pending.set = true
			pending = nil
			continue
		}
		param := command.findParameter(argument)
		if param == nil {
			return &ErrInvalidOption{option: argument}
		}
		if param.bareFlag(argument) {
			pending = param
			continue
		}
		nameValuePair := strings.SplitN(argument, "=", 2)
		if len(nameValuePair) != 2 {
			continue
		}
		param.value = nameValuePair[1]
		param.set = true
	}
	missing := ""
	for _, param := range command.parameters {
		if param.required && !param.set {
			missing += "Missing parameter:\n" + param.help() + "\n"
		}
	}
	if missing != "" {
		return fmt.Errorf("%s", missing)
	}
	return nil
}

type CommandList struct {
	name        string
	description string
	commands    map[string]*Command
	// set once Parse succeeds
	currentCommandName string
}

func NewCommandList(name, description string) *CommandList {
	return &CommandList{
		name:        name,
		description: description,
		commands:    make(map[string]*Command),
	}
}

func (cmdList *CommandList) AddCommand(name, description string) *Command {
	command := &Command{name: name, description: description}
	cmdList.commands[name] = command
	return command
}

func (cmdList *CommandList) GetCommand(name string) (*Command, bool) {
	command, ok := cmdList.commands[name]
	return command, ok
}

func (cmdList *CommandList) Help() string {
	usages := make([]string, 0, len(cmdList.commands))
	descriptions := make([]string, 0, len(cmdList.commands))
	for name, command := range cmdList.commands {
		usages = append(usages, fmt.Sprintf("%s %s", cmdList.name, command.usage()))
		descriptions = append(descriptions, fmt.Sprintf("* '%s': %s", name, command.Help()))
	}
	return fmt.Sprintf("%s - %s", cmdList.name, cmdList.description) +
		"\nUsage:\n" + strings.Join(usages, "\n") +
		"\n\nSupported commands:\n" + strings.Join(descriptions, "\n\n")
}

func (cmdList *CommandList) Parse(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("wrong command list received")
	}
	commandName := args[1]
	command, ok := cmdList.GetCommand(commandName)
	if !ok {
		if commandName == "--help" || commandName == "help" || commandName == "-h" {
			return &ErrHelpPageRequested{helpMessage: cmdList.Help()}
		}
		return &ErrCommandNotFound{commandName: commandName}
	}
	if err := command.ParseArgs(args[2:]); err != nil {
		return err
	}
	cmdList.currentCommandName = commandName
	return nil
}

func (cmdList *CommandList) GetCurrentCommand() (string, *Command) {
	if cmdList.currentCommandName == "" {
		return "", nil
	}
	command, ok := cmdList.GetCommand(cmdList.currentCommandName)
	if !ok {
		return "", nil
	}
	return cmdList.currentCommandName, command
}
