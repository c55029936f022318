package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommandState is the lifecycle state of an administrative system command.
type CommandState string

const (
	CommandInProgress CommandState = "COMMAND_IN_PROGRESS"
	CommandComplete   CommandState = "COMMAND_COMPLETE"
	CommandFailed     CommandState = "COMMAND_FAILED"
)

// Terminal reports whether the command has finished, successfully or not.
func (s CommandState) Terminal() bool {
	return s == CommandComplete || s == CommandFailed
}

// CommandStatus is the pollable status of a dispatched system command.
type CommandStatus struct {
	CommandID uuid.UUID    `json:"commandId"`
	Name      string       `json:"name"`
	State     CommandState `json:"state"`
	Message   string       `json:"message"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
