package chat

import "fmt"

// UserInputError is returned for a line that looks like a command but is
// not one the session knows.
type UserInputError struct {
	Command string
}

func (e *UserInputError) Error() string {
	return fmt.Sprintf("unknown command: %s (type /help for the command list)", e.Command)
}
