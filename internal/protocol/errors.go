package protocol

import "fmt"

// ParseError reports a line that is not a valid command: an unknown opcode,
// fewer fields than the opcode requires, or an embedded newline.
type ParseError struct {
	// Input is the offending line with its terminator removed.
	Input string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: cannot parse command %q", e.Input)
}
