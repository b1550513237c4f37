package model

import (
	"fmt"
	"strings"
)

// Client commands. Matching is case-sensitive; the protocol is lowercase.
const (
	CmdConnect  = "connect"
	CmdRegister = "register"
	CmdCell     = "cell"
	CmdUndo     = "undo"
)

// Wire error codes.
const (
	ErrCodeIO           = 0 // generic or I/O failure
	ErrCodeCircular     = 1 // edit rejected by circular dependency
	ErrCodeBadCommand   = 2 // unknown or misused command
	ErrCodePrecondition = 3 // wrong state, or nothing to undo
	ErrCodeUsername     = 4 // unknown on connect, duplicate on register
)

// ConnectedLine builds the reply sent right after a successful connect.
// n is the number of cell lines that will follow.
func ConnectedLine(n int) string {
	return fmt.Sprintf("connected %d", n)
}

// CellLine builds one cell broadcast or sync line. The single space after
// the name is always present, so empty contents still frame correctly.
func CellLine(name, contents string) string {
	return "cell " + name + " " + contents
}

// ErrorLine builds an error reply.
func ErrorLine(code int, text string) string {
	return fmt.Sprintf("error %d %s", code, text)
}

// SplitCommand splits a received line into its command token and the
// argument remainder. Only the first space delimits; everything after it
// is returned verbatim.
func SplitCommand(line string) (cmd, args string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

// SplitField splits an argument string into its first field and the
// verbatim trailing remainder, again on the first space only. Cell
// contents and spreadsheet names may therefore contain spaces.
func SplitField(args string) (first, rest string) {
	if i := strings.IndexByte(args, ' '); i >= 0 {
		return args[:i], args[i+1:]
	}
	return args, ""
}
