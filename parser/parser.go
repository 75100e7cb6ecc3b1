// Package parser reads the TXT01 line protocol: newline-delimited values
// pushed onto a stack, terminated by a command word that consumes them.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValueType represents the type of a value on the stack.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
)

// Value is one argument pushed before a command.
type Value struct {
	Type ValueType
	Str  string
	Int  int64
}

// Command is a parsed command with its argument stack.
type Command struct {
	Name string
	Args []Value
}

// Parser parses commands from a TXT01 stream.
type Parser struct {
	reader  *bufio.Reader
	header  string
	version string
}

// NewParser validates the 5-byte stream header and returns a parser.
func NewParser(reader io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(reader),
	}

	headerBytes := make([]byte, 5)
	if n, err := io.ReadFull(p.reader, headerBytes); err != nil || n != 5 {
		return nil, fmt.Errorf("invalid header")
	}

	p.header = string(headerBytes[:3])
	p.version = string(headerBytes[3:5])

	if p.header != "TXT" {
		return nil, fmt.Errorf("unsupported format: %s", p.header)
	}

	return p, nil
}

// ParseCommand reads values until a command word arrives, then returns
// the command with the accumulated stack.
func (p *Parser) ParseCommand() (*Command, error) {
	stack := make([]Value, 0)

	for {
		line, err := p.reader.ReadString('\n')
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if cmd := parseCommand(line); cmd != "" {
			return &Command{
				Name: cmd,
				Args: stack,
			}, nil
		}

		value, err := parseValue(line)
		if err != nil {
			return nil, fmt.Errorf("parse error: %v", err)
		}
		stack = append(stack, value)
	}
}

func parseCommand(line string) string {
	// search takes a string query, run a string id, limit an int;
	// list, rescan and stats take no arguments.
	commands := []string{
		"search",
		"list",
		"run",
		"rescan",
		"stats",
		"limit",
	}

	for _, cmd := range commands {
		if line == cmd {
			return cmd
		}
	}

	return ""
}

func parseValue(line string) (Value, error) {
	// String values carry a leading quote, which also protects queries
	// that happen to spell a command word.
	if after, ok := strings.CutPrefix(line, `"`); ok {
		return Value{Type: TypeString, Str: after}, nil
	}

	if intVal, err := strconv.ParseInt(line, 10, 64); err == nil {
		return Value{Type: TypeInt, Int: intVal}, nil
	}

	return Value{}, fmt.Errorf("cannot parse value: %s", line)
}

// ReadAllCommands drains the stream.
func (p *Parser) ReadAllCommands() ([]*Command, error) {
	var commands []*Command

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}
