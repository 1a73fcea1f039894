package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	mcpbridge "github.com/appsecco/mcpbridge"
)

// session drives the interactive menu: pick a server, browse its tools,
// call them with schema-guided prompts. All input comes through a single
// scanner so the session behaves the same on a terminal and under test.
type session struct {
	client mcpbridge.Client
	cfg    *mcpbridge.Config
	in     *bufio.Scanner
	out    io.Writer
}

func newSession(client mcpbridge.Client, cfg *mcpbridge.Config, in io.Reader, out io.Writer) *session {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	return &session{client: client, cfg: cfg, in: scanner, out: out}
}

func (s *session) run(ctx context.Context) error {
	defer printFooter(s.out)

	name, ok := s.selectServer()
	if !ok {
		return nil
	}
	if err := s.connect(ctx, name); err != nil {
		return err
	}
	s.printTools(s.client.Tools())

	for {
		s.printMenu()
		choice, ok := s.prompt("Enter your choice (1-5): ")
		if !ok {
			return nil
		}
		switch choice {
		case "1":
			s.callTool(ctx)
		case "2":
			tools, err := s.client.ListTools(ctx)
			if err != nil {
				s.printError(err)
				continue
			}
			s.printTools(tools)
		case "3":
			name, ok := s.selectServer()
			if !ok {
				return nil
			}
			if err := s.connect(ctx, name); err != nil {
				return err
			}
			s.printTools(s.client.Tools())
		case "4", "q", "quit", "exit":
			return nil
		case "5":
			printAbout(s.out)
		default:
			fmt.Fprintln(s.out, errorStyle.Render("Invalid choice. Please enter 1-5."))
		}
	}
}

func (s *session) printMenu() {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, faintStyle.Render(strings.Repeat("-", 60)))
	fmt.Fprintln(s.out, headingStyle.Render("MCP Bridge"))
	fmt.Fprintln(s.out, "Choose an option:")
	fmt.Fprintln(s.out, "  1. Call a tool")
	fmt.Fprintln(s.out, "  2. List tools again")
	fmt.Fprintln(s.out, "  3. Switch server")
	fmt.Fprintln(s.out, "  4. Exit")
	fmt.Fprintln(s.out, "  5. About")
}

func (s *session) selectServer() (string, bool) {
	names := s.cfg.Servers()
	fmt.Fprintln(s.out, headingStyle.Render("Configured MCP servers"))
	for i, name := range names {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, name)
	}
	index, ok := s.promptIndex(fmt.Sprintf("Select server (1-%d): ", len(names)), len(names))
	if !ok {
		return "", false
	}
	return names[index], true
}

func (s *session) connect(ctx context.Context, name string) error {
	fmt.Fprintf(s.out, "\nStarting %s...\n", labelStyle.Render(name))
	if err := s.client.Connect(ctx, name); err != nil {
		return fmt.Errorf("connect to %s: %w", name, err)
	}
	if info := s.client.ServerInfo(); info != nil {
		fmt.Fprintf(s.out, "%s %s\n", okStyle.Render("Connected:"),
			fmt.Sprintf("%s %s", info.ServerInfo.Name, info.ServerInfo.Version))
	}
	if url := s.client.RelayURL(); url != "" {
		fmt.Fprintf(s.out, "%s %s %s\n", okStyle.Render("Relay:"), url,
			faintStyle.Render("(point your proxy's target here)"))
	}
	return nil
}

func (s *session) printTools(tools []mcpbridge.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(s.out, warnStyle.Render("Server reported no tools."))
		return
	}
	fmt.Fprintf(s.out, "\n%s\n", headingStyle.Render(fmt.Sprintf("Available tools (%d)", len(tools))))
	for i, tool := range tools {
		description := tool.Description
		if description == "" {
			description = "no description"
		}
		fmt.Fprintf(s.out, "  %d. %s  %s\n", i+1, labelStyle.Render(tool.Name), faintStyle.Render(description))
	}
}

func (s *session) callTool(ctx context.Context) {
	tools := s.client.Tools()
	if len(tools) == 0 {
		fmt.Fprintln(s.out, warnStyle.Render("No tools available on this server."))
		return
	}
	s.printTools(tools)
	index, ok := s.promptIndex(fmt.Sprintf("Enter tool number (1-%d): ", len(tools)), len(tools))
	if !ok {
		return
	}
	tool := tools[index]

	fmt.Fprintf(s.out, "\n%s %s\n", headingStyle.Render("Calling tool:"), tool.Name)
	if tool.Description != "" {
		fmt.Fprintln(s.out, faintStyle.Render(tool.Description))
	}
	arguments, ok := s.promptArguments(tool)
	if !ok {
		return
	}

	fmt.Fprintf(s.out, "\nCalling %s with arguments:\n", tool.Name)
	s.printJSON(arguments)
	result, err := s.client.CallTool(ctx, tool.Name, arguments)
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, okStyle.Render("\nTool call successful:"))
	s.printJSON(result)
}

// promptArguments walks the tool's input schema: required parameters first
// in schema order, then the optional ones alphabetically. Returns false
// when input ends or a required value is withheld.
func (s *session) promptArguments(tool mcpbridge.Tool) (map[string]any, bool) {
	arguments := map[string]any{}
	schema := tool.InputSchema
	if schema == nil || len(schema.Properties) == 0 {
		return arguments, true
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	for _, name := range schema.Required {
		property, ok := schema.Properties[name]
		if !ok {
			continue
		}
		value, ok := s.promptValue(name, property, true)
		if !ok {
			return nil, false
		}
		arguments[name] = value
	}

	optional := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	for _, name := range optional {
		value, ok := s.promptValue(name, schema.Properties[name], false)
		if !ok {
			return nil, false
		}
		if value != nil {
			arguments[name] = value
		}
	}
	return arguments, true
}

// promptValue asks for a single parameter and coerces the answer to the
// schema's declared type, re-asking on unparseable input. An empty answer
// means abort for required parameters and skip (nil) for optional ones.
func (s *session) promptValue(name string, property *jsonschema.Schema, isRequired bool) (any, bool) {
	schemaType := "string"
	description := ""
	if property != nil {
		if property.Type != "" {
			schemaType = property.Type
		}
		description = property.Description
	}

	kind := "Optional"
	hint := " (or press Enter to skip)"
	if isRequired {
		kind = "Required"
		hint = ""
	}
	fmt.Fprintf(s.out, "\n%s parameter: %s (%s)\n", kind, labelStyle.Render(name), schemaType)
	if description != "" {
		fmt.Fprintln(s.out, faintStyle.Render(description))
	}

	for {
		raw, ok := s.prompt(fmt.Sprintf("Enter value for %s%s: ", name, hint))
		if !ok {
			return nil, false
		}
		if raw == "" {
			if isRequired {
				fmt.Fprintln(s.out, errorStyle.Render(name+" is required"))
				return nil, false
			}
			return nil, true
		}
		value, err := coerceArgument(raw, schemaType)
		if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
			continue
		}
		return value, true
	}
}

// coerceArgument converts the raw prompt answer into the JSON value the
// schema asks for. Array and object parameters are entered as JSON text.
func coerceArgument(raw, schemaType string) (any, error) {
	switch schemaType {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean (use true or false)", raw)
		}
		return b, nil
	case "array", "object":
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("%s values must be valid JSON: %v", schemaType, err)
		}
		return value, nil
	default:
		return raw, nil
	}
}

// promptIndex keeps asking until it gets a number in [1, limit] and returns
// it zero-based. False means the input stream ended.
func (s *session) promptIndex(label string, limit int) (int, bool) {
	for {
		raw, ok := s.prompt(label)
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render("Please enter a valid number."))
			continue
		}
		if n < 1 || n > limit {
			fmt.Fprintln(s.out, errorStyle.Render(fmt.Sprintf("Please enter a number between 1 and %d.", limit)))
			continue
		}
		return n - 1, true
	}
}

func (s *session) prompt(label string) (string, bool) {
	fmt.Fprint(s.out, label)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *session) printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "%v\n", value)
		return
	}
	fmt.Fprintln(s.out, string(data))
}

func (s *session) printError(err error) {
	fmt.Fprintln(s.out, errorStyle.Render("Error: "+err.Error()))
}
