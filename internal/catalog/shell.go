package catalog

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one simple command found in a script action's command line.
type Command struct {
	Name       string   // Command name (e.g., "rm", "kubectl")
	Args       []string // Command arguments
	Subcommand string   // First non-flag argument (e.g., "apply" in "kubectl apply")
}

// ParseCommand parses a shell command line into the simple commands it runs.
func ParseCommand(command string) ([]Command, error) {
	file, err := parse(command)
	if err != nil {
		return nil, err
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// SplitArgv returns the argv of command when it is a single simple command
// made only of literal words, so it can be executed without a shell. ok is
// false for pipelines, lists, redirections, expansions and the like.
func SplitArgv(command string) (argv []string, ok bool) {
	file, err := parse(command)
	if err != nil || len(file.Stmts) != 1 {
		return nil, false
	}
	stmt := file.Stmts[0]
	if stmt.Negated || stmt.Background || len(stmt.Redirs) > 0 {
		return nil, false
	}
	call, isCall := stmt.Cmd.(*syntax.CallExpr)
	if !isCall || len(call.Assigns) > 0 || len(call.Args) == 0 {
		return nil, false
	}

	for _, word := range call.Args {
		lit, literal := literalWord(word)
		if !literal {
			return nil, false
		}
		argv = append(argv, lit)
	}
	return argv, true
}

func parse(command string) (*syntax.File, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	return file, nil
}

func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}

	return cmd
}

// wordToString renders a word for inspection. Expansions are kept as
// placeholders rather than evaluated.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// literalWord returns the value of a word that contains no expansions.
func literalWord(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			if strings.ContainsAny(p.Value, "*?[~") {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				lit, ok := qp.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// DangerousCommands are commands that destroy or rewrite data. Script actions
// that run them are accepted but logged.
var DangerousCommands = map[string]bool{
	"rm":       true,
	"rmdir":    true,
	"mv":       true,
	"dd":       true,
	"chmod":    true,
	"chown":    true,
	"mkfs":     true,
	"shutdown": true,
	"reboot":   true,
	"kill":     true,
}

// DangerousIn returns the names of dangerous commands used by commands.
func DangerousIn(commands []Command) []string {
	var names []string
	seen := make(map[string]bool)
	for _, cmd := range commands {
		if DangerousCommands[cmd.Name] && !seen[cmd.Name] {
			seen[cmd.Name] = true
			names = append(names, cmd.Name)
		}
	}
	return names
}
