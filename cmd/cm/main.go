// This file is part of Coreminer.
//
// Coreminer is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Coreminer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Coreminer.  If not, see <https://www.gnu.org/licenses/>.

// Command cm is the interactive line-oriented debugger shell. It parses one
// command per line, builds the matching debugger.Status, dispatches it
// through a debugger.Facade, and prints the resulting Feedback. Per spec.md
// §1's CLI UX non-goal, presentation here is deliberately plain; all
// semantics live in debugger.Facade and below.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/config"
	"github.com/TalpaLabs/coreminer/debugger"
	"github.com/TalpaLabs/coreminer/plugin"
)

var knownHooks = map[string]plugin.Hook{
	"sigtrap-guard": debugger.SigtrapGuard{},
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	facade := debugger.NewFacade()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cm:", err)
			os.Exit(1)
		}
		for _, p := range cfg.Plugins {
			hook, ok := knownHooks[p.ID]
			if !ok {
				fmt.Fprintf(os.Stderr, "cm: unknown plugin id %q\n", p.ID)
				os.Exit(1)
			}
			facade.Plugins().Register(hook)
			facade.Plugins().SetEnabled(p.ID, p.EnabledOrDefault())
		}
	}

	exitCode := repl(facade, os.Stdin, os.Stdout)
	os.Exit(exitCode)
}

// repl reads commands from in, one per line, until EOF or a quit command,
// printing feedback to out. Its return value is the process exit code.
func repl(facade *debugger.Facade, in io.Reader, out io.Writer) int {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "(cm) ")
		if !scanner.Scan() {
			return 0
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		st, quit, err := parseCommand(fields)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		if st == nil {
			if quit {
				return 0
			}
			continue
		}

		fb := facade.Dispatch(st)
		printFeedback(out, fb)
		if fb.Tag == debugger.FeedbackExit {
			return fb.ExitCode
		}
	}
}

// parseCommand turns one tokenized line into a Status. A nil Status with
// quit true means the shell should exit cleanly without dispatching
// anything; a nil Status with quit false means the line was handled locally
// (help) and nothing should be dispatched. The q/quit/exit commands are
// dispatched as a Quit Status, whose Exit feedback ends the shell.
func parseCommand(fields []string) (*debugger.Status, bool, error) {
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "run":
		if len(args) < 1 {
			return nil, false, fmt.Errorf("usage: run <path> [args...]")
		}
		return &debugger.Status{Tag: debugger.TagRun, Path: args[0], Args: args[1:]}, false, nil

	case "c", "cont":
		return &debugger.Status{Tag: debugger.TagContinue}, false, nil

	case "s", "step":
		return &debugger.Status{Tag: debugger.TagStep}, false, nil

	case "si":
		return &debugger.Status{Tag: debugger.TagStepIn}, false, nil

	case "su", "sov":
		return &debugger.Status{Tag: debugger.TagStepOver}, false, nil

	case "so":
		return &debugger.Status{Tag: debugger.TagStepOut}, false, nil

	case "bp", "break":
		a, err := parseArgAddress(args, 0)
		if err != nil {
			return nil, false, err
		}
		return &debugger.Status{Tag: debugger.TagSetBreakpoint, Address: a}, false, nil

	case "dbp", "delbreak":
		a, err := parseArgAddress(args, 0)
		if err != nil {
			return nil, false, err
		}
		return &debugger.Status{Tag: debugger.TagDeleteBreakpoint, Address: a}, false, nil

	case "d", "dis":
		literal := false
		rest := args
		if len(rest) > 0 && rest[0] == "--literal" {
			literal = true
			rest = rest[1:]
		}
		a, err := parseArgAddress(rest, 0)
		if err != nil {
			return nil, false, err
		}
		length := 10
		if len(rest) > 1 {
			n, err := strconv.ParseUint(strings.TrimPrefix(rest[1], "0x"), 16, 64)
			if err != nil {
				return nil, false, fmt.Errorf("parse length %q: %w", rest[1], err)
			}
			length = int(n)
		}
		return &debugger.Status{Tag: debugger.TagDisassemble, Address: a, Length: length, Literal: literal}, false, nil

	case "bt":
		return &debugger.Status{Tag: debugger.TagBacktrace}, false, nil

	case "stack":
		return &debugger.Status{Tag: debugger.TagStack}, false, nil

	case "pm", "info":
		return &debugger.Status{Tag: debugger.TagProcessMap}, false, nil

	case "regs":
		if len(args) < 1 {
			return nil, false, fmt.Errorf("usage: regs get | regs set <reg> <value>")
		}
		switch args[0] {
		case "get":
			return &debugger.Status{Tag: debugger.TagRegsGet}, false, nil
		case "set":
			if len(args) < 3 {
				return nil, false, fmt.Errorf("usage: regs set <reg> <value>")
			}
			v, err := strconv.ParseUint(strings.TrimPrefix(args[2], "0x"), 16, 64)
			if err != nil {
				return nil, false, fmt.Errorf("parse value %q: %w", args[2], err)
			}
			return &debugger.Status{Tag: debugger.TagRegsSet, Register: args[1], RegValue: v}, false, nil
		default:
			return nil, false, fmt.Errorf("usage: regs get | regs set <reg> <value>")
		}

	case "rmem":
		a, err := parseArgAddress(args, 0)
		if err != nil {
			return nil, false, err
		}
		if len(args) < 2 {
			return nil, false, fmt.Errorf("usage: rmem <addr> <length>")
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse length %q: %w", args[1], err)
		}
		return &debugger.Status{Tag: debugger.TagReadMem, Address: a, Length: int(n)}, false, nil

	case "wmem":
		a, err := parseArgAddress(args, 0)
		if err != nil {
			return nil, false, err
		}
		if len(args) < 2 {
			return nil, false, fmt.Errorf("usage: wmem <addr> <hexbytes>")
		}
		data, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
		if err != nil {
			return nil, false, fmt.Errorf("parse bytes %q: %w", args[1], err)
		}
		return &debugger.Status{Tag: debugger.TagWriteMem, Address: a, Bytes: debugger.HexBytes(data)}, false, nil

	case "sym", "gsym":
		if len(args) < 1 {
			return nil, false, fmt.Errorf("usage: sym <name>")
		}
		return &debugger.Status{Tag: debugger.TagGetSymbolsByName, Name: args[0]}, false, nil

	case "var", "vars":
		if len(args) < 1 {
			return nil, false, fmt.Errorf("usage: var <name>")
		}
		return &debugger.Status{Tag: debugger.TagReadVariable, Name: args[0]}, false, nil

	case "set":
		if len(args) < 2 || args[0] != "stepper" {
			return nil, false, fmt.Errorf("usage: set stepper <n>")
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse n %q: %w", args[1], err)
		}
		return &debugger.Status{Tag: debugger.TagSetStepper, N: int(n)}, false, nil

	case "plugin":
		if len(args) < 2 {
			return nil, false, fmt.Errorf("usage: plugin <id> <on|off>")
		}
		enabled := args[1] == "on"
		return &debugger.Status{Tag: debugger.TagPluginSetEnabled, PluginID: args[0], Enabled: enabled}, false, nil

	case "plugins":
		return &debugger.Status{Tag: debugger.TagPluginList}, false, nil

	case "q", "quit", "exit":
		return &debugger.Status{Tag: debugger.TagQuit}, false, nil

	case "help":
		printHelp(os.Stdout)
		return nil, false, nil

	default:
		return nil, false, fmt.Errorf("unrecognized command %q (try 'help')", cmd)
	}
}

// parseArgAddress parses args[i] as a hex address, with or without a
// leading 0x.
func parseArgAddress(args []string, i int) (addr.Address, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing address argument")
	}
	return addr.ParseAddress(args[i])
}

func printFeedback(out io.Writer, fb *debugger.Feedback) {
	switch fb.Tag {
	case debugger.FeedbackOk:
		if fb.Payload != nil {
			fmt.Fprintf(out, "%+v\n", fb.Payload)
		} else {
			fmt.Fprintln(out, "ok")
		}
	case debugger.FeedbackError:
		fmt.Fprintf(out, "error: [%s] %s\n", fb.Error.Kind, fb.Error.Message)
	case debugger.FeedbackExit:
		fmt.Fprintf(out, "child exited with code %d\n", fb.ExitCode)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `commands:
  run <path> [args...]       start a new debuggee
  c, cont                    continue execution
  s, step                    step one machine instruction
  si                         step until PC leaves the current function
  su, sov                    step over a call
  so                         step out of the current frame
  bp, break <addr>           set a breakpoint
  dbp, delbreak <addr>       delete a breakpoint
  d, dis [--literal] <addr> [n]  disassemble n instructions at addr
  bt                         print a backtrace
  stack                      print registers and a backtrace
  pm, info                   print the process memory map
  regs get                   print registers
  regs set <reg> <value>     set a register
  rmem <addr> <length>       read memory
  wmem <addr> <hexbytes>     write memory
  sym, gsym <name>           look up symbols by name
  var, vars <name>           read a variable
  set stepper <n>            set the client-side stepper count
  plugin <id> <on|off>       enable or disable a plugin
  plugins                    list registered plugins
  q, quit, exit              quit
  help                       print this message`)
}
