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

// Command cmserve is the newline-delimited JSON collaborator: it reads one
// debugger.Status per line of stdin and writes one debugger.Feedback per
// line of stdout. All command semantics live in debugger.Facade; this
// front-end is deliberately thin.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

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
			fmt.Fprintln(os.Stderr, "cmserve:", err)
			os.Exit(1)
		}
		for _, p := range cfg.Plugins {
			hook, ok := knownHooks[p.ID]
			if !ok {
				fmt.Fprintf(os.Stderr, "cmserve: unknown plugin id %q\n", p.ID)
				os.Exit(1)
			}
			facade.Plugins().Register(hook)
			facade.Plugins().SetEnabled(p.ID, p.EnabledOrDefault())
		}
	}

	run(facade, os.Stdin, os.Stdout)
}

func run(facade *debugger.Facade, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var st debugger.Status
		if err := json.Unmarshal(line, &st); err != nil {
			enc.Encode(debugger.ErrorFeedback(fmt.Errorf("decode status: %w", err)))
			continue
		}

		fb := facade.Dispatch(&st)
		if err := enc.Encode(fb); err != nil {
			fmt.Fprintln(os.Stderr, "cmserve: encode feedback:", err)
			return
		}
	}
}
