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

// Package procmap parses /proc/<pid>/maps into an owned, serializable list
// of memory regions. It performs no further kernel queries; the result is a
// pure snapshot of what the kernel reported at the moment Load was called.
package procmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
)

// Region describes one line of /proc/<pid>/maps.
type Region struct {
	Start   addr.Address `json:"start"`
	End     addr.Address `json:"end"`
	Read    bool         `json:"read"`
	Write   bool         `json:"write"`
	Execute bool         `json:"execute"`
	Private bool         `json:"private"` // false means shared
	Offset  uint64       `json:"offset"`
	Device  string       `json:"device"`
	Inode   uint64       `json:"inode"`
	Path    string       `json:"path"` // empty for anonymous mappings
}

// Contains reports whether a lies within [Start, End).
func (r Region) Contains(a addr.Address) bool {
	return a >= r.Start && a < r.End
}

// Load reads and parses /proc/<pid>/maps, preserving kernel order.
func Load(pid int) ([]Region, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, cmerr.Wrap(cmerr.Io, err, "open /proc/%d/maps", pid)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]Region, error) {
	var regions []Region

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		region, err := parseLine(line)
		if err != nil {
			return nil, cmerr.Wrap(cmerr.Parse, err, "maps line %d: %q", lineNo, line)
		}
		regions = append(regions, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, cmerr.Wrap(cmerr.Io, err, "reading maps")
	}
	return regions, nil
}

// parseLine parses one line of the form:
//
//	00400000-00452000 r-xp 00000000 08:02 173521  /usr/bin/dummy
func parseLine(line string) (Region, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Region{}, fmt.Errorf("expected at least 5 fields, got %d", len(fields))
	}

	addrRange := strings.SplitN(fields[0], "-", 2)
	if len(addrRange) != 2 {
		return Region{}, fmt.Errorf("malformed address range %q", fields[0])
	}
	start, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("malformed start address %q: %w", addrRange[0], err)
	}
	end, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("malformed end address %q: %w", addrRange[1], err)
	}

	perms := fields[1]
	if len(perms) < 4 {
		return Region{}, fmt.Errorf("malformed permissions %q", perms)
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("malformed offset %q: %w", fields[2], err)
	}

	var inode uint64
	if len(fields) >= 5 {
		inode, _ = strconv.ParseUint(fields[4], 10, 64)
	}

	region := Region{
		Start:   addr.Address(start),
		End:     addr.Address(end),
		Read:    perms[0] == 'r',
		Write:   perms[1] == 'w',
		Execute: perms[2] == 'x',
		Private: perms[3] == 'p',
		Offset:  offset,
		Inode:   inode,
	}
	if len(fields) >= 4 {
		region.Device = fields[3]
	}
	if len(fields) >= 6 {
		region.Path = strings.Join(fields[5:], " ")
	}

	return region, nil
}
