package topology

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ClusterEnv is the result of reading the process's environment-provided
// cluster description, grounded on the reference's dc_init_from_env.
type ClusterEnv struct {
	SelfPid int
	Hosts   []string // one per pid, "host:port"
	Table   *Table
}

// DefaultWrap and DefaultDims match the reference's hard-coded torus.
const (
	DefaultWrap = 24
	DefaultDims = 3
)

// LoadClusterEnv reads SPAWNID, SPAWNNODES and the optional TOPOLOGIES_FILE
// to build the process's view of the cluster. wrap/dims override the
// defaults; pass <= 0 to use DefaultWrap/DefaultDims.
func LoadClusterEnv(wrap, dims int) (*ClusterEnv, error) {
	if wrap <= 0 {
		wrap = DefaultWrap
	}
	if dims <= 0 {
		dims = DefaultDims
	}

	idStr, ok := os.LookupEnv("SPAWNID")
	if !ok {
		return nil, fmt.Errorf("topology: SPAWNID is required")
	}
	pid, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, fmt.Errorf("topology: malformed SPAWNID %q: %w", idStr, err)
	}

	nodesStr, ok := os.LookupEnv("SPAWNNODES")
	if !ok || nodesStr == "" {
		return nil, fmt.Errorf("topology: SPAWNNODES is required")
	}
	rawHosts := strings.Split(nodesStr, ",")
	hosts := make([]string, len(rawHosts))
	for i, h := range rawHosts {
		hosts[i] = fmt.Sprintf("%s:%d", strings.TrimSpace(h), 10000+i)
	}

	if pid < 0 || pid >= len(hosts) {
		return nil, fmt.Errorf("topology: SPAWNID %d out of range [0,%d)", pid, len(hosts))
	}

	var coords []Coord
	if path, ok := os.LookupEnv("TOPOLOGIES_FILE"); ok && path != "" {
		coords, err = readTopologiesFile(path, len(hosts), dims)
		if err != nil {
			return nil, err
		}
	}

	table, err := NewTable(coords, len(hosts), wrap, dims)
	if err != nil {
		return nil, err
	}

	return &ClusterEnv{SelfPid: pid, Hosts: hosts, Table: table}, nil
}

// readTopologiesFile parses P lines of dims whitespace-separated integers.
func readTopologiesFile(path string, numProcs, dims int) ([]Coord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("topology: failed to open topologies file: %w", err)
	}
	defer f.Close()

	coords := make([]Coord, 0, numProcs)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != dims {
			return nil, fmt.Errorf("topology: line %d has %d axes, want %d", len(coords)+1, len(fields), dims)
		}
		c := make(Coord, dims)
		for j, fstr := range fields {
			v, err := strconv.Atoi(fstr)
			if err != nil {
				return nil, fmt.Errorf("topology: invalid coordinate value %q: %w", fstr, err)
			}
			c[j] = v
		}
		coords = append(coords, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("topology: failed to read topologies file: %w", err)
	}
	if len(coords) != numProcs {
		return nil, fmt.Errorf("topology: topologies file has %d lines, want %d", len(coords), numProcs)
	}
	return coords, nil
}
