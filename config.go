package bwm

// config.go implements the file parsers for the four external input
// formats: the BwM configuration file, the tenant configuration file,
// the topology file, and the flow file. All four are plain
// whitespace-delimited text, stream-parsed the way
// bwm-coordinator.cc's inputConfiguration routine reads them; none of
// them are the dual
// YAML/JSON config format mrnes's desc-topo.go uses for its own
// experiment descriptions, so this file reads with bufio.Scanner
// rather than borrowing that machinery. Malformed input is fatal at
// startup, surfaced here as a returned error that main() is expected
// to treat as fatal.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// BwmConfig is the parsed form of the BwM configuration file: the set
// of host node indices participating in bandwidth management.
type BwmConfig struct {
	Hosts []int
}

// ReadBwmConfig parses the BwM configuration file format: a leading
// host count H, then H whitespace-separated host node indices.
func ReadBwmConfig(path string) (*BwmConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bwm: opening BwM config %q: %w", path, err)
	}
	defer f.Close()

	sc := newWordScanner(f)

	h, err := nextInt(sc, "host count")
	if err != nil {
		return nil, err
	}

	hosts := make([]int, 0, h)
	for i := 0; i < h; i++ {
		v, err := nextInt(sc, "host index")
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, v)
	}

	return &BwmConfig{Hosts: hosts}, nil
}

// TenantConfig is one parsed tenant configuration record: the tenant
// id, its BF, and its per-host weight overrides.
type TenantConfig struct {
	TenantID    uint32
	BF          *BandwidthFunction
	HostWeights map[uint32]float64
}

// ReadTenantConfig parses the repeated 3-line tenant configuration
// record format, terminated by a blank line (or EOF).
func ReadTenantConfig(path string) ([]*TenantConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bwm: opening tenant config %q: %w", path, err)
	}
	defer f.Close()

	var tenants []*TenantConfig
	lines := bufio.NewScanner(f)
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		idLine, ok := nextNonScannerEOF(lines)
		if !ok {
			break
		}
		idLine = strings.TrimSpace(idLine)
		if idLine == "" {
			break
		}

		tenantID, err := strconv.ParseUint(idLine, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bwm: malformed tenant id %q: %w", idLine, err)
		}

		if !lines.Scan() {
			return nil, fmt.Errorf("bwm: tenant %d: missing BF line", tenantID)
		}
		bf, err := ParseBandwidthFunction("0,0 " + strings.TrimSpace(lines.Text()))
		if err != nil {
			return nil, fmt.Errorf("bwm: tenant %d: %w", tenantID, err)
		}

		if !lines.Scan() {
			return nil, fmt.Errorf("bwm: tenant %d: missing host-weight line", tenantID)
		}
		weights, err := parseHostWeights(lines.Text())
		if err != nil {
			return nil, fmt.Errorf("bwm: tenant %d: %w", tenantID, err)
		}

		tenants = append(tenants, &TenantConfig{
			TenantID:    uint32(tenantID),
			BF:          bf,
			HostWeights: weights,
		})
	}

	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("bwm: reading tenant config %q: %w", path, err)
	}

	return tenants, nil
}

// parseHostWeights parses a "host1,weight1 host2,weight2 ..." line.
func parseHostWeights(line string) (map[uint32]float64, error) {
	weights := make(map[uint32]float64)
	for _, pair := range strings.Fields(line) {
		parts := strings.SplitN(pair, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed host weight %q", pair)
		}
		hostID, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad host id in %q: %w", pair, err)
		}
		weight, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad weight in %q: %w", pair, err)
		}
		weights[uint32(hostID)] = weight
	}
	return weights, nil
}

// TopologyLink is one parsed link record of the topology file format.
type TopologyLink struct {
	Src, Dst   int
	DataRate   float64 // bits/s
	LinkDelay  float64 // seconds
	QdiscSize  int     // packets, BwmQueueDisc.MaxSize for this link
}

// Topology is the parsed form of the topology file: a node count and
// the per-link records.
type Topology struct {
	NodeNum int
	Links   []TopologyLink
}

// ReadTopology parses the topology file format: "nodeNum linkNum",
// then per-link "src dst dataRate linkDelay qdiscSize".
func ReadTopology(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bwm: opening topology file %q: %w", path, err)
	}
	defer f.Close()

	sc := newWordScanner(f)

	nodeNum, err := nextInt(sc, "nodeNum")
	if err != nil {
		return nil, err
	}
	linkNum, err := nextInt(sc, "linkNum")
	if err != nil {
		return nil, err
	}

	links := make([]TopologyLink, 0, linkNum)
	for i := 0; i < linkNum; i++ {
		src, err := nextInt(sc, "link src")
		if err != nil {
			return nil, err
		}
		dst, err := nextInt(sc, "link dst")
		if err != nil {
			return nil, err
		}
		rate, err := nextFloat(sc, "link dataRate")
		if err != nil {
			return nil, err
		}
		delay, err := nextFloat(sc, "link linkDelay")
		if err != nil {
			return nil, err
		}
		qsize, err := nextInt(sc, "link qdiscSize")
		if err != nil {
			return nil, err
		}
		links = append(links, TopologyLink{Src: src, Dst: dst, DataRate: rate, LinkDelay: delay, QdiscSize: qsize})
	}

	return &Topology{NodeNum: nodeNum, Links: links}, nil
}

// FlowRecord is one parsed flow record of the flow file format.
type FlowRecord struct {
	Src, Dst             int
	StartTime, StopTime  float64
	FlowID, TenantID     uint32
}

// ReadFlowFile parses the flow file format: "flowNum", then per-flow
// "src dst startTime stopTime flowId tenantId".
func ReadFlowFile(path string) ([]FlowRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bwm: opening flow file %q: %w", path, err)
	}
	defer f.Close()

	sc := newWordScanner(f)

	flowNum, err := nextInt(sc, "flowNum")
	if err != nil {
		return nil, err
	}

	flows := make([]FlowRecord, 0, flowNum)
	for i := 0; i < flowNum; i++ {
		src, err := nextInt(sc, "flow src")
		if err != nil {
			return nil, err
		}
		dst, err := nextInt(sc, "flow dst")
		if err != nil {
			return nil, err
		}
		start, err := nextFloat(sc, "flow startTime")
		if err != nil {
			return nil, err
		}
		stop, err := nextFloat(sc, "flow stopTime")
		if err != nil {
			return nil, err
		}
		flowID, err := nextInt(sc, "flow flowId")
		if err != nil {
			return nil, err
		}
		tenantID, err := nextInt(sc, "flow tenantId")
		if err != nil {
			return nil, err
		}
		flows = append(flows, FlowRecord{
			Src: src, Dst: dst,
			StartTime: start, StopTime: stop,
			FlowID: uint32(flowID), TenantID: uint32(tenantID),
		})
	}

	return flows, nil
}

// newWordScanner returns a bufio.Scanner configured to split on
// whitespace, the common shape of every format in this file except
// the tenant configuration file's line-oriented records.
func newWordScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return sc
}

func nextInt(sc *bufio.Scanner, field string) (int, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("bwm: missing %s", field)
	}
	v, err := strconv.Atoi(sc.Text())
	if err != nil {
		return 0, fmt.Errorf("bwm: bad %s %q: %w", field, sc.Text(), err)
	}
	return v, nil
}

func nextFloat(sc *bufio.Scanner, field string) (float64, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("bwm: missing %s", field)
	}
	v, err := strconv.ParseFloat(sc.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("bwm: bad %s %q: %w", field, sc.Text(), err)
	}
	return v, nil
}

// nextNonScannerEOF is a small line-scanner helper that distinguishes
// "scanned a line" from "hit EOF", needed because ReadTenantConfig's
// terminating condition is ambiguous between a blank line and a
// cleanly exhausted file.
func nextNonScannerEOF(sc *bufio.Scanner) (string, bool) {
	if !sc.Scan() {
		return "", false
	}
	return sc.Text(), true
}
