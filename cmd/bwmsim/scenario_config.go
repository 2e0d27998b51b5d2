package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scenarioFile is the optional YAML scenario description, an
// alternative to passing every path on the command line, mirroring
// mrnes's own dual YAML/JSON experiment-description convention
// (desc-topo.go reads a single structured file rather than a pile of
// flags) adapted here to this driver's four-file inputs and knobs.
type scenarioFile struct {
	BwmConfig    string  `yaml:"bwmConfig"`
	TenantConfig string  `yaml:"tenantConfig"`
	Topology     string  `yaml:"topology"`
	Flows        string  `yaml:"flows"`
	Duration     float64 `yaml:"duration"`
	TraceDir     string  `yaml:"traceDir"`
	Alpha        float64 `yaml:"alpha"`
	MinFairShare float64 `yaml:"minFairShare"`
	EnCAWC       bool    `yaml:"enCAWC"`
}

// readScenarioFile parses a YAML scenario description from path.
func readScenarioFile(path string) (*scenarioFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bwmsim: reading scenario file %q: %w", path, err)
	}
	var sf scenarioFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("bwmsim: parsing scenario file %q: %w", path, err)
	}
	return &sf, nil
}
