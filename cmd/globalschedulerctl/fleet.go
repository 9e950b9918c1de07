package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chord-scheduler/globalscheduler/scheduler"
)

// loadFleet reads a YAML list of InstanceInfo snapshots from path.
func loadFleet(path string) ([]scheduler.InstanceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fleet snapshot: %w", err)
	}
	var fleet []scheduler.InstanceInfo
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("parsing fleet snapshot: %w", err)
	}
	return fleet, nil
}

// loadRequests reads a YAML list of Request descriptors from path.
func loadRequests(path string) ([]scheduler.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request list: %w", err)
	}
	var requests []scheduler.Request
	if err := yaml.Unmarshal(data, &requests); err != nil {
		return nil, fmt.Errorf("parsing request list: %w", err)
	}
	return requests, nil
}
