package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CameraSeed describes a camera declared in the cameras file.
type CameraSeed struct {
	Name      string `yaml:"name"`
	SourceURL string `yaml:"source_url"`
	Location  string `yaml:"location"`
	Active    *bool  `yaml:"active"`
}

type camerasFile struct {
	Cameras []CameraSeed `yaml:"cameras"`
}

// IsActive reports the declared state, defaulting to active.
func (c CameraSeed) IsActive() bool {
	return c.Active == nil || *c.Active
}

// LoadCameraSeeds parses a YAML file of the form:
//
//	cameras:
//	  - name: Main St
//	    source_url: rtsp://10.0.0.5/stream
//	    location: north gate
func LoadCameraSeeds(path string) ([]CameraSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras file: %w", err)
	}

	var file camerasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse cameras file: %w", err)
	}

	seen := make(map[string]bool, len(file.Cameras))
	for i, cam := range file.Cameras {
		if strings.TrimSpace(cam.Name) == "" {
			return nil, fmt.Errorf("camera #%d: name is required", i+1)
		}
		if strings.TrimSpace(cam.SourceURL) == "" {
			return nil, fmt.Errorf("camera %q: source_url is required", cam.Name)
		}
		if seen[cam.SourceURL] {
			return nil, fmt.Errorf("camera %q: duplicate source_url %s", cam.Name, cam.SourceURL)
		}
		seen[cam.SourceURL] = true
	}

	return file.Cameras, nil
}
