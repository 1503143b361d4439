package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"landvote.ai/internal/protocol"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Map        MapTuning `yaml:"map" json:"map"`
	AutoExtend bool      `yaml:"auto_extend" json:"auto_extend"`

	SnapshotEveryCommands int `yaml:"snapshot_every_commands" json:"snapshot_every_commands"`
	MaxQueue              int `yaml:"max_queue" json:"max_queue"`
}

type MapTuning struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:       protocol.Version,
		Map:                   MapTuning{Width: 6, Height: 5},
		SnapshotEveryCommands: 100,
		MaxQueue:              64,
	}
}

// Load reads a YAML file on top of Defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q unsupported (want %q)", t.ProtocolVersion, protocol.Version)
	}
	if t.Map.Width <= 0 || t.Map.Height <= 0 {
		return errors.New("map.width and map.height must be positive")
	}
	if t.SnapshotEveryCommands < 0 {
		return errors.New("snapshot_every_commands must be >= 0")
	}
	if t.MaxQueue <= 0 {
		return errors.New("max_queue must be positive")
	}
	return nil
}
