package hotel

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed/rooms.yaml
var defaultRoomsYAML []byte

type seedFile struct {
	Rooms []Room `yaml:"rooms"`
}

func DefaultRooms() ([]Room, error) {
	return ParseRooms(defaultRoomsYAML)
}

func LoadRooms(path string) ([]Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read room seed %s: %w", path, err)
	}
	return ParseRooms(data)
}

func ParseRooms(data []byte) ([]Room, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode room seed: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Rooms))
	for _, r := range f.Rooms {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("room seed lists %s twice", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return f.Rooms, nil
}
