package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSeed is returned for a seed file that does not validate.
var ErrInvalidSeed = errors.New("invalid seed file")

// Seed is a set of collections imported for one owner at startup.
type Seed struct {
	Owner       string   `yaml:"owner"`
	Collections []Import `yaml:"collections"`
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	var s Seed
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Seed{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if s.Owner == "" {
		return Seed{}, fmt.Errorf("%w: owner is required", ErrInvalidSeed)
	}
	for i := range s.Collections {
		if err := s.Collections[i].Validate(); err != nil {
			return Seed{}, fmt.Errorf("%w: collection %d: %w", ErrInvalidSeed, i, err)
		}
	}
	return s, nil
}
