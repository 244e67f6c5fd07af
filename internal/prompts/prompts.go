// Package prompts holds the persona instructions and greetings of the voice agent.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var personasYAML []byte

// Persona is a named instruction set with its opening line.
type Persona struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
	Greeting     string `yaml:"greeting"`
}

// Set is the pair of personas a session can choose from.
type Set struct {
	Default Persona `yaml:"default"`
	GenZ    Persona `yaml:"genz"`
}

type document struct {
	Personas Set `yaml:"personas"`
}

// Load parses the embedded persona definitions.
func Load() (*Set, error) {
	return Parse(personasYAML)
}

// MustLoad is Load for package initialization and tests.
func MustLoad() *Set {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

// Parse decodes a persona document.
func Parse(data []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}
	set := doc.Personas
	if err := set.Default.validate("default"); err != nil {
		return nil, err
	}
	if err := set.GenZ.validate("genz"); err != nil {
		return nil, err
	}
	return &set, nil
}

func (p Persona) validate(key string) error {
	if strings.TrimSpace(p.Instructions) == "" {
		return fmt.Errorf("persona %q: %w", key, errors.New("instructions are empty"))
	}
	if strings.TrimSpace(p.Greeting) == "" {
		return fmt.Errorf("persona %q: %w", key, errors.New("greeting is empty"))
	}
	return nil
}

// For returns the persona selected by the Gen Z flag.
func (s *Set) For(genZ bool) Persona {
	if genZ {
		return s.GenZ
	}
	return s.Default
}
