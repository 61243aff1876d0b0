package dispatch

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Operation string

const (
	OpCreate  Operation = "create"
	OpApprove Operation = "approve"
)

func (o Operation) Valid() bool {
	return o == OpCreate || o == OpApprove
}

// Routes maps operation attribute values, case-insensitively, to operations.
type Routes struct {
	aliases map[string]Operation
}

// DefaultRoutes accepts the operation names plus the HTTP verbs older
// producers still send.
func DefaultRoutes() Routes {
	return Routes{aliases: map[string]Operation{
		"create":  OpCreate,
		"post":    OpCreate,
		"approve": OpApprove,
		"put":     OpApprove,
	}}
}

// routesFile is the YAML layout:
//
//	operations:
//	  create: [POST, create]
//	  approve: [PUT, approve]
type routesFile struct {
	Operations map[string][]string `yaml:"operations"`
}

func ParseRoutes(data []byte) (Routes, error) {
	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Routes{}, fmt.Errorf("parse routes: %w", err)
	}
	if len(file.Operations) == 0 {
		return Routes{}, fmt.Errorf("parse routes: no operations defined")
	}
	routes := Routes{aliases: map[string]Operation{}}
	for name, aliases := range file.Operations {
		op := Operation(strings.ToLower(strings.TrimSpace(name)))
		if !op.Valid() {
			return Routes{}, fmt.Errorf("parse routes: unknown operation %q", name)
		}
		routes.aliases[string(op)] = op
		for _, alias := range aliases {
			if err := routes.add(alias, op); err != nil {
				return Routes{}, err
			}
		}
	}
	return routes, nil
}

func LoadRoutes(path string) (Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Routes{}, fmt.Errorf("read routes: %w", err)
	}
	return ParseRoutes(data)
}

// WithAliases returns a copy extended with alias=operation pairs.
func (r Routes) WithAliases(aliases map[string]string) (Routes, error) {
	out := Routes{aliases: make(map[string]Operation, len(r.aliases)+len(aliases))}
	for k, v := range r.aliases {
		out.aliases[k] = v
	}
	for alias, name := range aliases {
		op := Operation(strings.ToLower(strings.TrimSpace(name)))
		if !op.Valid() {
			return Routes{}, fmt.Errorf("alias %q: unknown operation %q", alias, name)
		}
		if err := out.add(alias, op); err != nil {
			return Routes{}, err
		}
	}
	return out, nil
}

func (r Routes) add(alias string, op Operation) error {
	key := strings.ToLower(strings.TrimSpace(alias))
	if key == "" {
		return fmt.Errorf("empty alias for %s", op)
	}
	if existing, ok := r.aliases[key]; ok && existing != op {
		return fmt.Errorf("alias %q maps to both %s and %s", alias, existing, op)
	}
	r.aliases[key] = op
	return nil
}

func (r Routes) Resolve(value string) (Operation, bool) {
	op, ok := r.aliases[strings.ToLower(strings.TrimSpace(value))]
	return op, ok
}
