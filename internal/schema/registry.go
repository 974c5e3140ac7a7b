package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// Registry holds one compiled validator per known verb, built once at
// startup from the Go args structs in args.go.
type Registry struct {
	mu         sync.RWMutex
	validators map[protocol.Verb]*jsonschemav6.Schema
	schemas    map[protocol.Verb]*jsonschema.Schema
}

// NewRegistry reflects every known verb's args struct into a JSON
// Schema and compiles it for validation. An error here means a
// programming mistake in args.go's struct tags, not bad input.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		validators: make(map[protocol.Verb]*jsonschemav6.Schema),
		schemas:    make(map[protocol.Verb]*jsonschema.Schema),
	}
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	for verb := range protocol.KnownVerbs {
		proto := argsPrototype(verb)
		if proto == nil {
			continue
		}
		s := reflector.Reflect(proto)
		s.Title = string(verb) + " args"
		r.schemas[verb] = s

		raw, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("schema: marshal %s schema: %w", verb, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("schema: decode %s schema: %w", verb, err)
		}

		resourceName := string(verb) + ".json"
		c := jsonschemav6.NewCompiler()
		if err := c.AddResource(resourceName, doc); err != nil {
			return nil, fmt.Errorf("schema: add %s resource: %w", verb, err)
		}
		compiled, err := c.Compile(resourceName)
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s schema: %w", verb, err)
		}
		r.validators[verb] = compiled
	}
	return r, nil
}

// Validate checks args against the verb's registered schema. A verb
// with no registered shape (none currently) is accepted unconditionally.
func (r *Registry) Validate(verb protocol.Verb, args map[string]any) error {
	r.mu.RLock()
	v, ok := r.validators[verb]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := v.Validate(args); err != nil {
		return fmt.Errorf("args for %s: %w", verb, err)
	}
	return nil
}

// SchemaFor returns the generated JSON Schema document for verb.
func (r *Registry) SchemaFor(verb protocol.Verb) (*jsonschema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[verb]
	if !ok {
		return nil, errUnknownVerb(verb)
	}
	return s, nil
}

// Verbs returns every verb with a registered schema, for documentation
// generation.
func (r *Registry) Verbs() []protocol.Verb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Verb, 0, len(r.schemas))
	for v := range r.schemas {
		out = append(out, v)
	}
	return out
}
