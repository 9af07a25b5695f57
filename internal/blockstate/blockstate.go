// Package blockstate interns (name, properties) block states into dense
// u16 IDs so the rest of the renderer can index blocks by a small integer
// instead of carrying strings and maps around.
package blockstate

import (
	"sort"
	"strings"
	"sync"
)

// AirID is the reserved ID for the default, air-like state. The zero value
// of a State's ID always resolves to this.
const AirID uint16 = 0

// State is a canonicalized block state: a block name plus its sorted
// property bag.
type State struct {
	Name       string
	Properties []Property
}

// Property is a single key=value pair of a block state.
type Property struct {
	Key, Value string
}

// key renders the canonical string form used to deduplicate states: name
// followed by its properties sorted by key.
func (s State) key() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, p := range s.Properties {
		b.WriteByte(';')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// ParseVariant builds a State from a block name and its textual variant
// form: comma-separated key=value pairs, or "-" for the default variant.
// Properties come out sorted by key.
func ParseVariant(name, variant string) State {
	s := State{Name: name}
	if variant == "" || variant == "-" {
		return s
	}
	for _, kv := range strings.Split(variant, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		s.Properties = append(s.Properties, Property{Key: parts[0], Value: parts[1]})
	}
	s.Properties = sortProperties(s.Properties)
	return s
}

// Variant renders the state's properties back into the textual variant
// form ParseVariant accepts; "-" for a property-less state.
func (s State) Variant() string {
	if len(s.Properties) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, p := range s.Properties {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// Get returns the value of a property, or "" with ok=false if the state
// does not carry it.
func (s State) Get(key string) (string, bool) {
	for _, p := range s.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// sortProperties returns a copy of props sorted by key.
func sortProperties(props []Property) []Property {
	out := make([]Property, len(props))
	copy(out, props)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Registry interns block states into dense IDs. The zero Registry is not
// usable; construct with New.
//
// The registry is normally fully populated by atlas load time and never
// interned into during rendering. GetID/AddKnownProperty are still guarded
// by a mutex so that a chunk carrying a block state the atlas never
// mentioned does not race when multiple render workers share one Registry,
// rather than requiring every caller to single-thread decoding.
type Registry struct {
	mu        sync.Mutex
	states    []State
	index     map[string]uint16
	knownKeys map[string][]string // block name -> recognized property keys, sorted
}

// New returns an empty registry with ID 0 reserved for air.
func New() *Registry {
	r := &Registry{
		index:     make(map[string]uint16),
		knownKeys: make(map[string][]string),
	}
	air := State{Name: "minecraft:air"}
	r.states = append(r.states, air)
	r.index[air.key()] = AirID
	return r
}

// AddKnownProperty records that blocks named name recognize the property
// key, even if a particular parsed state omits it. Later canonicalization
// of a state for this name fills in any missing known key with "" so two
// states logically differing only by an implicit default still compare
// equal.
func (r *Registry) AddKnownProperty(name, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.knownKeys[name]
	for _, k := range keys {
		if k == key {
			return
		}
	}
	keys = append(keys, key)
	sort.Strings(keys)
	r.knownKeys[name] = keys
}

// canonicalize fills in any of the name's known keys missing from
// properties with an empty value, then sorts by key.
func (r *Registry) canonicalize(name string, properties []Property) []Property {
	have := make(map[string]bool, len(properties))
	for _, p := range properties {
		have[p.Key] = true
	}
	out := make([]Property, len(properties))
	copy(out, properties)
	for _, k := range r.knownKeys[name] {
		if !have[k] {
			out = append(out, Property{Key: k, Value: ""})
		}
	}
	return sortProperties(out)
}

// GetID interns (name, properties), returning its ID. Calling it twice
// with logically equal states (regardless of property order) returns the
// same ID.
func (r *Registry) GetID(name string, properties []Property) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	props := r.canonicalize(name, properties)
	s := State{Name: name, Properties: props}
	k := s.key()
	if id, ok := r.index[k]; ok {
		return id
	}
	id := uint16(len(r.states))
	r.states = append(r.states, s)
	r.index[k] = id
	return id
}

// GetState is the reverse lookup of GetID. The zero value is returned with
// ok=false for an out-of-range ID.
func (r *Registry) GetState(id uint16) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.states) {
		return State{}, false
	}
	return r.states[id], true
}

// Len returns the number of interned states, including the reserved air
// state at ID 0.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
