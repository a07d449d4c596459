// Package props implements the newline-separated `key.path.segments = value`
// property grammar that is used to exchange scene descriptions and render
// configurations with the rendering engine.
package props

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

var (
	ErrMissingSeparator = errors.New("props: expected 'key = value' assignment")
	ErrInvalidKey       = errors.New("props: invalid property key")
	ErrNotFound         = errors.New("props: property not defined")
)

// Keys are made of at least two dot-separated segments.
var keyRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)+$`)

// A single key/value assignment.
type Property struct {
	Key   string
	Value string
}

// Render property as a `key = value` assignment.
func (p Property) String() string {
	return p.Key + " = " + p.Value
}

// An ordered set of properties.
type Properties struct {
	p *properties.Properties
}

// Create an empty property set.
func New() *Properties {
	p := properties.NewProperties()
	p.DisableExpansion = true
	return &Properties{p: p}
}

// Parse a property string. Blank lines and lines starting with '#' are
// ignored; every other line is split at its first '=' into a key and a
// value. Values are kept verbatim apart from surrounding whitespace.
func Parse(text string) (*Properties, error) {
	out := New()

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var lineNum int
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w at line %d: %q", ErrMissingSeparator, lineNum, line)
		}
		key = strings.TrimSpace(key)
		if !keyRegex.MatchString(key) {
			return nil, fmt.Errorf("%w at line %d: %q", ErrInvalidKey, lineNum, key)
		}
		out.Set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("props: %w", err)
	}

	return out, nil
}

// Get a property by key.
func (ps *Properties) Get(key string) (Property, bool) {
	value, ok := ps.p.Get(key)
	if !ok {
		return Property{}, false
	}
	return Property{Key: key, Value: value}, true
}

// Get the value for key or the supplied default if it is not defined.
func (ps *Properties) GetString(key, def string) string {
	if prop, ok := ps.Get(key); ok {
		return prop.Value
	}
	return def
}

// Parse the value of key as a float. Quoted values are unquoted first.
func (ps *Properties) Float(key string) (float64, error) {
	prop, ok := ps.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return strconv.ParseFloat(Unquote(prop.Value), 64)
}

// Set a property. New keys are appended; existing keys keep their position.
func (ps *Properties) Set(key, value string) {
	_, _, _ = ps.p.Set(key, strings.TrimSpace(value))
}

// Parse text and merge its assignments into this set. Later keys win.
func (ps *Properties) SetFromString(text string) error {
	other, err := Parse(text)
	if err != nil {
		return err
	}
	ps.Merge(other)
	return nil
}

// Merge all properties from other into this set.
func (ps *Properties) Merge(other *Properties) {
	for _, key := range other.Keys() {
		value, _ := other.p.Get(key)
		ps.Set(key, value)
	}
}

// Get the defined keys in insertion order.
func (ps *Properties) Keys() []string {
	return ps.p.Keys()
}

// Get the number of defined properties.
func (ps *Properties) Len() int {
	return ps.p.Len()
}

// Get a new set containing the properties whose key starts with prefix.
func (ps *Properties) FilterPrefix(prefix string) *Properties {
	out := New()
	for _, key := range ps.Keys() {
		if strings.HasPrefix(key, prefix) {
			value, _ := ps.p.Get(key)
			out.Set(key, value)
		}
	}
	return out
}

// Get a new set containing the properties whose key does not start with prefix.
func (ps *Properties) ExcludePrefix(prefix string) *Properties {
	out := New()
	for _, key := range ps.Keys() {
		if !strings.HasPrefix(key, prefix) {
			value, _ := ps.p.Get(key)
			out.Set(key, value)
		}
	}
	return out
}

// Namespace key counts.
type Namespace struct {
	Name  string
	Count int
}

// Group keys by namespace. For `scene.*` keys the namespace includes the
// second segment (scene.camera, scene.objects, ...). The result is sorted
// by name.
func (ps *Properties) Namespaces() []Namespace {
	counts := make(map[string]int)
	for _, key := range ps.Keys() {
		segments := strings.Split(key, ".")
		name := segments[0]
		if name == "scene" && len(segments) > 2 {
			name = segments[0] + "." + segments[1]
		}
		counts[name]++
	}

	out := make([]Namespace, 0, len(counts))
	for name, count := range counts {
		out = append(out, Namespace{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Serialize as one `key = value` line per property in insertion order.
func (ps *Properties) String() string {
	var sb strings.Builder
	for _, key := range ps.Keys() {
		value, _ := ps.p.Get(key)
		sb.WriteString(key)
		sb.WriteString(" = ")
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Strip a single pair of surrounding double quotes.
func Unquote(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
