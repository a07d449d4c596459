package scene

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/framebatch/engine"
	"github.com/achilleasa/framebatch/props"
	"github.com/twmb/murmur3"
)

var (
	ErrMissingFragment = errors.New("scene: queried fragment is not defined")
	ErrUnknownPolicy   = errors.New("scene: unknown missing fragment policy")
)

type MissingFragmentPolicy string

const (
	// Fail the frame with a ParseError.
	FailOnMissing MissingFragmentPolicy = "fail"

	// Omit the clause and let the engine judge the description.
	SkipMissing MissingFragmentPolicy = "skip"
)

func ParseMissingFragmentPolicy(name string) (MissingFragmentPolicy, error) {
	switch policy := MissingFragmentPolicy(strings.ToLower(strings.TrimSpace(name))); policy {
	case FailOnMissing, SkipMissing:
		return policy, nil
	}
	return FailOnMissing, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Property sets produced by pre-parsing a working file.
type Fragments struct {
	Scene  *props.Properties
	Config *props.Properties
}

// Look up a key in the scene set first and then in the config set.
func (f Fragments) Get(key string) (props.Property, bool) {
	if f.Scene != nil {
		if prop, ok := f.Scene.Get(key); ok {
			return prop, true
		}
	}
	if f.Config != nil {
		return f.Config.Get(key)
	}
	return props.Property{}, false
}

// A fully composed frame description.
type Description struct {
	Frame int
	Text  string

	// Queried keys that were not defined and got omitted.
	Missing []string

	// Time spent preparing, pre-parsing and composing the description.
	BuildTime time.Duration
}

// Get a murmur3 digest of the description text.
func (d *Description) Digest() string {
	hasher := murmur3.New64()
	hasher.Write([]byte(d.Text))
	return strconv.FormatUint(hasher.Sum64(), 16)
}

// Compose the final description: the preliminary scene properties, then the
// static fragment, then each queried fragment as a `key = value` clause.
// Later assignments override earlier ones when the text is parsed.
func ComposeFinalDescription(static string, prelim Fragments, keys []string, policy MissingFragmentPolicy) (*Description, error) {
	desc := &Description{}

	var sb strings.Builder
	if prelim.Scene != nil {
		sb.WriteString(prelim.Scene.String())
	}
	if static = strings.TrimSpace(static); static != "" {
		sb.WriteString(static)
		sb.WriteByte('\n')
	}

	for _, key := range keys {
		prop, ok := prelim.Get(key)
		if !ok {
			if policy != SkipMissing {
				return nil, engine.ParseError("compose description", "", fmt.Errorf("%w: %s", ErrMissingFragment, key))
			}
			desc.Missing = append(desc.Missing, key)
			continue
		}
		sb.WriteString(prop.String())
		sb.WriteByte('\n')
	}

	desc.Text = sb.String()
	return desc, nil
}
