package engine

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/achilleasa/framebatch/props"
)

const scenePrefix = "scene."

var (
	ErrEmptyScene       = errors.New("engine: scene description defines no scene properties")
	ErrIncompleteObject = errors.New("engine: object defines no geometry")
	ErrNoFilmOutput     = errors.New("engine: configuration defines no film output filename")
	ErrInvalidValue     = errors.New("engine: invalid configuration value")
)

var (
	filmOutputRegex = regexp.MustCompile(`^film\.outputs\.(\d+)\.filename$`)
	objectKeyRegex  = regexp.MustCompile(`^scene\.objects\.([^.]+)\.(.+)$`)
)

// A scene backed by its property set.
type propertyScene struct {
	props *props.Properties
}

// Create a scene from a validated scene property set.
func NewScene(sceneProps *props.Properties) Scene {
	return &propertyScene{props: sceneProps}
}

func (s *propertyScene) Properties() *props.Properties {
	return s.props
}

// Read a description file and split it into scene and configuration
// property sets.
func ParseDescriptionFile(path string) (scene, cfg *props.Properties, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, IOError("read description", path, err)
	}

	all, err := props.Parse(string(data))
	if err != nil {
		return nil, nil, ParseError("parse description", path, err)
	}

	scene, cfg = SplitDescription(all)
	return scene, cfg, nil
}

// Split a property set into `scene.*` keys and everything else.
func SplitDescription(all *props.Properties) (scene, cfg *props.Properties) {
	return all.FilterPrefix(scenePrefix), all.ExcludePrefix(scenePrefix)
}

// Check that a scene property set can be turned into a scene: it must not
// be empty and every object must define some geometry.
func ValidateScene(sceneProps *props.Properties) error {
	if sceneProps.FilterPrefix(scenePrefix).Len() == 0 {
		return ParseError("build scene", "", ErrEmptyScene)
	}

	objects := make(map[string]map[string]bool)
	for _, key := range sceneProps.Keys() {
		m := objectKeyRegex.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if objects[m[1]] == nil {
			objects[m[1]] = make(map[string]bool)
		}
		objects[m[1]][m[2]] = true
	}

	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attrs := objects[name]
		if attrs["ply"] || attrs["shape"] || (attrs["vertices"] && attrs["faces"]) {
			continue
		}
		return ParseError("build scene", "", fmt.Errorf("%w: %s", ErrIncompleteObject, name))
	}
	return nil
}

// Check the render configuration keys that the batch depends on.
func ValidateConfiguration(cfg *props.Properties) error {
	for _, key := range []string{"film.width", "film.height"} {
		prop, ok := cfg.Get(key)
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(props.Unquote(prop.Value)); err != nil || v <= 0 {
			return ConfigurationError("validate configuration", fmt.Errorf("%w: %s", ErrInvalidValue, prop))
		}
	}

	for _, key := range []string{"batch.halttime", "batch.haltspp"} {
		prop, ok := cfg.Get(key)
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(props.Unquote(prop.Value), 64); err != nil || v < 0 {
			return ConfigurationError("validate configuration", fmt.Errorf("%w: %s", ErrInvalidValue, prop))
		}
	}

	if prop, ok := cfg.Get("renderengine.type"); ok && props.Unquote(prop.Value) == "" {
		return ConfigurationError("validate configuration", fmt.Errorf("%w: %s", ErrInvalidValue, prop))
	}

	_, err := FilmOutputFilename(cfg)
	return err
}

// Get the filename of the lowest-numbered film output.
func FilmOutputFilename(cfg *props.Properties) (string, error) {
	bestIndex := -1
	var filename string
	for _, key := range cfg.Keys() {
		m := filmOutputRegex.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if bestIndex != -1 && index >= bestIndex {
			continue
		}
		bestIndex = index
		filename = strings.TrimSpace(props.Unquote(cfg.GetString(key, "")))
	}

	if filename == "" {
		return "", ConfigurationError("validate configuration", ErrNoFilmOutput)
	}
	return filename, nil
}
