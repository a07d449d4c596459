package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/achilleasa/framebatch/scene"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	job, err := NewLoader(LoadOptions{}).Load()
	require.NoError(t, err)
	require.Equal(t, Default(), job)
	require.NoError(t, job.Validate())

	require.Equal(t, 500, job.Frames.Total)
	require.Equal(t, "$", job.Template.Marker)
	require.Equal(t, 500*time.Millisecond, job.Halting.PollInterval)
	require.Equal(t, 5*time.Second, job.Halting.Deadline)
	require.Equal(t, "water", job.Output.Prefix)
	require.Equal(t, scene.FailOnMissing, job.MissingFragmentPolicy())
}

func TestLoadWithOverrides(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := writeFile(t, tmpDir, "job.yaml", `
frames:
  total: 24
template:
  path: ./waves/modele.scn
  fragments:
    - scene.objects.sea.vertices
    - scene.objects.sea.faces
    - scene.objects.sea.uvs
halting:
  poll_interval: 250ms
output:
  prefix: sea
engine:
  type: sim
  console:
    binary: /opt/luxcore/luxcoreconsole
`)

	overridesPath := writeFile(t, tmpDir, "overrides.yaml", `
frames:
  first: 12
template:
  fragments:
    - scene.objects.sea.vertices
halting:
  deadline: 1m30s
engine:
  console:
    args: ["-D", "batch.halttime", "60"]
`)

	job, err := NewLoader(LoadOptions{ConfigPath: configPath, OverridesPath: overridesPath}).Load()
	require.NoError(t, err)
	require.NoError(t, job.Validate())

	require.Equal(t, Frames{Total: 24, First: 12}, job.Frames)
	require.Equal(t, "./waves/modele.scn", job.Template.Path)
	require.Equal(t, "./render/render.scn", job.Template.WorkingPath)
	require.Equal(t, []string{"scene.objects.sea.vertices"}, job.Template.Fragments)
	require.Equal(t, 250*time.Millisecond, job.Halting.PollInterval)
	require.Equal(t, 90*time.Second, job.Halting.Deadline)
	require.True(t, job.Halting.UseEngineBudget)
	require.Equal(t, "sea", job.Output.Prefix)
	require.Equal(t, "images", job.Output.Dir)
	require.Equal(t, EngineSim, job.Engine.Type)
	require.Equal(t, "/opt/luxcore/luxcoreconsole", job.Engine.Console.Binary)
	require.Equal(t, []string{"-D", "batch.halttime", "60"}, job.Engine.Console.Args)
	require.Equal(t, 10*time.Second, job.Engine.Console.StopGrace)
}

func TestLoadMissingOverridesIsIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeFile(t, tmpDir, "job.yaml", "frames:\n  total: 3\n")

	job, err := NewLoader(LoadOptions{
		ConfigPath:    configPath,
		OverridesPath: filepath.Join(tmpDir, "missing.yaml"),
	}).Load()
	require.NoError(t, err)
	require.Equal(t, 3, job.Frames.Total)
}

func TestLoadSchemaViolations(t *testing.T) {
	specs := []string{
		"frames:\n  total: 0\n",
		"frames:\n  totl: 10\n",
		"halting:\n  deadline: 5\n",
		"halting:\n  deadline: soon\n",
		"template:\n  marker: '{{}}'\n",
		"template:\n  missing_fragment: ignore\n",
		"template:\n  fragments: [vertices]\n",
		"batch:\n  on_failure: retry\n",
		"engine:\n  type: cycles\n",
		"log:\n  level: loud\n",
	}

	for specIndex, content := range specs {
		path := writeFile(t, t.TempDir(), "job.yaml", content)
		_, err := NewLoader(LoadOptions{ConfigPath: path}).Load()
		require.ErrorIs(t, err, ErrInvalidJob, "[spec %d] %q", specIndex, content)
	}
}

func TestLoadErrors(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := NewLoader(LoadOptions{ConfigPath: filepath.Join(tmpDir, "missing.yaml")}).Load()
	require.ErrorIs(t, err, os.ErrNotExist)

	path := writeFile(t, tmpDir, "broken.yaml", "frames: [total\n")
	_, err = NewLoader(LoadOptions{ConfigPath: path}).Load()
	require.ErrorContains(t, err, "failed to parse YAML")
}

func TestMergeConfigs(t *testing.T) {
	base := map[string]interface{}{
		"frames": map[string]interface{}{"total": 500, "first": 0},
		"engine": map[string]interface{}{"console": map[string]interface{}{"args": []interface{}{"-a"}}},
		"output": "images",
	}
	override := map[string]interface{}{
		"frames": map[string]interface{}{"first": 10},
		"engine": map[string]interface{}{"console": map[string]interface{}{"args": []interface{}{"-b", "-c"}}},
		"output": map[string]interface{}{"dir": "out"},
	}

	merged := mergeConfigs(base, override)
	require.Equal(t, map[string]interface{}{
		"frames": map[string]interface{}{"total": 500, "first": 10},
		"engine": map[string]interface{}{"console": map[string]interface{}{"args": []interface{}{"-b", "-c"}}},
		"output": map[string]interface{}{"dir": "out"},
	}, merged)
}
