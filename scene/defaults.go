package scene

import _ "embed"

// The static fragment used when a job does not supply one: air volume,
// camera, sky light, ground plane and the glass material of the water mesh.
//
//go:embed defaults/static.scn
var DefaultStaticFragment string

// The render configuration used when a job does not supply one.
//
//go:embed defaults/render.cfg
var DefaultRenderConfiguration string

// Fragment keys queried from the preliminary parse by default.
var DefaultFragmentKeys = []string{
	"scene.objects.LUXCORE_OBJECT_5.vertices",
	"scene.objects.LUXCORE_OBJECT_5.faces",
}
