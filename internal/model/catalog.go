// Package model resolves, fetches, and caches speech recognition models.
package model

import "fmt"

// Info describes one whisper.cpp model preset.
type Info struct {
	ID        string
	SizeLabel string
}

var catalog = []Info{
	{ID: "tiny", SizeLabel: "~75 MB"},
	{ID: "tiny.en", SizeLabel: "~75 MB"},
	{ID: "base", SizeLabel: "~142 MB"},
	{ID: "base.en", SizeLabel: "~142 MB"},
	{ID: "small", SizeLabel: "~466 MB"},
	{ID: "small.en", SizeLabel: "~466 MB"},
	{ID: "medium", SizeLabel: "~1.5 GB"},
	{ID: "medium.en", SizeLabel: "~1.5 GB"},
	{ID: "large-v2", SizeLabel: "~2.9 GB"},
	{ID: "large-v3", SizeLabel: "~2.9 GB"},
	{ID: "large-v3-turbo", SizeLabel: "~1.6 GB"},
}

// modeSuffix maps a compute mode to the ggml artifact variant. float32
// shares the f16 artifact: the repository does not distribute f32 weights
// and the engine upconverts at load time.
var modeSuffix = map[string]string{
	"int8":    "-q8_0",
	"float16": "",
	"float32": "",
}

// Catalog returns the known model presets.
func Catalog() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// KnownModel reports whether id is a catalog model.
func KnownModel(id string) bool {
	for _, m := range catalog {
		if m.ID == id {
			return true
		}
	}
	return false
}

// KnownComputeMode reports whether mode is supported.
func KnownComputeMode(mode string) bool {
	_, ok := modeSuffix[mode]
	return ok
}

// FileName returns the ggml artifact name for a model/compute-mode pair.
func FileName(id, mode string) string {
	return fmt.Sprintf("ggml-%s%s.bin", id, modeSuffix[mode])
}
