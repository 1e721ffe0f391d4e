package extract

import "github.com/theirongolddev/ccdash/internal/model"

// Registry maps tool kind names to extractors. It is built once and read
// concurrently without locking.
type Registry struct {
	byKind   map[string]Extractor
	fallback Extractor
}

// spawnKinds are tool names that delegate work to a subagent.
var spawnKinds = map[string]bool{
	"Task":  true,
	"Agent": true,
}

// IsSpawn reports whether a tool kind starts a subagent.
func IsSpawn(kind string) bool {
	return spawnKinds[kind]
}

// NewRegistry returns the registry of built-in extractors.
func NewRegistry() *Registry {
	r := &Registry{
		byKind:   make(map[string]Extractor),
		fallback: Generic,
	}

	r.byKind["Bash"] = Bash
	r.byKind["Read"] = Read
	r.byKind["Write"] = Write
	r.byKind["Edit"] = Edit

	r.byKind["Grep"] = Grep
	r.byKind["Glob"] = Glob

	for kind := range taskOperations {
		r.byKind[kind] = Task
	}
	r.byKind["TodoWrite"] = Todo

	for _, kind := range []string{
		"Skill", "WebSearch", "WebFetch", "AskUserQuestion",
		"EnterPlanMode", "ExitPlanMode", "NotebookEdit", "TaskStop",
	} {
		r.byKind[kind] = Special
	}
	for kind := range spawnKinds {
		r.byKind[kind] = Special
	}

	return r
}

// Lookup returns the extractor for kind, or the generic fallback.
func (r *Registry) Lookup(kind string) Extractor {
	if e, ok := r.byKind[kind]; ok {
		return e
	}
	return r.fallback
}

// Extract dispatches b to the extractor for its kind.
func (r *Registry) Extract(b Block, meta Meta, opts Options) (model.Invocation, error) {
	return r.Lookup(b.Name).Extract(b, meta, opts)
}

// known reports whether kind has a dedicated extractor.
func (r *Registry) known(kind string) bool {
	_, ok := r.byKind[kind]
	return ok
}
