package stage

import "github.com/amin-amout/agentpro/internal/artifact"

// MergeInputs builds a fan-in stage's effective input: the union of its
// dependencies' artifact maps, merged shallowly in declared-dependency
// order. When two dependencies produce an artifact with the same name the
// later-listed dependency wins.
func MergeInputs(dependsOn []string, byDependency map[string]artifact.Map) artifact.Map {
	merged := artifact.Map{}
	for _, dep := range dependsOn {
		for name, content := range byDependency[dep] {
			buf := make([]byte, len(content))
			copy(buf, content)
			merged[name] = buf
		}
	}
	return merged
}
