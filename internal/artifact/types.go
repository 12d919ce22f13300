package artifact

import "time"

// Artifact is one named unit of stage output. Content is opaque to the
// store; stages decide the shape of what they write.
type Artifact struct {
	Stage      string
	Name       string
	Content    []byte
	ProducedAt time.Time
}

// Map groups artifact contents by name. This is the currency stages trade
// in: dependency outputs arrive as a Map and execution results leave as one.
type Map map[string][]byte

// Clone returns a deep copy so callers can mutate without aliasing.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for name, content := range m {
		buf := make([]byte, len(content))
		copy(buf, content)
		out[name] = buf
	}
	return out
}

// Names returns the artifact names present in the map, unsorted.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}
