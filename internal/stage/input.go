package stage

import (
	"fmt"
	"strings"
)

// RequireArtifacts checks that the merged input carries every named
// dependency artifact. Used by ValidateInput implementations; a failure
// here means upstream wiring is broken, not that the completion was bad,
// so it is a plain error rather than a ValidationError.
func RequireArtifacts(in Input, names ...string) error {
	var missing []string
	for _, name := range names {
		if len(in.Artifacts[name]) == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("stage: input missing dependency artifacts: %s", strings.Join(missing, ", "))
	}
	return nil
}
