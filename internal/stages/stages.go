// Package stages wires the built-in pipeline stages into a registry.
package stages

import (
	"github.com/amin-amout/agentpro/internal/stage"
	"github.com/amin-amout/agentpro/internal/stages/architecture"
	"github.com/amin-amout/agentpro/internal/stages/audit"
	"github.com/amin-amout/agentpro/internal/stages/business"
	"github.com/amin-amout/agentpro/internal/stages/developer"
	documentation "github.com/amin-amout/agentpro/internal/stages/documentation"
	"github.com/amin-amout/agentpro/internal/stages/qa"
)

// Names lists the canonical pipeline stages in declaration order.
var Names = []string{
	"business",
	"architecture",
	"developer",
	"qa",
	"audit",
	"documentation",
}

// RegisterBuiltins installs every built-in stage factory into the
// provided registry.
func RegisterBuiltins(reg *stage.Registry) {
	if reg == nil {
		return
	}
	business.Register(reg)
	architecture.Register(reg)
	developer.Register(reg)
	qa.Register(reg)
	audit.Register(reg)
	documentation.Register(reg)
}
