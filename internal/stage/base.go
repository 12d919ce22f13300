package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amin-amout/agentpro/internal/gateway"
	"github.com/amin-amout/agentpro/internal/prompt"
)

// Deps carries the shared collaborators a stage needs. The gateway owns
// transport retry; prompts are resolved per stage name.
type Deps struct {
	Gateway gateway.Gateway
	Prompts prompt.Provider
	Logger  *zap.Logger
}

func (d Deps) validate() error {
	if d.Gateway == nil {
		return fmt.Errorf("stage: gateway is required")
	}
	if d.Prompts == nil {
		return fmt.Errorf("stage: prompt provider is required")
	}
	return nil
}

// Base provides common plumbing for stages: descriptor storage plus the
// single logical generation call and completion decoding.
type Base struct {
	descriptor Descriptor
	deps       Deps
	logger     *zap.Logger
}

// NewBase seeds the helper. The descriptor and dependency set are fixed at
// construction; graph membership is decided by the registry.
func NewBase(descriptor Descriptor, deps Deps) (Base, error) {
	if err := descriptor.Validate(); err != nil {
		return Base{}, err
	}
	if err := deps.validate(); err != nil {
		return Base{}, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return Base{descriptor: descriptor, deps: deps, logger: logger}, nil
}

// Descriptor implements Stage.Descriptor.
func (b *Base) Descriptor() Descriptor {
	return b.descriptor
}

// Logger returns the stage logger.
func (b *Base) Logger() *zap.Logger {
	return b.logger
}

// Generate performs the stage's one logical call to the generation
// gateway. Transport retries happen inside the gateway client; any error
// that comes back here is final for this invocation.
func (b *Base) Generate(ctx context.Context, userPrompt string) (string, error) {
	system, err := b.deps.Prompts.System(b.descriptor.Name)
	if err != nil {
		return "", err
	}
	resp, err := b.deps.Gateway.Complete(ctx, gateway.Request{
		System: system,
		Prompt: userPrompt,
	})
	if err != nil {
		return "", err
	}
	b.logger.Debug("completion received",
		zap.String("stage", b.descriptor.Name),
		zap.Int("output_tokens", resp.OutputTokens))
	return resp.Content, nil
}

// DecodeCompletion parses the completion as a JSON object, tolerating
// markdown code fences around the payload.
func (b *Base) DecodeCompletion(content string) (map[string]any, error) {
	cleaned := stripFences(content)
	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, &ValidationError{
			Stage:  b.descriptor.Name,
			Reason: fmt.Sprintf("completion is not a JSON object: %v", err),
		}
	}
	return payload, nil
}

// RequireKeys checks the decoded completion against the stage's expected
// output shape.
func (b *Base) RequireKeys(payload map[string]any, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if _, ok := payload[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{
			Stage:   b.descriptor.Name,
			Reason:  "completion missing expected keys",
			Missing: missing,
		}
	}
	return nil
}

// EncodeJSON renders a payload as the indented JSON stages persist.
func EncodeJSON(payload any) ([]byte, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("stage: encode artifact: %w", err)
	}
	return append(encoded, '\n'), nil
}

// DecodeArtifact parses a dependency artifact as a JSON object.
func DecodeArtifact(name string, content []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, fmt.Errorf("stage: parse dependency artifact %s: %w", name, err)
	}
	return payload, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, from a completion body.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
