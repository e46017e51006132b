package proxy

import (
	"path"
	"regexp"
	"strings"
)

// TransformConfig is loaded once at startup and passed by reference; the
// transform functions never mutate their input payloads.
type TransformConfig struct {
	ForceReasoningEnabled       bool
	ForceReasoningEffort        string
	ForceReasoningModelPatterns []string
	ForceReasoningOverride      bool

	EnableSystemInjectionTag bool
	SystemInjectionTagName   string
}

func modelMatches(model string, patterns []string) bool {
	if model == "" {
		return false
	}
	model = strings.TrimSpace(model)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ok, err := path.Match(p, model); err == nil && ok {
			return true
		}
	}
	return false
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// ApplyProviderTransforms forces the reasoning flag for openrouter models
// matching the configured glob patterns. Existing reasoning settings win
// unless override is enabled.
func ApplyProviderTransforms(payload map[string]any, provider, model string, cfg TransformConfig) map[string]any {
	out := copyPayload(payload)

	if provider != "openrouter" {
		return out
	}
	if !cfg.ForceReasoningEnabled {
		return out
	}
	if !modelMatches(model, cfg.ForceReasoningModelPatterns) {
		return out
	}

	existing, hasReasoning := out["reasoning"].(map[string]any)
	if hasReasoning && !cfg.ForceReasoningOverride {
		return out
	}

	reasoning := make(map[string]any)
	if hasReasoning {
		for k, v := range existing {
			reasoning[k] = v
		}
	}
	reasoning["enabled"] = true
	if cfg.ForceReasoningEffort != "" {
		reasoning["effort"] = cfg.ForceReasoningEffort
	}

	out["reasoning"] = reasoning
	return out
}

// ApplyInjectionTag extracts the configured tag's inner text from every
// system message, strips the tags, and appends the extracts to the latest
// message's content.
func ApplyInjectionTag(payload map[string]any, cfg TransformConfig) map[string]any {
	out := copyPayload(payload)

	if !cfg.EnableSystemInjectionTag || cfg.SystemInjectionTagName == "" {
		return out
	}

	rawMsgs, ok := out["messages"].([]any)
	if !ok || len(rawMsgs) == 0 {
		return out
	}

	tag := regexp.QuoteMeta(cfg.SystemInjectionTagName)
	re := regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)

	msgs := make([]any, len(rawMsgs))
	copy(msgs, rawMsgs)

	var extracts []string
	for i, raw := range msgs {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		if role != "system" {
			continue
		}
		content, _ := m["content"].(string)
		matches := re.FindAllStringSubmatch(content, -1)
		if len(matches) == 0 {
			continue
		}
		for _, match := range matches {
			if inner := strings.TrimSpace(match[1]); inner != "" {
				extracts = append(extracts, inner)
			}
		}
		stripped := strings.TrimSpace(re.ReplaceAllString(content, ""))
		mm := make(map[string]any, len(m))
		for k, v := range m {
			mm[k] = v
		}
		mm["content"] = stripped
		msgs[i] = mm
	}

	if len(extracts) == 0 {
		return out
	}

	last, ok := msgs[len(msgs)-1].(map[string]any)
	if ok {
		content, _ := last["content"].(string)
		mm := make(map[string]any, len(last))
		for k, v := range last {
			mm[k] = v
		}
		mm["content"] = strings.TrimSpace(content + "\n\n" + strings.Join(extracts, "\n\n"))
		msgs[len(msgs)-1] = mm
	}

	out["messages"] = msgs
	return out
}
