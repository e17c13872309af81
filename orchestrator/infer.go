package orchestrator

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/vaamx/modelmux/types"
)

const (
	complexCharThreshold = 5000
	mediumCharThreshold  = 1000

	// Output reserve assumed when the caller did not cap max tokens, plus a
	// margin for role markers and tool schemas the char estimate misses.
	defaultOutputReserve = 1024
	contextSafetyMargin  = 256
)

// taskKeywords drives the task-type heuristic. First match in declaration
// order wins; matching is case-insensitive over the concatenated text.
var taskKeywords = []struct {
	task     types.TaskType
	keywords []string
}{
	{types.TaskCodeGeneration, []string{
		"code", "function", "implement", "debug", "refactor", "compile",
		"写代码", "函数", "实现", "脚本",
	}},
	{types.TaskComplexReasoning, []string{
		"analyze", "explain why", "reason", "step by step", "prove", "compare and contrast",
		"分析", "推理", "论证",
	}},
	{types.TaskSummarization, []string{
		"summarize", "summary", "tl;dr", "condense", "shorten",
		"总结", "概括", "摘要",
	}},
	{types.TaskClassification, []string{
		"classify", "categorize", "which category", "label the",
		"分类", "归类",
	}},
}

// visionKeywords indicate image content when no image part is attached.
var visionKeywords = []string{"image", "picture", "photo", "screenshot", "图片", "照片", "截图"}

// tokenEstimator estimates token counts, tiktoken when the encoding is
// available, chars/4 otherwise. The encoding load parses a large BPE table,
// so it happens once.
type tokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (e *tokenEstimator) estimate(text string) int {
	e.once.Do(func() {
		// cl100k_base covers the gpt-4 family and is close enough for the
		// other backends; a load failure falls back to the char heuristic.
		e.enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// inferRequirements derives routing requirements from the request. Explicit
// option fields always win over heuristics.
func (s *Service) inferRequirements(messages []types.Message, opts *types.Options, streaming bool) *types.Requirements {
	var text strings.Builder
	for _, m := range messages {
		text.WriteString(m.Content)
		text.WriteString("\n")
	}
	lower := strings.ToLower(text.String())
	chars := text.Len()

	req := &types.Requirements{
		TaskType:       opts.TaskType,
		TaskComplexity: opts.TaskComplexity,
		Latency:        opts.Urgency,
		Privacy:        opts.Privacy,
		MaxCost:        opts.MaxCost,
		PolicyWeights:  opts.PolicyWeights,
	}

	if req.TaskType == "" {
		req.TaskType = classifyTask(lower)
	}
	if req.TaskComplexity == "" {
		switch {
		case chars > complexCharThreshold || len(opts.Tools) > 0 || opts.SystemPrompt != "":
			req.TaskComplexity = types.ComplexityComplex
		case chars > mediumCharThreshold:
			req.TaskComplexity = types.ComplexityMedium
		default:
			req.TaskComplexity = types.ComplexitySimple
		}
	}
	if req.Latency == "" {
		req.Latency = types.LatencyMedium
	}
	if req.Privacy == "" {
		req.Privacy = types.PrivacyInternal
	}

	// Context estimate: input tokens + output reserve + margin.
	inputTokens := s.tokens.estimate(text.String())
	reserve := opts.MaxTokens
	if reserve <= 0 {
		reserve = defaultOutputReserve
	}
	req.ContextWindow = inputTokens + reserve + contextSafetyMargin

	req.Capabilities = []types.Capability{types.CapChat}
	if len(opts.Tools) > 0 {
		req.Capabilities = append(req.Capabilities, types.CapToolCalling)
	}
	if streaming {
		req.Capabilities = append(req.Capabilities, types.CapStreaming)
	}
	if hasImages(messages) || containsAny(lower, visionKeywords) {
		req.Capabilities = append(req.Capabilities, types.CapVision)
	}

	switch {
	case req.Privacy == types.PrivacyRestricted:
		req.PreferredProvider = s.cfg.LocalProvider
	case req.TaskType == types.TaskComplexReasoning || req.TaskType == types.TaskCodeGeneration:
		req.PreferredProvider = s.cfg.ComplexTaskProvider
	}

	return req
}

// inferEmbeddingRequirements is the embedding counterpart; only privacy,
// cost and the embedding capability matter for routing.
func (s *Service) inferEmbeddingRequirements(input []string, opts *types.Options) *types.Requirements {
	var chars int
	for _, in := range input {
		chars += len(in)
	}

	req := &types.Requirements{
		TaskType:       types.TaskEmbedding,
		TaskComplexity: types.ComplexitySimple,
		ContextWindow:  (chars+3)/4 + contextSafetyMargin,
		Latency:        types.LatencyMedium,
		Privacy:        opts.Privacy,
		MaxCost:        opts.MaxCost,
		Capabilities:   []types.Capability{types.CapEmbedding},
		PolicyWeights:  opts.PolicyWeights,
	}
	if req.Privacy == "" {
		req.Privacy = types.PrivacyInternal
	}
	if req.Privacy == types.PrivacyRestricted {
		req.PreferredProvider = s.cfg.LocalProvider
	}
	return req
}

func classifyTask(lower string) types.TaskType {
	for _, group := range taskKeywords {
		if containsAny(lower, group.keywords) {
			return group.task
		}
	}
	return types.TaskSimpleQA
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func hasImages(messages []types.Message) bool {
	for _, m := range messages {
		if m.HasImages() {
			return true
		}
	}
	return false
}
