package types

// TaskType classifies what a request is trying to accomplish. It is either
// supplied by the caller or inferred from the message text.
type TaskType string

const (
	TaskSimpleQA         TaskType = "simple_qa"
	TaskCodeGeneration   TaskType = "code_generation"
	TaskComplexReasoning TaskType = "complex_reasoning"
	TaskSummarization    TaskType = "summarization"
	TaskClassification   TaskType = "classification"
	TaskCreativeWriting  TaskType = "creative_writing"
	TaskEmbedding        TaskType = "embedding"
)

// TaskComplexity is the rough effort class of a request.
type TaskComplexity string

const (
	ComplexitySimple  TaskComplexity = "simple"
	ComplexityMedium  TaskComplexity = "medium"
	ComplexityComplex TaskComplexity = "complex"
)

// LatencyClass maps to a maximum acceptable average response latency.
type LatencyClass string

const (
	LatencyLow    LatencyClass = "low"    // interactive, <=500ms
	LatencyMedium LatencyClass = "medium" // default, <=2000ms
	LatencyHigh   LatencyClass = "high"   // batch-ish, <=5000ms
)

// PrivacyLevel constrains which providers may see the request.
// PrivacyRestricted mandates a local/on-prem provider.
type PrivacyLevel string

const (
	PrivacyPublic       PrivacyLevel = "public"
	PrivacyInternal     PrivacyLevel = "internal"
	PrivacyConfidential PrivacyLevel = "confidential"
	PrivacyRestricted   PrivacyLevel = "restricted"
)

// Requirements is the per-request distilled description of what the answer
// must come from. It is derived by the orchestrator, never supplied raw.
type Requirements struct {
	TaskType          TaskType           `json:"task_type"`
	TaskComplexity    TaskComplexity     `json:"task_complexity"`
	ContextWindow     int                `json:"context_window"` // estimated tokens
	Latency           LatencyClass       `json:"latency"`
	Privacy           PrivacyLevel       `json:"privacy"`
	Capabilities      []Capability       `json:"capabilities"`
	MaxCost           float64            `json:"max_cost,omitempty"` // USD per 1M input tokens; 0 = unset
	PreferredProvider string             `json:"preferred_provider,omitempty"`
	PolicyWeights     map[string]float64 `json:"policy_weights,omitempty"`
}

// RequiresCapability reports whether cap is among the required capabilities.
func (r *Requirements) RequiresCapability(cap Capability) bool {
	for _, c := range r.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
