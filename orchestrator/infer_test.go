package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/vaamx/modelmux/registry"
	"github.com/vaamx/modelmux/types"
)

func newBareService() *Service {
	return New(Config{ComplexTaskProvider: "anthropic"}, registry.New(zap.NewNop()), nil, nil, zap.NewNop())
}

func TestInferRequirements_TaskType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want types.TaskType
	}{
		{"code keyword", "write a function that sorts a list", types.TaskCodeGeneration},
		{"reasoning keyword", "analyze the tradeoffs step by step", types.TaskComplexReasoning},
		{"summarization keyword", "summarize this article for me", types.TaskSummarization},
		{"classification keyword", "classify these reviews by sentiment", types.TaskClassification},
		{"chinese code keyword", "帮我写代码处理日志", types.TaskCodeGeneration},
		{"default", "what is the capital of France", types.TaskSimpleQA},
	}

	svc := newBareService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := svc.inferRequirements([]types.Message{types.NewUserMessage(tt.text)}, &types.Options{}, false)
			assert.Equal(t, tt.want, req.TaskType)
		})
	}
}

func TestInferRequirements_ExplicitOptionsWin(t *testing.T) {
	svc := newBareService()
	req := svc.inferRequirements(
		[]types.Message{types.NewUserMessage("write a function")},
		&types.Options{
			TaskType:       types.TaskCreativeWriting,
			TaskComplexity: types.ComplexityComplex,
			Urgency:        types.LatencyLow,
			Privacy:        types.PrivacyConfidential,
		}, false)

	assert.Equal(t, types.TaskCreativeWriting, req.TaskType)
	assert.Equal(t, types.ComplexityComplex, req.TaskComplexity)
	assert.Equal(t, types.LatencyLow, req.Latency)
	assert.Equal(t, types.PrivacyConfidential, req.Privacy)
}

func TestInferRequirements_Complexity(t *testing.T) {
	svc := newBareService()

	t.Run("short message is simple", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")}, &types.Options{}, false)
		assert.Equal(t, types.ComplexitySimple, req.TaskComplexity)
	})

	t.Run("over 1000 chars is medium", func(t *testing.T) {
		long := strings.Repeat("tell me more ", 100)
		req := svc.inferRequirements([]types.Message{types.NewUserMessage(long)}, &types.Options{}, false)
		assert.Equal(t, types.ComplexityMedium, req.TaskComplexity)
	})

	t.Run("over 5000 chars is complex", func(t *testing.T) {
		long := strings.Repeat("tell me more ", 500)
		req := svc.inferRequirements([]types.Message{types.NewUserMessage(long)}, &types.Options{}, false)
		assert.Equal(t, types.ComplexityComplex, req.TaskComplexity)
	})

	t.Run("tools force complex", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")},
			&types.Options{Tools: []types.ToolSchema{{Name: "t"}}}, false)
		assert.Equal(t, types.ComplexityComplex, req.TaskComplexity)
	})

	t.Run("system prompt forces complex", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")},
			&types.Options{SystemPrompt: "be terse"}, false)
		assert.Equal(t, types.ComplexityComplex, req.TaskComplexity)
	})
}

func TestInferRequirements_Capabilities(t *testing.T) {
	svc := newBareService()

	t.Run("chat always present", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")}, &types.Options{}, false)
		assert.Contains(t, req.Capabilities, types.CapChat)
	})

	t.Run("tools add tool_calling", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")},
			&types.Options{Tools: []types.ToolSchema{{Name: "t"}}}, false)
		assert.Contains(t, req.Capabilities, types.CapToolCalling)
	})

	t.Run("streaming adds streaming", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")}, &types.Options{}, true)
		assert.Contains(t, req.Capabilities, types.CapStreaming)
	})

	t.Run("image attachment adds vision", func(t *testing.T) {
		msg := types.NewUserMessage("look").WithImages([]types.ImageContent{{Type: "url", URL: "http://x/y.png"}})
		req := svc.inferRequirements([]types.Message{msg}, &types.Options{}, false)
		assert.Contains(t, req.Capabilities, types.CapVision)
	})

	t.Run("image keyword adds vision", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("Describe this image")}, &types.Options{}, false)
		assert.Contains(t, req.Capabilities, types.CapVision)
	})
}

func TestInferRequirements_PreferredProvider(t *testing.T) {
	svc := newBareService()

	t.Run("restricted privacy prefers local", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hi")},
			&types.Options{Privacy: types.PrivacyRestricted}, false)
		assert.Equal(t, "local", req.PreferredProvider)
	})

	t.Run("code tasks prefer configured provider", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("implement a parser")}, &types.Options{}, false)
		assert.Equal(t, "anthropic", req.PreferredProvider)
	})

	t.Run("simple qa leaves it unset", func(t *testing.T) {
		req := svc.inferRequirements([]types.Message{types.NewUserMessage("hello")}, &types.Options{}, false)
		assert.Empty(t, req.PreferredProvider)
	})
}

func TestInferRequirements_ContextEstimate(t *testing.T) {
	svc := newBareService()

	req := svc.inferRequirements([]types.Message{types.NewUserMessage("hello world")}, &types.Options{}, false)
	// 估算 = 输入 token + 输出预留 + 余量,必然大于预留本身
	assert.Greater(t, req.ContextWindow, defaultOutputReserve)

	capped := svc.inferRequirements([]types.Message{types.NewUserMessage("hello world")},
		&types.Options{MaxTokens: 10}, false)
	assert.Less(t, capped.ContextWindow, req.ContextWindow)
}

func TestInferEmbeddingRequirements(t *testing.T) {
	svc := newBareService()

	req := svc.inferEmbeddingRequirements([]string{"some text"}, &types.Options{})
	assert.Equal(t, types.TaskEmbedding, req.TaskType)
	assert.Equal(t, []types.Capability{types.CapEmbedding}, req.Capabilities)
	assert.Equal(t, types.PrivacyInternal, req.Privacy)

	restricted := svc.inferEmbeddingRequirements([]string{"x"}, &types.Options{Privacy: types.PrivacyRestricted})
	assert.Equal(t, "local", restricted.PreferredProvider)
}
