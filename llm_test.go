package numguess_test

import (
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/numguess"
	"github.com/m-mizutani/numguess/llm/claude"
	"github.com/m-mizutani/numguess/llm/gemini"
	"github.com/m-mizutani/numguess/llm/openai"
)

func TestResponseText(t *testing.T) {
	var nilResp *numguess.Response
	gt.Equal(t, nilResp.Text(), "")
	gt.False(t, nilResp.HasData())

	resp := &numguess.Response{Texts: []string{"Not", "correct."}}
	gt.Equal(t, resp.Text(), "Not\ncorrect.")
	gt.True(t, resp.HasData())

	gt.False(t, (&numguess.Response{Texts: []string{"", " \n"}}).HasData())
	gt.False(t, (&numguess.Response{}).HasData())
}

func TestSessionConfig(t *testing.T) {
	gt.Equal(t, numguess.NewSessionConfig().SystemPrompt(), "")

	cfg := numguess.NewSessionConfig(numguess.WithSessionSystemPrompt("Answer briefly."))
	gt.Equal(t, cfg.SystemPrompt(), "Answer briefly.")
}

func TestTextInput(t *testing.T) {
	in := numguess.Text("Is the number 3?")
	gt.Equal(t, in.String(), "Is the number 3?")
	gt.Equal(t, in.LogValue().String(), "Is the number 3?")
}

func newOpenAIClient(t *testing.T) numguess.LLMClient {
	apiKey, ok := os.LookupEnv("TEST_OPENAI_API_KEY")
	if !ok {
		t.Skip("TEST_OPENAI_API_KEY is not set")
	}

	client, err := openai.New(t.Context(), apiKey)
	gt.NoError(t, err)
	return client
}

func newClaudeClient(t *testing.T) numguess.LLMClient {
	apiKey, ok := os.LookupEnv("TEST_CLAUDE_API_KEY")
	if !ok {
		t.Skip("TEST_CLAUDE_API_KEY is not set")
	}

	client, err := claude.New(t.Context(), apiKey)
	gt.NoError(t, err)
	return client
}

func newGeminiClient(t *testing.T) numguess.LLMClient {
	apiKey, ok := os.LookupEnv("TEST_GEMINI_API_KEY")
	if !ok {
		t.Skip("TEST_GEMINI_API_KEY is not set")
	}

	client, err := gemini.New(t.Context(), apiKey)
	gt.NoError(t, err)
	return client
}

// TestLiveExperiment plays a few short games against each real model. Models may misbehave, so only the
// accounting is checked, not the distribution.
func TestLiveExperiment(t *testing.T) {
	testFn := func(t *testing.T, client numguess.LLMClient) {
		r := numguess.Range{Low: 1, High: 3}
		result, err := numguess.New(client, numguess.WithConcurrency(2)).Run(t.Context(), 2, r)
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Status, numguess.StatusCompleted)
		gt.Equal(t, result.TrialsCompleted, 2)
		gt.Equal(t, result.Matched()+result.TotalAnomalies(), 2)
		gt.Equal(t, result.Anomalies[numguess.AnomalyConversationFailure], 0)
	}

	t.Run("openai", func(t *testing.T) {
		testFn(t, newOpenAIClient(t))
	})

	t.Run("claude", func(t *testing.T) {
		testFn(t, newClaudeClient(t))
	})

	t.Run("gemini", func(t *testing.T) {
		testFn(t, newGeminiClient(t))
	})
}
