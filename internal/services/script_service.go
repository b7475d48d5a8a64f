package services

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// generatedScript mirrors the expected JSON from the model.
type generatedScript struct {
	ScriptCode string `json:"script_code"`
}

type resultSummary struct {
	Summary string `json:"summary"`
}

// ScriptGenerator is what the task services need from the AI layer.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, input, osType string) (string, error)
	Interpret(ctx context.Context, input, output, execError string) (string, error)
}

// ScriptService wraps the OpenAI client. If client is nil, generation
// is disabled and the operator's input is dispatched verbatim.
type ScriptService struct {
	client *openai.Client
}

// NewScriptService creates the service. Pass an empty apiKey to disable calls.
func NewScriptService(apiKey string) *ScriptService {
	if apiKey == "" {
		return &ScriptService{client: nil}
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &ScriptService{client: &c}
}

// GenerateScript turns a natural-language command into a shell script
// for the target OS: bash for linux/darwin, PowerShell for windows.
func (s *ScriptService) GenerateScript(ctx context.Context, input, osType string) (string, error) {
	// Feature disabled; treat the input as a literal command.
	if s.client == nil {
		return input, nil
	}

	shell := "bash"
	if osType == "windows" {
		shell = "PowerShell"
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"script_code": map[string]string{"type": "string"},
		},
		"required":             []string{"script_code"},
		"additionalProperties": false,
	}

	fn := shared.FunctionDefinitionParam{
		Name:        "write_ops_script",
		Description: openai.String("Return the runnable script implementing the requested operation."),
		Strict:      openai.Bool(true),
		Parameters:  schema,
	}

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(
				`You write %s scripts for remote server administration on %s hosts.
Return the script by calling write_ops_script(strict).
Rules:
1. The script must be non-interactive and safe to run unattended.
2. Print enough output that an operator can tell what happened.
3. Exit non-zero on failure.`, shell, osType)),
			openai.UserMessage(input),
		},
		Tools: []openai.ChatCompletionToolParam{{
			Function: fn,
		}},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: "write_ops_script",
				},
			},
		},
	}

	resp, err := s.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return "", fmt.Errorf("openai: no function call returned")
	}

	var out generatedScript
	if err := json.Unmarshal(
		[]byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments),
		&out,
	); err != nil {
		return "", fmt.Errorf("unmarshal generated script: %w", err)
	}
	if out.ScriptCode == "" {
		return "", fmt.Errorf("openai: empty script returned")
	}

	return out.ScriptCode, nil
}

// Interpret condenses an execution result into a one-paragraph summary
// for the dashboard. Disabled client yields an empty interpretation.
func (s *ScriptService) Interpret(ctx context.Context, input, output, execError string) (string, error) {
	if s.client == nil {
		return "", nil
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]string{"type": "string"},
		},
		"required":             []string{"summary"},
		"additionalProperties": false,
	}

	fn := shared.FunctionDefinitionParam{
		Name:        "summarize_execution",
		Description: openai.String("Return a short plain-language summary of the execution result."),
		Strict:      openai.Bool(true),
		Parameters:  schema,
	}

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(`You summarize server task results for an operations dashboard.
Call summarize_execution(strict) with a 1-3 sentence summary.
Mention the error cause first if one is present.`),
			openai.UserMessage(fmt.Sprintf(
				"Requested operation:\n%s\n\nStdout:\n%s\n\nError:\n%s",
				input, output, execError)),
		},
		Tools: []openai.ChatCompletionToolParam{{
			Function: fn,
		}},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: "summarize_execution",
				},
			},
		},
	}

	resp, err := s.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return "", fmt.Errorf("openai: no function call returned")
	}

	var out resultSummary
	if err := json.Unmarshal(
		[]byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments),
		&out,
	); err != nil {
		return "", fmt.Errorf("unmarshal result summary: %w", err)
	}

	return out.Summary, nil
}
