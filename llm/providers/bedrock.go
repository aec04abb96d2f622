//go:build bedrock

package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
)

const bedrockDefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// BedrockClient implements llm.Client against AWS Bedrock's Converse API. It is only
// compiled in with the "bedrock" build tag, matching the teacher's own opt-in pattern
// for cloud-specific vendor clients that pull in their SDK's dependency footprint.
type BedrockClient struct {
	runtime *bedrockruntime.Client
	logger  core.Logger
	model   string
}

// NewBedrockClient creates a Bedrock client for the given region using the default AWS
// credential chain (environment, shared config, IAM role).
func NewBedrockClient(ctx context.Context, region string, logger core.Logger) (*BedrockClient, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}
	return &BedrockClient{
		runtime: bedrockruntime.NewFromConfig(cfg),
		logger:  logger,
		model:   bedrockDefaultModel,
	}, nil
}

func (c *BedrockClient) Name() string { return "bedrock" }

func (c *BedrockClient) Complete(ctx context.Context, req llm.CompletionRequest, apiKeyOverride string) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var system []types.SystemContentBlock
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	maxTokens := int32(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1000
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	c.logger.Debug("llm request", map[string]interface{}{"provider": "bedrock", "model": model})

	callCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	out, err := c.runtime.Converse(callCtx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		System:   system,
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(temperature),
		},
	})
	if err != nil {
		c.logger.Error("llm provider error", map[string]interface{}{"provider": "bedrock", "error": err.Error()})
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	var text string
	if msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				text += textBlock.Value
			}
		}
	}

	finish := llm.FinishStop
	if out.StopReason == types.StopReasonMaxTokens {
		finish = llm.FinishLength
	}

	usage := llm.Usage{}
	if out.Usage != nil {
		usage.PromptTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.CompletionTokens = int(aws.ToInt32(out.Usage.OutputTokens))
		usage.TotalTokens = int(aws.ToInt32(out.Usage.TotalTokens))
	}

	return &llm.CompletionResponse{
		Content:      text,
		Model:        model,
		Provider:     "bedrock",
		Usage:        usage,
		FinishReason: finish,
	}, nil
}
