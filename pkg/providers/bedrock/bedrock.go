// Package bedrock implements the LLM client contract on top of the AWS
// Bedrock Converse API using the default AWS credentials chain.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/auditflow/auditflow/pkg/providers"
)

// converseAPI is the slice of the Bedrock runtime client used here.
// Tests substitute a fake.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Config holds the connection settings for Bedrock.
type Config struct {
	// ModelID is the Bedrock model identifier, for example
	// anthropic.claude-3-5-sonnet-20241022-v2:0.
	ModelID string

	// Region selects the AWS region. Empty defers to the credentials chain.
	Region string
}

// Client implements providers.LLMClient via the Converse API.
type Client struct {
	api     converseAPI
	modelID string
}

// NewClient loads AWS configuration from the default credentials chain.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ModelID == "" {
		return nil, errors.New("model ID is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Client{
		api:     bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
	}, nil
}

// Name implements providers.LLMClient.
func (c *Client) Name() string { return "bedrock" }

// Model implements providers.LLMClient.
func (c *Client) Model() string { return c.modelID }

// Invoke implements providers.LLMClient.
func (c *Client) Invoke(ctx context.Context, req *providers.LLMRequest) (*providers.LLMResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		Messages: []bedrocktypes.Message{
			{
				Role: bedrocktypes.ConversationRoleUser,
				Content: []bedrocktypes.ContentBlock{
					&bedrocktypes.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
	}
	if req.System != "" {
		input.System = []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &bedrocktypes.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		if req.Temperature > 0 {
			cfg.Temperature = aws.Float32(float32(req.Temperature))
		}
		input.InferenceConfig = cfg
	}

	start := time.Now()
	output, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, classify(err)
	}

	var text string
	if output.Output != nil {
		if msg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage); ok {
			for _, block := range msg.Value.Content {
				if tb, ok := block.(*bedrocktypes.ContentBlockMemberText); ok {
					text += tb.Value
				}
			}
		}
	}
	if text == "" {
		return nil, providers.NewError(providers.KindUnavailable, "bedrock",
			fmt.Sprintf("response contained no text (stop reason %s, latency %dms)",
				output.StopReason, time.Since(start).Milliseconds()), nil)
	}

	resp := &providers.LLMResponse{Text: text}
	if output.Usage != nil {
		resp.Usage = providers.Usage{
			InputTokens:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

// classify maps AWS SDK failures onto typed provider errors.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return providers.NewError(providers.KindTimeout, "bedrock", "converse call timed out", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return providers.NewError(providers.KindRateLimited, "bedrock", "throttled", err)
		case "ServiceUnavailableException", "InternalServerException", "ModelNotReadyException":
			return providers.NewError(providers.KindUnavailable, "bedrock", "service unavailable", err)
		case "ModelTimeoutException":
			return providers.NewError(providers.KindTimeout, "bedrock", "model timed out", err)
		default:
			return providers.NewError(providers.KindInvalidRequest, "bedrock", "converse call rejected", err)
		}
	}
	return providers.NewError(providers.KindUnavailable, "bedrock", "converse call failed", err)
}
