package ocr

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	textracttypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"

	"github.com/auditflow/auditflow/pkg/providers"
)

// textractAPI is the slice of the Textract client used here.
type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractClient uses synchronous AWS Textract text detection. Textract
// reports geometry already normalized to page dimensions.
type TextractClient struct {
	api textractAPI
}

// NewTextractClient loads AWS configuration from the default credentials
// chain.
func NewTextractClient(ctx context.Context, region string) (*TextractClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, providers.NewError(providers.KindUnavailable, "textract", "loading AWS config", err)
	}
	return &TextractClient{api: textract.NewFromConfig(awsCfg)}, nil
}

// Name implements providers.OCRClient.
func (c *TextractClient) Name() string { return "textract" }

// Extract implements providers.OCRClient.
func (c *TextractClient) Extract(ctx context.Context, content []byte, mimeType, language string) (*providers.Extraction, error) {
	output, err := c.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &textracttypes.Document{Bytes: content},
	})
	if err != nil {
		return nil, classifyTextract(err)
	}

	var text strings.Builder
	out := &providers.Extraction{}
	for _, block := range output.Blocks {
		if block.BlockType != textracttypes.BlockTypeLine || block.Text == nil {
			continue
		}
		if text.Len() > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(*block.Text)

		b := providers.Block{
			Text:       *block.Text,
			Page:       int(aws.ToInt32(block.Page)),
			Confidence: float64(aws.ToFloat32(block.Confidence)) / 100,
		}
		if b.Page == 0 {
			b.Page = 1
		}
		if block.Geometry != nil && block.Geometry.BoundingBox != nil {
			box := block.Geometry.BoundingBox
			b.X = float64(box.Left)
			b.Y = float64(box.Top)
			b.Width = float64(box.Width)
			b.Height = float64(box.Height)
		}
		out.Blocks = append(out.Blocks, b)
	}
	out.Text = text.String()
	return out, nil
}

func classifyTextract(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return providers.NewError(providers.KindTimeout, "textract", "detection timed out", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException", "LimitExceededException":
			return providers.NewError(providers.KindRateLimited, "textract", "throttled", err)
		case "InternalServerError":
			return providers.NewError(providers.KindUnavailable, "textract", "service unavailable", err)
		default:
			return providers.NewError(providers.KindInvalidRequest, "textract", "detection rejected", err)
		}
	}
	return providers.NewError(providers.KindUnavailable, "textract", "detection failed", err)
}
