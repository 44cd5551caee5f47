package media

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const imageModel = openai.ChatModelGPT4o

// ImageDescriber describes images and stickers with a vision model.
type ImageDescriber struct {
	client *openai.Client
	prompt string
}

func NewImageDescriber(apiKey, prompt string) *ImageDescriber {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &ImageDescriber{client: &client, prompt: prompt}
}

func (d *ImageDescriber) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: imageModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(d.prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("describe image: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
