package media

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const videoModel = "gemini-2.0-flash"

// Upload processing on the files API usually finishes within a minute; ten
// minutes of polling covers long videos before we give up.
const (
	videoPollAttempts = 60
	videoPollDelay    = 10 * time.Second
)

// VideoSummarizer summarizes videos with Gemini. The file is uploaded to the
// files API, polled until processed and then fed to the model.
type VideoSummarizer struct {
	client *genai.Client
	prompt string

	pollAttempts int
	pollDelay    time.Duration
	getFile      func(ctx context.Context, name string) (*genai.File, error)
}

func NewVideoSummarizer(ctx context.Context, apiKey, prompt string) (*VideoSummarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	s := &VideoSummarizer{
		client:       client,
		prompt:       prompt,
		pollAttempts: videoPollAttempts,
		pollDelay:    videoPollDelay,
	}
	s.getFile = func(ctx context.Context, name string) (*genai.File, error) {
		return client.Files.Get(ctx, name, nil)
	}
	return s, nil
}

func (s *VideoSummarizer) Summarize(ctx context.Context, path, mimeType string) (string, error) {
	file, err := s.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}

	file, err = s.waitActive(ctx, file)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(file.URI, mimeType),
			genai.NewPartFromText(s.prompt),
		}, genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(ctx, videoModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("summarize video: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("summarize video: empty response")
	}
	return text, nil
}

// waitActive polls the files API until the upload finishes processing. The
// attempt count is fixed; exhausting it is an error, not a hang.
func (s *VideoSummarizer) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		switch file.State {
		case genai.FileStateActive:
			return file, nil
		case genai.FileStateFailed:
			return nil, fmt.Errorf("video upload processing failed: %s", file.Name)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollDelay):
		}

		var err error
		file, err = s.getFile(ctx, file.Name)
		if err != nil {
			return nil, fmt.Errorf("poll video upload: %w", err)
		}
	}
	return nil, fmt.Errorf("video upload not processed after %d attempts", s.pollAttempts)
}
