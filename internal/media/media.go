// Package media turns inbound media messages into text: image and sticker
// description, audio transcription, video summarization and document parsing.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"strings"

	"github.com/nextlevelbuilder/wapipe/internal/blob"
	"github.com/nextlevelbuilder/wapipe/internal/wa"
)

// describer produces a textual description of an image.
type describer interface {
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// transcriber produces a transcript of an audio file.
type transcriber interface {
	Transcribe(ctx context.Context, path, mimeType string) (string, error)
}

// summarizer produces a summary of a video file.
type summarizer interface {
	Summarize(ctx context.Context, path, mimeType string) (string, error)
}

// parser extracts text from a document file.
type parser interface {
	Parse(ctx context.Context, path, mimeType, fileName string) (string, error)
}

// Processor downloads media through the chat transport, stages it in a
// scratch directory and dispatches to the processor for its kind. Documents
// that turn out to be audio or images by MIME type are re-routed to the
// matching processor.
type Processor struct {
	client  wa.Client
	blob    blob.Uploader // optional
	images  describer
	audio   transcriber
	video   summarizer
	docs    parser
	tempDir string
}

func NewProcessor(client wa.Client, uploader blob.Uploader, images describer, audio transcriber, video summarizer, docs parser, tempDir string) *Processor {
	return &Processor{
		client:  client,
		blob:    uploader,
		images:  images,
		audio:   audio,
		video:   video,
		docs:    docs,
		tempDir: tempDir,
	}
}

// Process resolves one media message into text. The scratch file is removed
// before returning, success or not.
func (p *Processor) Process(ctx context.Context, msg wa.Message) (string, error) {
	data, err := p.client.Download(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}

	path, err := p.stage(data, msg.Content.MimeType)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			slog.Warn("remove scratch file failed", "path", path, "error", err)
		}
	}()

	// Archival upload never blocks or fails processing.
	if p.blob != nil {
		go p.archive(msg, data)
	}

	kind := msg.Content.Kind
	mimeType := msg.Content.MimeType

	switch {
	case kind == wa.KindImage || kind == wa.KindSticker:
		return p.images.Describe(ctx, data, mimeType)

	case kind == wa.KindAudio:
		return p.audio.Transcribe(ctx, path, mimeType)

	case kind == wa.KindVideo:
		return p.video.Summarize(ctx, path, mimeType)

	case kind == wa.KindDocument || kind == wa.KindDocumentWithCaption:
		// Attachments arrive as documents regardless of their real type.
		switch {
		case strings.HasPrefix(mimeType, "audio/"):
			return p.audio.Transcribe(ctx, path, mimeType)
		case strings.HasPrefix(mimeType, "image/"):
			return p.images.Describe(ctx, data, mimeType)
		case strings.HasPrefix(mimeType, "video/"):
			return p.video.Summarize(ctx, path, mimeType)
		default:
			return p.docs.Parse(ctx, path, mimeType, msg.Content.FileName)
		}
	}

	// Unrecognized kinds get generic document extraction as a last resort.
	return p.docs.Parse(ctx, path, mimeType, msg.Content.FileName)
}

// stage writes the media bytes to a scratch file with a sensible extension.
func (p *Processor) stage(data []byte, mimeType string) (string, error) {
	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	f, err := os.CreateTemp(p.tempDir, "media-*"+extensionFor(mimeType))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return f.Name(), nil
}

func (p *Processor) archive(msg wa.Message, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), blob.UploadTimeout)
	defer cancel()

	key := fmt.Sprintf("%s/%s%s", msg.ChatJID, msg.ID, extensionFor(msg.Content.MimeType))
	if err := p.blob.Upload(ctx, key, msg.Content.MimeType, data); err != nil {
		slog.Warn("media archive upload failed", "message_id", msg.ID, "error", err)
	}
}

// extensionFor maps a MIME type to a file extension, defaulting to .bin.
// Common WhatsApp types are pinned so we never depend on the host's MIME db.
func extensionFor(mimeType string) string {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	}

	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
