package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/lysyi3m/scripta/app/story"
)

// Placeholder answers every cover request with a fixed image URL.
type Placeholder string

func (p Placeholder) Cover(context.Context, *story.Story, string) (string, error) {
	return string(p), nil
}

// CoverStore keeps generated images and returns their permanent public URL.
type CoverStore interface {
	Save(name string, data []byte) (string, error)
}

// CoverDir stores covers as files served by the API under /covers.
type CoverDir struct {
	dir     string
	baseURL string
}

func NewCoverDir(dir, baseURL string) (*CoverDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cover directory: %w", err)
	}
	return &CoverDir{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *CoverDir) Save(name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(d.dir, ".cover-*")
	if err != nil {
		return "", fmt.Errorf("failed to create cover file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write cover file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write cover file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		return "", fmt.Errorf("failed to store cover file: %w", err)
	}

	return d.baseURL + "/covers/" + name, nil
}

// ImageArtist draws a cover with the OpenAI image API, keeps the image in a
// CoverStore and falls back to the placeholder when anything fails.
type ImageArtist struct {
	client      *openai.Client
	prompts     *story.Prompts
	covers      CoverStore
	placeholder string
}

func NewImageArtist(apiKey, baseURL string, prompts *story.Prompts, covers CoverStore, placeholder string) *ImageArtist {
	return &ImageArtist{
		client:      newOpenAIClient(apiKey, baseURL),
		prompts:     prompts,
		covers:      covers,
		placeholder: placeholder,
	}
}

func (a *ImageArtist) Cover(ctx context.Context, s *story.Story, summary string) (string, error) {
	url, err := a.generate(ctx, s, summary)
	if err != nil {
		slog.Warn("Cover image generation failed, using placeholder", "date", s.Date, "error", err)
		return a.placeholder, nil
	}
	slog.Info("Cover image stored", "date", s.Date, "url", url)
	return url, nil
}

func (a *ImageArtist) generate(ctx context.Context, s *story.Story, summary string) (string, error) {
	prompt, err := a.prompts.RenderCover(s, summary)
	if err != nil {
		return "", err
	}

	// Provider URLs are temporary.
	resp, err := a.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           openai.CreateImageSize1024x1792,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", errors.New("no image in response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	return a.covers.Save(s.Date+".png", data)
}
