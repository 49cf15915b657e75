package ner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/eamt-tools/entsub/entity"
)

// DefaultModel is an ONNX export of a BERT NER model with CoNLL BIO tags.
const DefaultModel = "KnightsAnalytics/distilbert-NER"

// PrepareModel returns a local model directory for model. An existing path
// is used as-is; anything else is treated as a Hugging Face model name and
// downloaded into dir unless already present.
func PrepareModel(model, dir string) (string, error) {
	if _, err := os.Stat(model); err == nil {
		return model, nil
	}
	if !strings.Contains(model, "/") {
		return "", fmt.Errorf("model %q: no such directory", model)
	}

	local := filepath.Join(dir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	path, err := hugot.DownloadModel(model, dir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return path, nil
}

// HugotTagger runs a token-classification model with hugot's pure Go
// backend. Tokens are returned unaggregated so entity.Merge sees the raw
// BIO sequence.
type HugotTagger struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
}

// NewHugotTagger loads the ONNX model in modelPath.
func NewHugotTagger(modelPath string) (*HugotTagger, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "entsub-ner",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithoutAggregation(),
		},
	}
	p, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}
	return &HugotTagger{session: session, pipeline: p}, nil
}

// Tag implements Tagger.
func (h *HugotTagger) Tag(ctx context.Context, text string) ([]entity.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	result, err := h.pipeline.RunPipeline([]string{text})
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}
	return tokensFromEntities(result.Entities[0]), nil
}

func tokensFromEntities(ents []pipelines.Entity) []entity.Token {
	toks := make([]entity.Token, 0, len(ents))
	for _, e := range ents {
		toks = append(toks, entity.Token{
			Word:         strings.TrimSpace(e.Word),
			Tag:          e.Entity,
			Continuation: e.IsSubword,
		})
	}
	return toks
}

// Close releases the session.
func (h *HugotTagger) Close() error {
	return h.session.Destroy()
}
