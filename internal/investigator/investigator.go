// Package investigator drains the analysis backlog: for each pending video
// it obtains a transcript, reasons over it against the legal corpus, and
// retires the item with a summary and full analysis written together.
package investigator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nfpwatch/internal/llm"
	"nfpwatch/internal/store"
	"nfpwatch/internal/transcribe"
)

// ItemStore is the slice of the persistence layer the investigator needs.
type ItemStore interface {
	FindUnanalyzed(ctx context.Context) ([]store.ContentItem, error)
	FindUnanalyzedForTarget(ctx context.Context, targetID string) ([]store.ContentItem, error)
	WriteAnalysis(ctx context.Context, nativeID, summary, fullAnalysis string) error
}

// Investigator runs the two-stage analysis chain over pending items.
type Investigator struct {
	store       ItemStore
	transcriber transcribe.Transcriber
	llm         llm.Client
	legal       string
	log         *zap.Logger
}

// LegalSource renders the reference corpus for prompt injection.
type LegalSource interface {
	Context() string
}

// New creates an investigator bound to a legal corpus.
func New(st ItemStore, tr transcribe.Transcriber, client llm.Client, legal LegalSource, log *zap.Logger) *Investigator {
	return &Investigator{
		store:       st,
		transcriber: tr,
		llm:         client,
		legal:       legal.Context(),
		log:         log,
	}
}

// RunSweep analyzes every pending item, oldest first. A failing item stays
// pending for the next sweep; only context cancellation stops the run.
// Returns how many items were retired.
func (inv *Investigator) RunSweep(ctx context.Context) (int, error) {
	items, err := inv.store.FindUnanalyzed(ctx)
	if err != nil {
		return 0, fmt.Errorf("find pending items: %w", err)
	}
	return inv.analyzeAll(ctx, items)
}

// RunSweepForTarget analyzes the pending items of a single target.
func (inv *Investigator) RunSweepForTarget(ctx context.Context, targetID string) (int, error) {
	items, err := inv.store.FindUnanalyzedForTarget(ctx, targetID)
	if err != nil {
		return 0, fmt.Errorf("find pending items: %w", err)
	}
	return inv.analyzeAll(ctx, items)
}

func (inv *Investigator) analyzeAll(ctx context.Context, items []store.ContentItem) (int, error) {
	if len(items) == 0 {
		inv.log.Debug("no pending items")
		return 0, nil
	}
	inv.log.Info("analysis sweep starting", zap.Int("pending", len(items)))

	analyzed := 0
	for _, item := range items {
		if err := inv.analyzeItem(ctx, item); err != nil {
			if ctx.Err() != nil {
				return analyzed, ctx.Err()
			}
			inv.log.Error("item stays pending",
				zap.String("native_id", item.NativeID), zap.Error(err))
			continue
		}
		analyzed++
	}
	return analyzed, nil
}

func (inv *Investigator) analyzeItem(ctx context.Context, item store.ContentItem) error {
	transcript, err := inv.transcriber.Transcribe(ctx, item.Locator)
	if err != nil {
		var te *transcribe.TranscriptionError
		if !errors.As(err, &te) {
			return err
		}
		// Degrade, don't drop: analysis proceeds on the caption and a
		// placeholder transcript.
		transcript = transcribe.Sentinel(te.Stage + " failed")
		inv.log.Warn("transcription unavailable, using placeholder",
			zap.String("native_id", item.NativeID), zap.Error(err))
	}

	findings, err := inv.llm.Complete(ctx, findingsPrompt(inv.legal, transcript, item.Caption))
	if err != nil {
		return fmt.Errorf("findings stage: %w", err)
	}

	summary, err := inv.llm.Complete(ctx, summaryPrompt(findings))
	if err != nil {
		return fmt.Errorf("summary stage: %w", err)
	}
	summary = firstLine(summary)

	if err := inv.store.WriteAnalysis(ctx, item.NativeID, summary, findings); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	inv.log.Info("item analyzed",
		zap.String("native_id", item.NativeID),
		zap.String("summary", summary))
	return nil
}

func findingsPrompt(legal, transcript, caption string) string {
	var b strings.Builder
	b.WriteString("You are a compliance analyst reviewing social media content for ")
	b.WriteString("potential violations of securities and consumer protection law.\n\n")
	b.WriteString("LEGAL CONTEXT:\n")
	b.WriteString(legal)
	b.WriteString("\n\nVIDEO TRANSCRIPT:\n")
	b.WriteString(transcript)
	if caption != "" {
		b.WriteString("\n\nPOST CAPTION:\n")
		b.WriteString(caption)
	}
	b.WriteString("\n\nIdentify every statement that may breach the legal context above. ")
	b.WriteString("For each finding, quote the statement and name the provision it may ")
	b.WriteString("breach. If nothing is objectionable, say so explicitly.")
	return b.String()
}

func summaryPrompt(findings string) string {
	return "Condense the following compliance findings into exactly one sentence " +
		"suitable for a case dossier. Return only that sentence.\n\nFINDINGS:\n" + findings
}

// firstLine trims the model output to a single line.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
