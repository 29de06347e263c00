// Package turn drives one conversation turn end to end: append the user
// message, stream the model reply into the session, then extract the inline
// tags and fan out the asynchronous follow-ups (memory consolidation, media
// generation).
//
// A Controller owns no session state of its own; everything flows through the
// session store so concurrent turns on different sessions never interfere.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mutsucloud/otogi/internal/mediajob"
	"github.com/mutsucloud/otogi/internal/memory"
	"github.com/mutsucloud/otogi/internal/notify"
	"github.com/mutsucloud/otogi/internal/observe"
	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/internal/stats"
	"github.com/mutsucloud/otogi/internal/tagparse"
	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/types"
)

// DefaultModel is used when neither the request nor the configuration names
// a chat model.
const DefaultModel = "google/gemini-3-flash-preview"

// ErrEmptyPrompt is returned when a turn carries neither text nor an
// attachment.
var ErrEmptyPrompt = errors.New("turn: empty prompt")

// ErrSessionNotFound is returned when the addressed session does not exist.
var ErrSessionNotFound = errors.New("turn: session not found")

// Attachment is a user-supplied file accompanying a message. Text attachments
// carry their body in Text and are referenced inline; anything else is
// treated as an image reachable at URL.
type Attachment struct {
	Name string
	Text string
	URL  string
}

// Input is one user turn.
type Input struct {
	SessionID  string
	Text       string
	Attachment *Attachment

	// Model overrides the configured chat model for this turn.
	Model string
}

// Update is one streaming event delivered to the caller. Content always
// holds the full accumulated reply, not a delta; the last event has Done set
// and carries the post-processed text.
type Update struct {
	Content string
	Done    bool
	Err     error
}

// ControllerConfig configures a Controller. Chat and Store are required;
// everything else degrades gracefully when absent.
type ControllerConfig struct {
	Chat  chat.Provider
	Store *session.Store

	// Memory consolidates each finished exchange. Nil disables consolidation.
	Memory *memory.Engine

	// Media runs image and video jobs spawned by inline tags. Nil disables
	// media generation regardless of feature toggles.
	Media *mediajob.Orchestrator

	// Stats reconciles model-suggested character status against the current
	// one. Nil falls back to a default reconciler.
	Stats *stats.Reconciler

	// Roster resolves loosely-written character references. Nil passes IDs
	// through unresolved.
	Roster *tagparse.Roster

	Notifier *notify.Hub
	Metrics  *observe.Metrics

	Prompt PromptConfig

	// Model is the default chat model. Empty means DefaultModel.
	Model string

	// ContextWindow caps how many trailing messages are sent to the provider.
	// Zero means session.DefaultContextWindow.
	ContextWindow int

	Temperature float64
	MaxTokens   int

	Logger *slog.Logger
}

// Controller runs conversation turns. Safe for concurrent use across
// sessions; concurrent turns on the same session are not coordinated and the
// caller should serialize them.
type Controller struct {
	chat     chat.Provider
	store    *session.Store
	memory   *memory.Engine
	media    *mediajob.Orchestrator
	stats    *stats.Reconciler
	roster   *tagparse.Roster
	notifier *notify.Hub
	metrics  *observe.Metrics
	prompt   PromptConfig

	model       string
	window      int
	temperature float64
	maxTokens   int

	log *slog.Logger

	// wg tracks the fire-and-forget goroutines (memory consolidation, media
	// jobs) so shutdown can drain them.
	wg sync.WaitGroup
}

// NewController validates cfg and builds a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Chat == nil {
		return nil, errors.New("turn: chat provider is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("turn: session store is required")
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewReconciler(stats.ReconcilerConfig{})
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = session.DefaultContextWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		chat:        cfg.Chat,
		store:       cfg.Store,
		memory:      cfg.Memory,
		media:       cfg.Media,
		stats:       cfg.Stats,
		roster:      cfg.Roster,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		prompt:      cfg.Prompt,
		model:       cfg.Model,
		window:      cfg.ContextWindow,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         cfg.Logger.With("component", "turn"),
	}, nil
}

// Wait blocks until all background follow-ups spawned by finished turns have
// drained. Call during shutdown after the last Send has completed.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Send runs one turn: it appends the user message and an empty assistant
// placeholder, then streams the reply into the placeholder. The returned
// channel emits the accumulating content and is closed after the final Done
// event. Cancelling ctx stops the stream; the partial reply is kept but no
// post-processing runs.
func (c *Controller) Send(ctx context.Context, in Input) (<-chan Update, error) {
	if strings.TrimSpace(in.Text) == "" && in.Attachment == nil {
		return nil, ErrEmptyPrompt
	}
	sess, ok := c.store.Get(in.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, in.SessionID)
	}

	userMsg := c.buildUserMessage(in, sess.ActiveCharacterID)
	if _, ok := c.store.Apply(in.SessionID, func(s session.Session) session.Session {
		return session.AppendMessage(s, userMsg)
	}); !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, in.SessionID)
	}

	return c.start(ctx, in.SessionID, in.Model, in.Text)
}

// Regenerate rewinds the transcript to just before the assistant message at
// idx and streams a fresh reply. Regenerating the trailing reply also rolls
// back the short-term memory note that reply produced.
func (c *Controller) Regenerate(ctx context.Context, sessionID string, idx int) (<-chan Update, error) {
	sess, ok := c.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if idx < 0 || idx >= len(sess.Messages) || sess.Messages[idx].Role != types.RoleAssistant {
		return nil, fmt.Errorf("turn: message %d is not a regenerable assistant reply", idx)
	}

	userText := ""
	if idx > 0 && sess.Messages[idx-1].Role == types.RoleUser {
		userText = sess.Messages[idx-1].Content
	}
	model := sess.Messages[idx].ModelName

	if idx == len(sess.Messages)-1 && c.memory != nil {
		c.memory.Rollback(sessionID)
	}
	c.store.Apply(sessionID, func(s session.Session) session.Session {
		return session.TruncateMessages(s, idx)
	})

	return c.start(ctx, sessionID, model, userText)
}

// VisualCommand runs a manually-issued media command against a session. raw
// may be a full <draw>/<video> tag or a bare prompt, which is treated as an
// image description. The job runs in the background; its outcome arrives via
// the notifier and the transcript splice.
func (c *Controller) VisualCommand(sessionID, raw string) error {
	if c.media == nil {
		return errors.New("turn: media generation is not configured")
	}
	sess, ok := c.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	cmd := tagparse.ParseMediaCommand(raw)
	if cmd == nil {
		cmd = &types.MediaCommand{
			Trigger:     true,
			Kind:        types.MediaImage,
			Description: strings.TrimSpace(raw),
			OutfitID:    tagparse.DefaultOutfitID,
			Parameters:  map[string]any{},
		}
	}
	if !c.mediaAllowed(cmd.Kind) {
		return fmt.Errorf("turn: %s generation is disabled", cmd.Kind)
	}

	// Splice into the last assistant reply when it still carries the tag;
	// otherwise the result is appended to the trailing message.
	fingerprint := ""
	if last, i := session.LastAssistant(sess); i >= 0 {
		fingerprint = tagparse.Fingerprint(last.Content, cmd.Kind)
	}
	c.dispatchMedia(sessionID, *cmd, fingerprint)
	return nil
}

// buildUserMessage shapes the user input into a transcript message. Text
// attachments become an inline reference appended to the content; images
// become a multi-part payload so vision models receive them natively.
func (c *Controller) buildUserMessage(in Input, characterID string) types.Message {
	msg := types.Message{
		ID:          uuid.NewString(),
		Role:        types.RoleUser,
		Content:     in.Text,
		CharacterID: characterID,
		CreatedAt:   time.Now().UTC(),
	}
	att := in.Attachment
	if att == nil {
		return msg
	}
	if att.Text != "" {
		msg.Content = in.Text + "\n\n[Attached File: " + att.Name + "]\n" + att.Text
		return msg
	}
	msg.Parts = []types.ContentPart{
		{Kind: types.PartText, Text: in.Text},
		{Kind: types.PartImage, ImageURL: att.URL},
	}
	return msg
}

// start appends the assistant placeholder and launches the streaming
// goroutine. The provider payload is built from the transcript before the
// placeholder so the model never sees its own empty reply.
func (c *Controller) start(ctx context.Context, sessionID, model, userText string) (<-chan Update, error) {
	if model == "" {
		model = c.model
	}
	placeholder := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleAssistant,
		ModelName: model,
		CreatedAt: time.Now().UTC(),
	}
	snap, ok := c.store.Apply(sessionID, func(s session.Session) session.Session {
		placeholder.CharacterID = s.ActiveCharacterID
		return session.AppendMessage(s, placeholder)
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	persona := ""
	if c.roster != nil {
		if ch, ok := c.roster.Get(snap.ActiveCharacterID); ok {
			persona = ch.Persona
		}
	}
	req := chat.CompletionRequest{
		Messages:     session.Window(snap.Messages[:len(snap.Messages)-1], c.window),
		SystemPrompt: buildSystemPrompt(c.prompt, persona, snap),
		Model:        model,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
	}

	updates := make(chan Update, 8)
	go c.stream(ctx, sessionID, model, userText, req, updates)
	return updates, nil
}

// stream consumes the provider stream, mirroring each accumulation into the
// session and onto the updates channel, then hands off to finalize.
func (c *Controller) stream(ctx context.Context, sessionID, model, userText string, req chat.CompletionRequest, updates chan<- Update) {
	defer close(updates)

	start := time.Now()
	c.metrics.ActiveStreams.Add(ctx, 1)
	defer c.metrics.ActiveStreams.Add(context.Background(), -1)

	ch, err := c.chat.StreamCompletion(ctx, req)
	if err != nil {
		c.failTurn(sessionID, model, start, err, updates)
		return
	}

	var full strings.Builder
	var streamErr error
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			streamErr = errors.New(chunk.Text)
			break
		}
		if chunk.Text == "" {
			continue
		}
		full.WriteString(chunk.Text)
		content := full.String()
		c.store.Apply(sessionID, func(s session.Session) session.Session {
			return session.ReplaceLastContent(s, content)
		})
		select {
		case updates <- Update{Content: content}:
		default:
			// A slow consumer never stalls the stream; it catches up on the
			// next event since Content is cumulative.
		}
	}
	c.metrics.RecordStream(context.Background(), model, time.Since(start))

	if streamErr != nil {
		c.failTurn(sessionID, model, start, streamErr, updates)
		return
	}
	if ctx.Err() != nil {
		// The partial reply stays in the transcript; tags in it are never
		// acted on.
		c.metrics.RecordTurn(context.Background(), model, "cancelled", time.Since(start))
		updates <- Update{Content: full.String(), Done: true}
		return
	}

	cleaned := c.finalize(sessionID, userText, full.String())
	c.metrics.RecordTurn(context.Background(), model, "ok", time.Since(start))
	updates <- Update{Content: cleaned, Done: true}
}

func (c *Controller) failTurn(sessionID, model string, start time.Time, err error, updates chan<- Update) {
	c.log.Error("turn failed", "session_id", sessionID, "error", err)
	if c.notifier != nil {
		c.notifier.Error(sessionID, "Reply failed: "+err.Error())
	}
	c.metrics.RecordTurn(context.Background(), model, "error", time.Since(start))
	updates <- Update{Err: fmt.Errorf("turn: stream: %w", err)}
}

// finalize extracts the inline tags from the finished reply, commits all
// derived session state in one atomic update, and spawns the background
// follow-ups. Returns the cleaned reply text as stored.
func (c *Controller) finalize(sessionID, userText, raw string) string {
	trackID, rest := tagparse.ExtractAudio(raw)
	gs, rest := tagparse.ExtractGameState(rest)
	title, rest := tagparse.ExtractTitle(rest)
	cleaned, files := tagparse.ExtractFiles(rest)

	snap, ok := c.store.Apply(sessionID, func(s session.Session) session.Session {
		s = session.ReplaceLastContent(s, cleaned)
		if trackID != "" && c.prompt.Features.MusicControl {
			s.TrackID = trackID
		}
		if gs != nil {
			s = c.applyGameState(s, gs)
		}
		if title != "" && session.IsPlaceholderTitle(s.Title) {
			s.Title = strings.TrimSpace(title)
		}
		s = session.MergeFiles(s, files)
		s.UpdatedAt = time.Now().UTC()
		return s
	})
	if !ok {
		return cleaned
	}

	if c.memory != nil {
		assistantText := tagparse.StripMediaTags(cleaned)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.memory.ConsolidateTurn(context.Background(), sessionID, userText, assistantText); err != nil {
				c.log.Warn("memory consolidation failed", "session_id", sessionID, "error", err)
			}
		}()
	}

	if cmd, fingerprint := c.mediaFromReply(cleaned, gs, snap); cmd != nil {
		c.dispatchMedia(sessionID, *cmd, fingerprint)
	}
	return cleaned
}

// applyGameState folds a game state block into the session. Character status
// goes through stat reconciliation so a single hallucinated reply cannot
// teleport the numeric axes.
func (c *Controller) applyGameState(s session.Session, gs *tagparse.GameState) session.Session {
	if gs.Protagonist != nil {
		s.Protagonist = gs.Protagonist
	}
	if len(gs.Character) > 0 {
		merged := c.stats.Reconcile(stats.First(s.CharStatus), gs.Character[0])
		list := make([]types.CharacterStatus, 0, len(gs.Character))
		list = append(list, merged)
		list = append(list, gs.Character[1:]...)
		s.CharStatus = list
	}
	if gs.Suggestions != nil {
		s.Suggestions = gs.Suggestions
	}
	if len(gs.Danmaku) > 0 {
		s.Danmaku = gs.Danmaku
	}
	if gs.Timeline != nil {
		s.Timeline = gs.Timeline
	}
	if gs.Environment != nil && gs.Environment.BgID != "" {
		s.Background = gs.Environment.BgID
	}
	if gs.Live2D != nil {
		if gs.Live2D.CharID != "" {
			s.Live2DCharID = c.resolveChar(gs.Live2D.CharID, s.ActiveCharacterID)
		}
		if gs.Live2D.Motion != "" {
			s.Emotion = gs.Live2D.Motion
		}
	}
	if gs.Music != nil && gs.Music.Trigger && gs.Music.TrackID != "" && c.prompt.Features.MusicControl {
		s.TrackID = gs.Music.TrackID
	}
	if gs.ImageGen != nil {
		if gs.ImageGen.Emotion != "" {
			s.Emotion = gs.ImageGen.Emotion
		}
		if gs.ImageGen.OutfitID != "" {
			s.OutfitID = gs.ImageGen.OutfitID
		}
	}
	return s
}

// mediaFromReply decides whether the finished reply spawns a media job. An
// explicit tag wins; otherwise a triggered image hint in the game state block
// synthesizes an image command with no fingerprint, so its result is appended
// rather than spliced.
func (c *Controller) mediaFromReply(cleaned string, gs *tagparse.GameState, s session.Session) (*types.MediaCommand, string) {
	if c.media == nil {
		return nil, ""
	}
	if cmd := tagparse.ParseMediaCommand(cleaned); cmd != nil {
		if !c.mediaAllowed(cmd.Kind) {
			return nil, ""
		}
		return cmd, tagparse.Fingerprint(cleaned, cmd.Kind)
	}
	if gs == nil || gs.ImageGen == nil || !gs.ImageGen.Trigger || !c.prompt.Features.ImageGen {
		return nil, ""
	}
	hint := gs.ImageGen
	desc := hint.Description
	if hint.Emotion != "" {
		desc = hint.Emotion + ", " + desc
	}
	outfit := hint.OutfitID
	if outfit == "" {
		outfit = tagparse.DefaultOutfitID
	}
	return &types.MediaCommand{
		Trigger:        true,
		Kind:           types.MediaImage,
		Description:    desc,
		NegativePrompt: hint.NegativePrompt,
		CharacterID:    c.resolveChar(hint.CharID, s.ActiveCharacterID),
		OutfitID:       outfit,
		Parameters:     hint.Parameters,
	}, ""
}

func (c *Controller) dispatchMedia(sessionID string, cmd types.MediaCommand, fingerprint string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.media.Run(context.Background(), sessionID, cmd, fingerprint)
	}()
}

func (c *Controller) mediaAllowed(kind types.MediaKind) bool {
	if c.media == nil {
		return false
	}
	switch kind {
	case types.MediaVideo:
		return c.prompt.Features.VideoGen
	default:
		return c.prompt.Features.ImageGen
	}
}

func (c *Controller) resolveChar(raw, fallback string) string {
	if c.roster == nil {
		if raw != "" {
			return raw
		}
		return fallback
	}
	return c.roster.Resolve(raw, fallback)
}
