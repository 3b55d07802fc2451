package knowledge

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxQuickActions    = 5
	maxQuickReplies    = 4
	maxGreetingActions = 4
	maxCategoryActions = 3
	maxPaddingActions  = 2
)

// ErrEmptyMessage is returned when the caller submits a blank message.
// No state is mutated in that case.
var ErrEmptyMessage = errors.New("knowledge: empty message")

// Responder matches free-text user input against the knowledge base and
// assembles a reply with suggestions and quick actions.
type Responder struct {
	store  *Store
	picker Picker
	logger zerolog.Logger
}

type ResponderConfig struct {
	Store  *Store
	Picker Picker
}

func NewResponder(cfg ResponderConfig) (*Responder, error) {
	if cfg.Store == nil {
		return nil, errors.New("knowledge: responder store is nil")
	}
	picker := cfg.Picker
	if picker == nil {
		picker = NewPicker()
	}
	return &Responder{
		store:  cfg.Store,
		picker: picker,
		logger: log.With().Str("component", "knowledge").Logger(),
	}, nil
}

type RespondInput struct {
	Message   string
	SessionID string
	UserID    string
}

type RespondResult struct {
	ResponseText   string
	SessionID      string
	ConversationID string
	Intent         Intent
	Matched        *KnowledgeEntry
	QuickActions   []QuickAction
	Suggestion     string
	QuickReplies   []string
}

// Respond runs the full pipeline: preprocess, classify, match, suggest,
// persist, select quick actions. One conversation row is created per call.
func (r *Responder) Respond(ctx context.Context, in RespondInput) (*RespondResult, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("knowledge: responder is not initialized")
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	pre := Preprocess(message)
	intent := ClassifyIntent(pre)

	var matched *KnowledgeEntry
	var answer string
	if intent == IntentQuestion {
		var err error
		matched, err = r.match(ctx, pre)
		if err != nil {
			return nil, err
		}
	}
	if matched != nil {
		answer = matched.Answer
	} else {
		pool := poolForIntent(intent)
		answer = pool[r.picker.Pick(len(pool))]
	}

	suggestion := SuggestionFor(intent, matched)
	responseText := answer + "\n\n" + suggestion

	conv := &Conversation{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserID:      in.UserID,
		UserMessage: message,
		BotResponse: responseText,
	}
	if matched != nil {
		conv.MatchedEntryID = matched.ID
	}
	if err := r.store.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}

	actions, err := r.selectQuickActions(ctx, intent, matched)
	if err != nil {
		// Quick actions are decoration; the reply itself already succeeded.
		r.logger.Warn().Err(err).Msg("quick action selection failed")
		actions = nil
	}

	r.logger.Debug().
		Str("session_id", sessionID).
		Str("intent", string(intent)).
		Bool("matched", matched != nil).
		Msg("responded")

	return &RespondResult{
		ResponseText:   responseText,
		SessionID:      sessionID,
		ConversationID: conv.ID,
		Intent:         intent,
		Matched:        matched,
		QuickActions:   actions,
		Suggestion:     suggestion,
		QuickReplies:   quickRepliesFor(intent, matched),
	}, nil
}

// match searches with the whole preprocessed message first, then retries per
// token (message order) for tokens longer than two runes.
func (r *Responder) match(ctx context.Context, preprocessed string) (*KnowledgeEntry, error) {
	entry, err := r.store.FindBest(ctx, preprocessed)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}
	for _, tok := range tokens(preprocessed) {
		entry, err = r.store.FindBest(ctx, tok)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, nil
}

func (r *Responder) selectQuickActions(ctx context.Context, intent Intent, matched *KnowledgeEntry) ([]QuickAction, error) {
	if intent != IntentGreeting && matched == nil {
		return nil, nil
	}
	all, err := r.store.ListActiveQuickActions(ctx)
	if err != nil {
		return nil, err
	}

	if intent == IntentGreeting {
		out := []QuickAction{}
		for _, a := range all {
			if a.Kind != ActionMessage && a.Kind != ActionURL {
				continue
			}
			out = append(out, a)
			if len(out) == maxGreetingActions {
				break
			}
		}
		return out, nil
	}

	// Category-targeted actions first, then pad with generic message actions.
	selected := []QuickAction{}
	seen := map[int64]bool{}
	for _, a := range all {
		if !strings.Contains(a.Value, string(matched.Category)) {
			continue
		}
		selected = append(selected, a)
		seen[a.ID] = true
		if len(selected) == maxCategoryActions {
			break
		}
	}
	padded := 0
	for _, a := range all {
		if padded == maxPaddingActions || len(selected) == maxQuickActions {
			break
		}
		if a.Kind != ActionMessage || seen[a.ID] {
			continue
		}
		selected = append(selected, a)
		seen[a.ID] = true
		padded++
	}
	if len(selected) > maxQuickActions {
		selected = selected[:maxQuickActions]
	}
	return selected, nil
}

// Rate records feedback for a conversation. Unknown ids report false.
func (r *Responder) Rate(ctx context.Context, conversationID string, helpful bool) bool {
	if r == nil || r.store == nil {
		return false
	}
	ok, err := r.store.Rate(ctx, conversationID, helpful)
	if err != nil {
		r.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("rating failed")
		return false
	}
	return ok
}
