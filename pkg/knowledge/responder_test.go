package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// firstPicker always returns the first pool element.
type firstPicker struct{}

func (firstPicker) Pick(int) int { return 0 }

func newTestResponder(t *testing.T) (*Responder, *Store) {
	t.Helper()
	s := newTestStore(t)
	r, err := NewResponder(ResponderConfig{Store: s, Picker: firstPicker{}})
	require.NoError(t, err)
	return r, s
}

func TestRespondExactQuestionMatch(t *testing.T) {
	r, s := newTestResponder(t)
	ctx := context.Background()

	entry := &KnowledgeEntry{
		Question: "ما هو إدريسي مارت؟",
		Answer:   "إدريسي مارت منصة إعلانات مبوبة لبيع وشراء كل شيء.",
		Category: CategoryGeneral,
		Active:   true,
		Priority: 1,
	}
	require.NoError(t, s.CreateEntry(ctx, entry))

	res, err := r.Respond(ctx, RespondInput{Message: "ما هو إدريسي مارت؟"})
	require.NoError(t, err)
	require.NotNil(t, res.Matched)
	require.Equal(t, entry.ID, res.Matched.ID)
	require.True(t, strings.HasPrefix(res.ResponseText, entry.Answer))
	require.Equal(t, categorySuggestions[CategoryGeneral], res.Suggestion)
	require.NotEmpty(t, res.SessionID)
	require.NotEmpty(t, res.ConversationID)

	conv, err := s.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, entry.ID, conv.MatchedEntryID)
}

func TestRespondFallbackForGibberish(t *testing.T) {
	r, _ := newTestResponder(t)

	res, err := r.Respond(context.Background(), RespondInput{Message: "xyzxyz_no_match"})
	require.NoError(t, err)
	require.Nil(t, res.Matched)
	require.Equal(t, IntentQuestion, res.Intent)

	found := false
	for _, f := range FallbackResponses() {
		if strings.HasPrefix(res.ResponseText, f) {
			found = true
		}
	}
	require.True(t, found, "response must come from the fallback pool, got %q", res.ResponseText)
}

func TestRespondGreetingNeverMatchesEntry(t *testing.T) {
	r, s := newTestResponder(t)
	ctx := context.Background()

	// Entry that would match "hello" by substring if greetings were searched.
	require.NoError(t, s.CreateEntry(ctx, &KnowledgeEntry{
		Question: "what does hello mean?",
		Answer:   "hello is a greeting",
		Category: CategoryGeneral,
		Active:   true,
	}))

	res, err := r.Respond(ctx, RespondInput{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, IntentGreeting, res.Intent)
	require.Nil(t, res.Matched)
	require.True(t, strings.HasPrefix(res.ResponseText, greetingResponses[0]))

	conv, err := s.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Zero(t, conv.MatchedEntryID)
}

func TestRespondTokenFallbackSearch(t *testing.T) {
	r, s := newTestResponder(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEntry(ctx, &KnowledgeEntry{
		Question: "كيف أحذف إعلاني؟",
		Answer:   "من صفحة إعلاناتي اختر حذف.",
		Category: CategoryAds,
		Keywords: "حذف,إعلاني",
		Active:   true,
	}))

	// Whole message does not appear in the entry, the token "إعلاني" does.
	res, err := r.Respond(ctx, RespondInput{Message: "أريد أن أزيل إعلاني رجاء"})
	require.NoError(t, err)
	require.NotNil(t, res.Matched)
}

func TestRespondEmptyMessage(t *testing.T) {
	r, _ := newTestResponder(t)
	_, err := r.Respond(context.Background(), RespondInput{Message: "   "})
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRespondKeepsSuppliedSession(t *testing.T) {
	r, _ := newTestResponder(t)
	res, err := r.Respond(context.Background(), RespondInput{Message: "hello", SessionID: "sess-42"})
	require.NoError(t, err)
	require.Equal(t, "sess-42", res.SessionID)
}

func TestQuickActionsForGreeting(t *testing.T) {
	r, s := newTestResponder(t)
	ctx := context.Background()

	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "m1", Kind: ActionMessage, Value: "hi", Order: 1, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "u1", Kind: ActionURL, Value: "/ads", Order: 2, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "s1", Kind: ActionSearch, Value: "cars", Order: 3, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "m2", Kind: ActionMessage, Value: "help", Order: 4, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "m3", Kind: ActionMessage, Value: "more", Order: 5, Active: true}))

	res, err := r.Respond(ctx, RespondInput{Message: "hello"})
	require.NoError(t, err)
	require.Len(t, res.QuickActions, 4)
	for _, a := range res.QuickActions {
		require.NotEqual(t, ActionSearch, a.Kind)
	}
	require.LessOrEqual(t, len(res.QuickReplies), 4)
}

func TestQuickActionsForMatchedCategoryWithPadding(t *testing.T) {
	r, s := newTestResponder(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEntry(ctx, &KnowledgeEntry{
		Question: "ما هي طرق الدفع المتاحة؟",
		Answer:   "الدفع عند الاستلام أو التحويل البنكي.",
		Category: CategoryPayments,
		Active:   true,
	}))

	// One action targets the payments category, two generic message actions pad.
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "pay", Kind: ActionURL, Value: "/faq/payments", Order: 1, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "g1", Kind: ActionMessage, Value: "hi", Order: 2, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "g2", Kind: ActionMessage, Value: "help", Order: 3, Active: true}))
	require.NoError(t, s.CreateQuickAction(ctx, &QuickAction{Title: "g3", Kind: ActionMessage, Value: "more", Order: 4, Active: true}))

	res, err := r.Respond(ctx, RespondInput{Message: "ما هي طرق الدفع المتاحة؟"})
	require.NoError(t, err)
	require.NotNil(t, res.Matched)
	require.Len(t, res.QuickActions, 3)
	require.Equal(t, "pay", res.QuickActions[0].Title)
	require.Equal(t, "g1", res.QuickActions[1].Title)
	require.Equal(t, "g2", res.QuickActions[2].Title)
}

func TestRateViaResponder(t *testing.T) {
	r, _ := newTestResponder(t)
	ctx := context.Background()

	require.False(t, r.Rate(ctx, "missing", true))

	res, err := r.Respond(ctx, RespondInput{Message: "hello"})
	require.NoError(t, err)
	require.True(t, r.Rate(ctx, res.ConversationID, false))
}

func TestSuggestionTableCoversEveryCategory(t *testing.T) {
	for _, c := range Categories() {
		_, ok := categorySuggestions[c]
		require.True(t, ok, "missing suggestion for category %s", c)
	}
}
