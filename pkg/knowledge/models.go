package knowledge

import "time"

// Category classifies a knowledge entry. The set is fixed; the suggestion
// table in suggest.go must cover every value.
type Category string

const (
	CategoryGeneral       Category = "general"
	CategoryAds           Category = "ads"
	CategoryAccount       Category = "account"
	CategoryPayments      Category = "payments"
	CategoryVerification  Category = "verification"
	CategoryDelivery      Category = "delivery"
	CategorySafety        Category = "safety"
	CategorySubscriptions Category = "subscriptions"
	CategoryTechnical     Category = "technical"
	CategoryContact       Category = "contact"
)

// Categories lists every valid category value.
func Categories() []Category {
	return []Category{
		CategoryGeneral, CategoryAds, CategoryAccount, CategoryPayments,
		CategoryVerification, CategoryDelivery, CategorySafety,
		CategorySubscriptions, CategoryTechnical, CategoryContact,
	}
}

// KnowledgeEntry is a curated question/answer pair. Immutable once matched
// against; only administrators change entries, and only through the store.
type KnowledgeEntry struct {
	ID        int64
	Question  string
	Answer    string
	Category  Category
	Keywords  string // comma-separated
	Active    bool
	Priority  int
	CreatedAt time.Time
}

// Conversation records a single message exchange with the responder.
// Helpful is the only field mutated after creation.
type Conversation struct {
	ID             string
	SessionID      string
	UserID         string // empty for anonymous sessions
	UserMessage    string
	BotResponse    string
	MatchedEntryID int64 // 0 when no entry matched
	Helpful        *bool
	CreatedAt      time.Time
}

// ActionKind discriminates what tapping a quick action does.
type ActionKind string

const (
	ActionMessage ActionKind = "message"
	ActionURL     ActionKind = "url"
	ActionSearch  ActionKind = "search"
)

// QuickAction is a pre-authored shortcut offered alongside a response.
type QuickAction struct {
	ID          int64
	Title       string
	Description string
	Kind        ActionKind
	Value       string
	Icon        string
	Order       int
	Active      bool
}
