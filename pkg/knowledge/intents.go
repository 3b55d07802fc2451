package knowledge

import "strings"

// Intent is the coarse classification of a user message.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentThanks   Intent = "thanks"
	IntentGoodbye  Intent = "goodbye"
	IntentQuestion Intent = "question"
)

// Keyword lists are checked in this order; the first hit wins.
var (
	greetingKeywords = []string{
		"مرحبا", "اهلا", "أهلا", "هلا", "السلام عليكم", "صباح الخير", "مساء الخير",
		"hello", "hi", "hey",
	}
	thanksKeywords = []string{
		"شكرا", "شكراً", "مشكور", "يعطيك العافية", "جزاك الله",
		"thanks", "thank you", "thx",
	}
	goodbyeKeywords = []string{
		"وداعا", "وداعاً", "مع السلامة", "الى اللقاء", "إلى اللقاء", "باي",
		"bye", "goodbye", "see you",
	}
)

// ClassifyIntent matches the preprocessed message against the fixed keyword
// lists. Anything that is not a greeting, thanks, or goodbye is a question.
func ClassifyIntent(preprocessed string) Intent {
	for _, kw := range greetingKeywords {
		if strings.Contains(preprocessed, kw) {
			return IntentGreeting
		}
	}
	for _, kw := range thanksKeywords {
		if strings.Contains(preprocessed, kw) {
			return IntentThanks
		}
	}
	for _, kw := range goodbyeKeywords {
		if strings.Contains(preprocessed, kw) {
			return IntentGoodbye
		}
	}
	return IntentQuestion
}

// Fixed response pools, one uniform draw per reply.
var (
	greetingResponses = []string{
		"مرحباً بك في إدريسي مارت! كيف يمكنني مساعدتك اليوم؟",
		"أهلاً وسهلاً! أنا مساعد إدريسي مارت، تفضل بسؤالك.",
		"هلا بك! اسألني عن أي شيء يخص الإعلانات أو حسابك.",
	}
	thanksResponses = []string{
		"العفو! سعيد بمساعدتك.",
		"على الرحب والسعة، لا تتردد بالسؤال مجدداً.",
		"تشرفنا بخدمتك!",
	}
	goodbyeResponses = []string{
		"مع السلامة! نراك قريباً في إدريسي مارت.",
		"إلى اللقاء، يومك سعيد!",
		"وداعاً! إن احتجت شيئاً فأنا هنا دائماً.",
	}
	fallbackResponses = []string{
		"عذراً، لم أفهم سؤالك تماماً. هل يمكنك إعادة صياغته؟",
		"لم أجد إجابة مناسبة لسؤالك. جرب كلمات أخرى أو تواصل مع الدعم.",
		"هذا السؤال خارج معرفتي حالياً، لكن فريق الدعم جاهز لمساعدتك.",
	}
)

// FallbackResponses exposes the fallback pool so callers can assert pool
// membership in deterministic tests.
func FallbackResponses() []string {
	return append([]string(nil), fallbackResponses...)
}

func poolForIntent(intent Intent) []string {
	switch intent {
	case IntentGreeting:
		return greetingResponses
	case IntentThanks:
		return thanksResponses
	case IntentGoodbye:
		return goodbyeResponses
	default:
		return fallbackResponses
	}
}
