package knowledge

// Suggestion templates appended after the main response. Category suggestions
// live in a lookup table so the mapping stays exhaustive and testable.
var categorySuggestions = map[Category]string{
	CategoryGeneral:       "يمكنك أيضاً تصفح الأسئلة الشائعة لمعرفة المزيد عن إدريسي مارت.",
	CategoryAds:           "هل تريد نشر إعلان جديد؟ اضغط على زر \"أضف إعلانك\" في الصفحة الرئيسية.",
	CategoryAccount:       "تستطيع إدارة بياناتك من صفحة حسابي في أي وقت.",
	CategoryPayments:      "راجع صفحة طرق الدفع للاطلاع على الوسائل المتاحة في منطقتك.",
	CategoryVerification:  "تأكد من تفعيل رقم هاتفك لتوثيق حسابك وزيادة ثقة المشترين.",
	CategoryDelivery:      "اتفق مع الطرف الآخر على طريقة تسليم آمنة ومكان عام.",
	CategorySafety:        "لا تشارك بياناتك البنكية أبداً خارج المنصة، وبلّغ عن أي إعلان مشبوه.",
	CategorySubscriptions: "باقات النشر المميز تمنح إعلانك ظهوراً أعلى، اطلع عليها من صفحة الباقات.",
	CategoryTechnical:     "إذا استمرت المشكلة التقنية، أرسل لنا لقطة شاشة عبر صفحة الدعم.",
	CategoryContact:       "فريق الدعم متواجد يومياً، تواصل معنا عبر صفحة اتصل بنا.",
}

var intentSuggestions = map[Intent]string{
	IntentGreeting: "يمكنك سؤالي عن نشر الإعلانات، التوثيق، الدفع، أو أي شيء آخر.",
	IntentThanks:   "هل هناك شيء آخر يمكنني مساعدتك به؟",
	IntentGoodbye:  "نسعد بزيارتك دائماً، لا تنس تفقد الإعلانات الجديدة!",
}

const genericSuggestion = "إن لم تجد ما تبحث عنه، تواصل مع فريق الدعم وسنرد عليك بأسرع وقت."

// SuggestionFor picks the suggestion block for a reply: the matched entry's
// category wins, then the intent, then the generic line.
func SuggestionFor(intent Intent, matched *KnowledgeEntry) string {
	if matched != nil {
		if s, ok := categorySuggestions[matched.Category]; ok {
			return s
		}
		return genericSuggestion
	}
	if s, ok := intentSuggestions[intent]; ok {
		return s
	}
	return genericSuggestion
}

// Quick replies offered under the reply, capped at four.
var intentQuickReplies = map[Intent][]string{
	IntentGreeting: {"كيف أنشر إعلاناً؟", "كيف أوثق حسابي؟", "ما هي طرق الدفع؟", "تواصل مع الدعم"},
	IntentThanks:   {"سؤال آخر", "تصفح الإعلانات", "تواصل مع الدعم"},
	IntentGoodbye:  {"العودة للرئيسية", "تصفح الإعلانات"},
}

var categoryQuickReplies = map[Category][]string{
	CategoryAds:           {"كيف أعدّل إعلاني؟", "لماذا رُفض إعلاني؟", "كم يبقى الإعلان منشوراً؟"},
	CategoryAccount:       {"تغيير رقم الهاتف", "حذف الحساب", "استعادة كلمة المرور"},
	CategoryPayments:      {"طرق الدفع", "استرجاع المبلغ", "أسعار الباقات"},
	CategoryVerification:  {"توثيق الحساب", "لم يصلني رمز التحقق"},
	CategorySafety:        {"الإبلاغ عن إعلان", "نصائح البيع الآمن"},
	CategorySubscriptions: {"باقات النشر", "تمييز إعلاني"},
	CategoryContact:       {"تواصل مع الدعم", "ساعات العمل"},
}

func quickRepliesFor(intent Intent, matched *KnowledgeEntry) []string {
	var replies []string
	if matched != nil {
		replies = categoryQuickReplies[matched.Category]
	}
	if len(replies) == 0 {
		replies = intentQuickReplies[intent]
	}
	if len(replies) == 0 {
		replies = []string{"كيف أنشر إعلاناً؟", "تواصل مع الدعم"}
	}
	if len(replies) > maxQuickReplies {
		replies = replies[:maxQuickReplies]
	}
	return append([]string(nil), replies...)
}
