package explain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// readableLabels maps encoded column names to the phrases shown to end users.
// Columns absent from the map fall back to a title-cased transformation of
// the raw name, so the lookup is total over all possible column names.
var readableLabels = map[string]string{
	"hiring_signals_90d":       "Recent hiring activity",
	"funding_signals_90d":      "Recent funding activity",
	"news_signals_90d":         "Recent news mentions",
	"open_rate":                "Historical email open rate",
	"reply_rate":               "Historical email reply rate",
	"conversion_rate":          "Historical conversion rate",
	"days_since_last_contact":  "Days since last contact",
	"kb_chunks":                "Available company intelligence",
	"account_age_days":         "Relationship age (days)",
	"subject_length":           "Subject line length",
	"body_word_count":          "Email body length",
	"personalization_level":    "Personalization score",
	"readability_score":        "Email readability",
	"sentiment_score":          "Email sentiment",
	"has_cta":                  "Has call-to-action",
	"spam_words_count":         "Spam word count",
	"active_days_90d":          "Active days (last 90d)",
	"emails_sent_total":        "Total emails sent",
	"person_open_rate":         "Person open rate",
	"person_reply_rate":        "Person reply rate",
	"industry_technology":      "Technology industry",
	"industry_finance":         "Finance industry",
	"seniority_level_c_level":  "C-level seniority",
	"seniority_level_vp":       "VP-level seniority",
	"seniority_level_director": "Director-level",
	"function_hr":              "HR function",
	"function_finance":         "Finance function",
}

// Readable converts an encoded column name to a human phrase. Unknown names
// get underscores replaced by spaces and each word title-cased; the fallback
// is deterministic and never fails, whatever the input. The caser is built
// per call: cases.Caser carries transform state and must not be shared
// across goroutines.
func Readable(column string) string {
	if label, ok := readableLabels[column]; ok {
		return label
	}
	return cases.Title(language.English).String(strings.ReplaceAll(column, "_", " "))
}
