package recovery

import "fmt"

// Guidance is the user facing explanation of a recovery action.
type Guidance struct {
	Title   string
	Details string
	// Suggestions name the follow-up actions a UI should offer.
	Suggestions []string
}

const (
	SuggestionRetry       = "retry"
	SuggestionLogin       = "login"
	SuggestionSetLanguage = "set_language"
	SuggestionSettings    = "settings"
)

// GuidanceFor describes the action for the user. fallbackLanguage is shown
// when the service did not name the rejected language code.
func GuidanceFor(action Action, fallbackLanguage string) Guidance {
	switch action.Kind {
	case ActionReAuthenticate:
		return Guidance{
			Title:       "Authentication Required",
			Details:     "Your session has expired or is invalid. Please login again.",
			Suggestions: []string{SuggestionLogin, SuggestionSettings},
		}
	case ActionReportNetworkIssue:
		return Guidance{
			Title:       "You are Offline!",
			Details:     "Please check your Internet Connection...",
			Suggestions: []string{SuggestionRetry},
		}
	case ActionReportLanguageUnsupported:
		code := action.LanguageCode
		if code == "" {
			code = fallbackLanguage
		}
		return Guidance{
			Title:       "Invalid Language Code",
			Details:     fmt.Sprintf("The language code %q is unsupported as of now.", code),
			Suggestions: []string{SuggestionSetLanguage},
		}
	case ActionFatal:
		details := "An error occurred during the conversation."
		if action.Message != "" {
			details = fmt.Sprintf("An error occurred during the conversation: %s", action.Message)
		}
		return Guidance{
			Title:       "Conversation Error",
			Details:     details,
			Suggestions: []string{SuggestionRetry},
		}
	case ActionRetry:
		return Guidance{Title: "Retrying", Details: "Trying your last request again..."}
	default:
		return Guidance{}
	}
}
