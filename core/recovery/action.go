package recovery

import "fmt"

// ActionKind tags the variant held by an Action.
type ActionKind int

const (
	// ActionIgnore marks a benign error that should not interrupt the user.
	ActionIgnore ActionKind = iota
	ActionRetry
	ActionReAuthenticate
	ActionReportNetworkIssue
	ActionReportLanguageUnsupported
	ActionFatal
)

func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionRetry:
		return "retry"
	case ActionReAuthenticate:
		return "re_authenticate"
	case ActionReportNetworkIssue:
		return "report_network_issue"
	case ActionReportLanguageUnsupported:
		return "report_language_unsupported"
	case ActionFatal:
		return "fatal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action is the classified next step after a remote error. Only the field
// matching Kind carries data: LanguageCode for ActionReportLanguageUnsupported
// and Message for ActionFatal.
type Action struct {
	Kind         ActionKind
	LanguageCode string
	Message      string
}

func Ignore() Action             { return Action{Kind: ActionIgnore} }
func Retry() Action              { return Action{Kind: ActionRetry} }
func ReAuthenticate() Action     { return Action{Kind: ActionReAuthenticate} }
func ReportNetworkIssue() Action { return Action{Kind: ActionReportNetworkIssue} }

func ReportLanguageUnsupported(code string) Action {
	return Action{Kind: ActionReportLanguageUnsupported, LanguageCode: code}
}

func Fatal(message string) Action {
	return Action{Kind: ActionFatal, Message: message}
}

// Terminal reports whether the action ends the session for good. Fatal and
// re-authentication are never retried silently.
func (a Action) Terminal() bool {
	return a.Kind == ActionFatal || a.Kind == ActionReAuthenticate
}

func (a Action) String() string {
	switch a.Kind {
	case ActionReportLanguageUnsupported:
		return fmt.Sprintf("%s(%s)", a.Kind, a.LanguageCode)
	case ActionFatal:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Message)
	default:
		return a.Kind.String()
	}
}
