package recovery

import (
	"errors"
	"regexp"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	invalidCredentialMarker   = "invalid_grant"
	missingCredentialMarker   = "No access or refresh token is set"
	unsupportedLanguageMarker = "unsupported language_code"

	// serviceUnavailableDetails is sent by the service for transient
	// hiccups that resolve on their own.
	serviceUnavailableDetails = "Service unavailable."
)

var languageCodePattern = regexp.MustCompile(`unsupported language_code\W*([A-Za-z]{2,3}(?:[-_][A-Za-z0-9]{2,8})*)`)

// Classify maps a remote error to the action the client should take. Rules
// are evaluated in order and the first match wins, so a details string that
// names an invalid credential is always treated as an auth problem
// regardless of its code.
func Classify(code codes.Code, details string) Action {
	if strings.Contains(details, invalidCredentialMarker) {
		return ReAuthenticate()
	}

	if details == serviceUnavailableDetails {
		return Ignore()
	}

	switch code {
	case codes.Unavailable:
		if strings.Contains(details, missingCredentialMarker) {
			return ReAuthenticate()
		}
		return ReportNetworkIssue()

	case codes.InvalidArgument:
		if strings.Contains(details, missingCredentialMarker) {
			return ReAuthenticate()
		}
		if strings.Contains(details, unsupportedLanguageMarker) {
			return ReportLanguageUnsupported(extractLanguageCode(details))
		}
		return Fatal(details)

	default:
		return Fatal(details)
	}
}

// ClassifyError classifies any error. Errors carrying a gRPC status are
// classified by their code and message, errors from the local taxonomy map
// onto their matching action and everything else is fatal.
func ClassifyError(err error) Action {
	if err == nil {
		return Fatal("")
	}

	var (
		unsupported *UnsupportedLanguageError
		fatal       *FatalError
	)
	switch {
	case errors.Is(err, ErrAuthExpired):
		return ReAuthenticate()
	case errors.Is(err, ErrNetworkUnavailable):
		return ReportNetworkIssue()
	case errors.As(err, &unsupported):
		return ReportLanguageUnsupported(unsupported.Code)
	case errors.As(err, &fatal):
		return Fatal(fatal.Error())
	}

	// the wrapped status keeps details exactly as the service sent them
	var withStatus interface{ GRPCStatus() *status.Status }
	if errors.As(err, &withStatus) {
		if st := withStatus.GRPCStatus(); st != nil {
			return Classify(st.Code(), st.Message())
		}
	}

	return Fatal(err.Error())
}

func extractLanguageCode(details string) string {
	match := languageCodePattern.FindStringSubmatch(details)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}
