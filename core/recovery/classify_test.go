package recovery

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyRules(t *testing.T) {
	testCases := []struct {
		name     string
		code     codes.Code
		details  string
		expected Action
	}{
		{name: "invalid grant", code: codes.Unauthenticated, details: "oauth2: invalid_grant", expected: ReAuthenticate()},
		{name: "service unavailable", code: codes.Unavailable, details: "Service unavailable.", expected: Ignore()},
		{name: "offline", code: codes.Unavailable, details: "connection refused", expected: ReportNetworkIssue()},
		{name: "offline without token", code: codes.Unavailable, details: "Error: No access or refresh token is set", expected: ReAuthenticate()},
		{name: "invalid argument without token", code: codes.InvalidArgument, details: "No access or refresh token is set", expected: ReAuthenticate()},
		{name: "unsupported language", code: codes.InvalidArgument, details: "unsupported language_code: xx-YY", expected: ReportLanguageUnsupported("xx-YY")},
		{name: "unsupported language without code", code: codes.InvalidArgument, details: "unsupported language_code", expected: ReportLanguageUnsupported("")},
		{name: "other invalid argument", code: codes.InvalidArgument, details: "bad audio config", expected: Fatal("bad audio config")},
		{name: "other code", code: codes.Internal, details: "boom", expected: Fatal("boom")},
		{name: "ok code", code: codes.OK, details: "", expected: Fatal("")},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := Classify(testCase.code, testCase.details); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestClassifyInvalidCredentialTakesPrecedence(t *testing.T) {
	details := "invalid_grant while network Service unavailable"
	if got := Classify(codes.Unavailable, details); got != ReAuthenticate() {
		t.Fatalf("expected invalid credential to win over the network code, got %v", got)
	}
	if got := Classify(codes.InvalidArgument, "invalid_grant unsupported language_code fr"); got != ReAuthenticate() {
		t.Fatalf("expected invalid credential to win over the language rule, got %v", got)
	}
}

func TestClassifyMissingCredentialBeatsLanguageRule(t *testing.T) {
	details := "No access or refresh token is set; unsupported language_code de"
	if got := Classify(codes.InvalidArgument, details); got != ReAuthenticate() {
		t.Fatalf("expected re-authentication, got %v", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []string{"", "invalid_grant", "Service unavailable.", "unsupported language_code en-GB", "x"}
	for code := codes.OK; code <= codes.Unauthenticated; code++ {
		for _, details := range inputs {
			first := Classify(code, details)
			for range 3 {
				if got := Classify(code, details); got != first {
					t.Fatalf("classification of (%v, %q) changed from %v to %v", code, details, first, got)
				}
			}
			if first.Kind == ActionRetry {
				t.Fatalf("classifier must never request retries, got %v for (%v, %q)", first, code, details)
			}
		}
	}
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Action
	}{
		{name: "grpc status", err: status.Error(codes.Unavailable, "dns failure"), expected: ReportNetworkIssue()},
		{name: "wrapped grpc status", err: fmt.Errorf("assist: %w", status.Error(codes.InvalidArgument, "unsupported language_code ja")), expected: ReportLanguageUnsupported("ja")},
		{name: "wrapped service unavailable", err: fmt.Errorf("stream: %w", status.Error(codes.Unavailable, "Service unavailable.")), expected: Ignore()},
		{name: "auth expired", err: fmt.Errorf("refresh: %w", ErrAuthExpired), expected: ReAuthenticate()},
		{name: "network", err: ErrNetworkUnavailable, expected: ReportNetworkIssue()},
		{name: "unsupported language", err: &UnsupportedLanguageError{Code: "eo"}, expected: ReportLanguageUnsupported("eo")},
		{name: "fatal client error", err: fmt.Errorf("turn: %w", &FatalError{Message: "mic busy", Err: errors.New("device gone")}), expected: Fatal("mic busy: device gone")},
		{name: "plain", err: errors.New("disk on fire"), expected: Fatal("disk on fire")},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := ClassifyError(testCase.err); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestGuidanceFallsBackToConfiguredLanguage(t *testing.T) {
	guidance := GuidanceFor(ReportLanguageUnsupported(""), "en-US")
	if guidance.Title != "Invalid Language Code" {
		t.Fatalf("unexpected title %q", guidance.Title)
	}
	if guidance.Details != `The language code "en-US" is unsupported as of now.` {
		t.Fatalf("unexpected details %q", guidance.Details)
	}
}

func TestTerminalActions(t *testing.T) {
	for _, action := range []Action{Fatal("boom"), ReAuthenticate()} {
		if !action.Terminal() {
			t.Fatalf("expected %v to be terminal", action)
		}
	}
	for _, action := range []Action{Ignore(), Retry(), ReportNetworkIssue(), ReportLanguageUnsupported("eo")} {
		if action.Terminal() {
			t.Fatalf("expected %v not to be terminal", action)
		}
	}
}
