package remote

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProtocolError is an error reported by the remote service, code and details
// as sent on the wire.
type ProtocolError struct {
	Code    codes.Code
	Details string
}

func NewProtocolError(code codes.Code, details string) *ProtocolError {
	return &ProtocolError{Code: code, Details: details}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("remote error (code %d %s): %s", uint32(e.Code), e.Code, e.Details)
}

func (e *ProtocolError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Details)
}
