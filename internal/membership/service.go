// internal/membership/service.go
package membership

import (
	"context"
)

// Service appends membership registrations to the member ledger.
type Service interface {
	Append(ctx context.Context, record MemberRecord) (*Ack, error)
}
