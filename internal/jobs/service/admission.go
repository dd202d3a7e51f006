package service

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hivelearn/relay/internal/jobs/domain"
)

// admission validates a submission's payload against its kind's schema.
// It is the structural half of the admission gate; the quota half lives in
// the ledger. Nothing reaches the queue without passing both.
type admission struct {
	validate *validator.Validate
}

func newAdmission() *admission {
	return &admission{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// checkPayload rejects malformed or schema-violating payloads with
// domain.ErrInvalidPayload. It never consumes quota.
func (a *admission) checkPayload(kind domain.Kind, payload json.RawMessage) error {
	switch kind {
	case domain.KindMail:
		var p domain.MailPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if err := a.validate.Struct(&p); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	case domain.KindNotification:
		var p domain.NotificationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if err := a.validate.Struct(&p); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	default:
		return domain.ErrUnknownKind
	}
	return nil
}
