package ledger

import (
	"strings"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
)

const maxOperationIDLength = 255

// Operation identifies one logical attempt of a command or one domain event
// instance within its class namespace.
type Operation struct {
	ID    string
	Class enums.OperationClass
}

// APIOperation builds the identity for a command carrying an idempotency token.
func APIOperation(token string) Operation {
	return Operation{ID: strings.TrimSpace(token), Class: enums.OperationClassAPI}
}

// EventOperation builds the identity for business logic driven by an event.
func EventOperation(eventID string) Operation {
	return Operation{ID: strings.TrimSpace(eventID), Class: enums.OperationClassEvent}
}

func (o Operation) Validate() error {
	if o.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation id is required")
	}
	if len(o.ID) > maxOperationIDLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation id is too long")
	}
	if !o.Class.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid operation class")
	}
	return nil
}

func (o Operation) String() string {
	return string(o.Class) + ":" + o.ID
}

// Claim is the outcome of TryClaim. When Claimed is false, Entry holds the
// winner's row; a nil Entry.Result means the winner has not finished.
type Claim struct {
	Claimed bool
	Entry   models.LedgerEntry
}

// InFlight reports a lost claim whose winner has not recorded a result yet.
func (c Claim) InFlight() bool {
	return !c.Claimed && c.Entry.Result == nil
}

// PriorResult returns the winner's recorded result, if any.
func (c Claim) PriorResult() (string, bool) {
	if c.Claimed || c.Entry.Result == nil {
		return "", false
	}
	return *c.Entry.Result, true
}
