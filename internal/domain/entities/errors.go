package entities

import "errors"

// Sentinel errors returned by the populator and the store. Callers branch on
// them with errors.Is; most are expected outcomes, not failures.
var (
	ErrGameNotFound            = errors.New("game not found")
	ErrEntityNotFound          = errors.New("entity not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrDuplicateName           = errors.New("an active entity with this name already exists")
	ErrDuplicateRelation       = errors.New("an active relation with this source, target and type already exists")
	ErrInvalidEntityType       = errors.New("invalid entity type")
	ErrInvalidAttributeForType = errors.New("attribute key not allowed for entity type")
	ErrInvalidValue            = errors.New("invalid attribute value")
	ErrInvalidRelationType     = errors.New("invalid relation type")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAmbiguousReference      = errors.New("ambiguous entity reference")
	ErrInvalidCycle            = errors.New("invalid cycle")
)
