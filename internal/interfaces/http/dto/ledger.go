package dto

import (
	"encoding/json"
	"time"

	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/ledger"
)

// LedgerEntryResponse is the API shape of a ledger entry
type LedgerEntryResponse struct {
	ID          string    `json:"id"`
	LedgerType  string    `json:"ledger_type"`
	AccountRef  string    `json:"account_ref"`
	Direction   string    `json:"direction"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	ExternalRef string    `json:"external_ref"`
	PostedAt    time.Time `json:"posted_at"`
}

// NewLedgerEntryResponse maps a ledger entry to its API shape
func NewLedgerEntryResponse(e *ledger.Entry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:          e.ID.String(),
		LedgerType:  string(e.LedgerType),
		AccountRef:  e.AccountRef,
		Direction:   string(e.Direction),
		Amount:      e.Amount.String(),
		Currency:    string(e.Currency),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID.String(),
		ExternalRef: e.ExternalRef,
		PostedAt:    e.PostedAt,
	}
}

// NewLedgerEntryResponses maps a slice of entries
func NewLedgerEntryResponses(entries []ledger.Entry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(entries))
	for i := range entries {
		out[i] = NewLedgerEntryResponse(&entries[i])
	}
	return out
}

// BalanceResponse is the derived balance of one account
type BalanceResponse struct {
	LedgerType string `json:"ledger_type"`
	AccountRef string `json:"account_ref"`
	Balance    string `json:"balance"`
}

// AuditEventResponse is the API shape of an audit event
type AuditEventResponse struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuditEventResponses maps audit events to their API shape
func NewAuditEventResponses(events []audit.Event) []AuditEventResponse {
	out := make([]AuditEventResponse, len(events))
	for i, e := range events {
		out[i] = AuditEventResponse{
			ID:         e.ID.String(),
			ActorID:    e.ActorID.String(),
			ActorRole:  e.ActorRole,
			EntityType: e.EntityType,
			EntityID:   e.EntityID.String(),
			Action:     e.Action,
			Notes:      e.Notes,
			OccurredAt: e.OccurredAt,
		}
	}
	return out
}

// AnchorResponse is the API shape of an anchor record
type AnchorResponse struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	EventType     string          `json:"event_type"`
	CanonicalHash string          `json:"canonical_hash"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewAnchorResponse maps an anchor record to its API shape
func NewAnchorResponse(a *audit.AnchorRecord) AnchorResponse {
	return AnchorResponse{
		ID:            a.ID.String(),
		EntityType:    a.EntityType,
		EntityID:      a.EntityID.String(),
		EventType:     a.EventType,
		CanonicalHash: a.CanonicalHash,
		Payload:       json.RawMessage(a.Payload),
		CreatedAt:     a.CreatedAt,
	}
}
