package cases

import (
	"context"
	"time"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/api"
)

// Confirmation is the backend's acknowledgement of a saved entry.
type Confirmation struct {
	ID int
	// CreatedAt is zero when the backend did not echo a timestamp.
	CreatedAt time.Time
}

// Backend persists notes and actions.
type Backend interface {
	SaveNote(ctx context.Context, a anchor.Anchor, text string) (Confirmation, error)
	SaveAction(ctx context.Context, a anchor.Anchor, action, status string) (Confirmation, error)
}

// HTTPBackend persists to the /investigator endpoints.
type HTTPBackend struct {
	transport api.Transport
}

// NewHTTPBackend creates a backend over the API transport.
func NewHTTPBackend(t api.Transport) *HTTPBackend {
	return &HTTPBackend{transport: t}
}

type noteRequest struct {
	AnchorID   string `json:"anchor_id" validate:"required"`
	AnchorType string `json:"anchor_type" validate:"required,oneof=ACCOUNT DEVICE"`
	RuleKey    string `json:"rule_key"`
	Note       string `json:"note" validate:"required"`
}

type actionRequest struct {
	AnchorID   string `json:"anchor_id" validate:"required"`
	AnchorType string `json:"anchor_type" validate:"required,oneof=ACCOUNT DEVICE"`
	RuleKey    string `json:"rule_key"`
	Action     string `json:"action" validate:"required"`
	Status     string `json:"status"`
}

type saveResponse struct {
	Status    string `json:"status"`
	ID        int    `json:"id"`
	CreatedAt string `json:"created_at"`
}

func (r saveResponse) confirmation() Confirmation {
	c := Confirmation{ID: r.ID}
	if t, ok := api.ParseTime(r.CreatedAt); ok {
		c.CreatedAt = t
	}
	return c
}

// SaveNote implements Backend.
func (b *HTTPBackend) SaveNote(ctx context.Context, a anchor.Anchor, text string) (Confirmation, error) {
	var out saveResponse
	err := api.PostJSONTo(ctx, b.transport, "/investigator/notes", noteRequest{
		AnchorID:   a.ID,
		AnchorType: string(a.Kind),
		RuleKey:    a.RuleKey,
		Note:       text,
	}, &out)
	if err != nil {
		return Confirmation{}, err
	}
	return out.confirmation(), nil
}

// SaveAction implements Backend.
func (b *HTTPBackend) SaveAction(ctx context.Context, a anchor.Anchor, action, status string) (Confirmation, error) {
	var out saveResponse
	err := api.PostJSONTo(ctx, b.transport, "/investigator/actions", actionRequest{
		AnchorID:   a.ID,
		AnchorType: string(a.Kind),
		RuleKey:    a.RuleKey,
		Action:     action,
		Status:     status,
	}, &out)
	if err != nil {
		return Confirmation{}, err
	}
	return out.confirmation(), nil
}
