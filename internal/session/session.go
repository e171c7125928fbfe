package session

import (
	"context"
	"fmt"
	"time"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

type Flow string

const (
	FlowSale   Flow = "sale"
	FlowDefect Flow = "defect"
	FlowEdit   Flow = "edit"
)

type State string

const (
	StateCartBuilding       State = "cart_building"
	StateAwaitingCustomer   State = "awaiting_customer"
	StateDefectSelecting    State = "defect_selecting"
	StateEditSelectCustomer State = "edit_select_customer"
	StateEditSelectSale     State = "edit_select_sale"
	StateEditSelectAction   State = "edit_select_action"
)

var (
	ErrNotFound          = fmt.Errorf("conversation: %w", store.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("conversation transition: %w", store.ErrInvalidInput)
)

// Conversation is the per-chat context carried between turns. The cart is
// private to the conversation until commit.
type Conversation struct {
	ID         string            `json:"id"`
	Flow       Flow              `json:"flow"`
	State      State             `json:"state"`
	Cart       []domain.CartLine `json:"cart"`
	CustomerID *int64            `json:"customer_id,omitempty"`
	SaleID     *int64            `json:"sale_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func initialState(flow Flow) (State, bool) {
	switch flow {
	case FlowSale:
		return StateCartBuilding, true
	case FlowDefect:
		return StateDefectSelecting, true
	case FlowEdit:
		return StateEditSelectCustomer, true
	default:
		return "", false
	}
}

func (c *Conversation) expect(states ...State) error {
	for _, s := range states {
		if c.State == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not allowed in state %s", ErrInvalidTransition, c.Flow, c.State)
}

// Store keeps conversations by id. Get returns ErrNotFound for unknown or
// expired ids.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
	Delete(ctx context.Context, id string) error
}
