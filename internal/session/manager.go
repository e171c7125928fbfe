package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
	"ashkicharm/backend/internal/xid"
)

// Engine is the part of the service layer a conversation drives.
type Engine interface {
	ResolveLine(ctx context.Context, line domain.CartLine) error
	CommitCart(ctx context.Context, lines []domain.CartLine, customerName string) (*domain.Receipt, error)
	RegisterDefect(ctx context.Context, line domain.CartLine) (*domain.DefectReceipt, error)
	CustomerSales(ctx context.Context, customerID int64) (*domain.CustomerSales, error)
	EditSale(ctx context.Context, saleID int64, line domain.CartLine) (*domain.Sale, error)
	AddSaleLine(ctx context.Context, customerID int64, line domain.CartLine) (*domain.Sale, error)
	DeleteSale(ctx context.Context, saleID int64) error
	DeleteAllSalesForCustomer(ctx context.Context, customerID int64) (int, error)
}

type Action string

const (
	ActionEdit      Action = "edit"
	ActionAddLine   Action = "add_line"
	ActionDelete    Action = "delete"
	ActionDeleteAll Action = "delete_all"
)

type ActionRequest struct {
	Action Action           `json:"action"`
	Line   *domain.CartLine `json:"line,omitempty"`
}

// Outcome is what a turn produced. Conversation is nil once the flow is over.
type Outcome struct {
	Conversation *Conversation         `json:"conversation,omitempty"`
	Closed       bool                  `json:"closed"`
	Receipt      *domain.Receipt       `json:"receipt,omitempty"`
	Defect       *domain.DefectReceipt `json:"defect,omitempty"`
	Sale         *domain.Sale          `json:"sale,omitempty"`
	Customer     *domain.CustomerSales `json:"customer,omitempty"`
	Removed      int                   `json:"removed,omitempty"`
}

const lockStripes = 64

type Manager struct {
	engine Engine
	store  Store
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

func NewManager(engine Engine, st Store) *Manager {
	return &Manager{engine: engine, store: st, now: time.Now}
}

// lock serializes turns of one conversation inside this process.
func (m *Manager) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	l := &m.locks[h.Sum32()%lockStripes]
	l.Lock()
	return l.Unlock
}

func (m *Manager) Begin(ctx context.Context, flow Flow) (*Conversation, error) {
	state, ok := initialState(flow)
	if !ok {
		return nil, fmt.Errorf("%w: unknown flow %q", ErrInvalidTransition, flow)
	}
	now := m.now()
	c := &Conversation{
		ID:        xid.New("conv"),
		Flow:      flow,
		State:     state,
		Cart:      make([]domain.CartLine, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, c); err != nil {
		return nil, err
	}
	log.Debug().Str("conversation", c.ID).Str("flow", string(flow)).Msg("conversation started")
	return c, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Conversation, error) {
	return m.store.Get(ctx, id)
}

// Cancel drops the conversation and whatever it was holding. The shared
// store is never touched.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	defer m.lock(id)()
	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}

// AddCartLine checks that the product and flavor exist and appends the
// line. Stock is left to commit. A rejected line leaves the cart as it was.
func (m *Manager) AddCartLine(ctx context.Context, id string, line domain.CartLine) (*Conversation, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateCartBuilding); err != nil {
		return nil, err
	}
	if err := m.engine.ResolveLine(ctx, line); err != nil {
		return nil, err
	}
	line.Product = strings.TrimSpace(line.Product)
	line.Flavor = strings.TrimSpace(line.Flavor)
	c.Cart = append(c.Cart, line)
	return c, m.save(ctx, c)
}

func (m *Manager) RemoveCartLine(ctx context.Context, id string, index int) (*Conversation, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateCartBuilding); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(c.Cart) {
		return nil, fmt.Errorf("cart line %d: %w", index, store.ErrNotFound)
	}
	c.Cart = slices.Delete(c.Cart, index, index+1)
	return c, m.save(ctx, c)
}

// Checkout closes the cart and waits for the customer name.
func (m *Manager) Checkout(ctx context.Context, id string) (*Conversation, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateCartBuilding); err != nil {
		return nil, err
	}
	if len(c.Cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidTransition)
	}
	c.State = StateAwaitingCustomer
	return c, m.save(ctx, c)
}

// Back reopens the cart from the customer prompt.
func (m *Manager) Back(ctx context.Context, id string) (*Conversation, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateAwaitingCustomer); err != nil {
		return nil, err
	}
	c.State = StateCartBuilding
	return c, m.save(ctx, c)
}

// Commit hands the cart to the sale engine. Short stock and bad input send
// the conversation back to cart building with the cart intact.
func (m *Manager) Commit(ctx context.Context, id string, customerName string) (*Outcome, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateAwaitingCustomer); err != nil {
		return nil, err
	}

	receipt, err := m.engine.CommitCart(ctx, c.Cart, customerName)
	if err != nil {
		c.State = StateCartBuilding
		return nil, m.fail(ctx, c, err)
	}
	return m.finish(ctx, c, &Outcome{Receipt: receipt})
}

func (m *Manager) SubmitDefect(ctx context.Context, id string, line domain.CartLine) (*Outcome, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateDefectSelecting); err != nil {
		return nil, err
	}

	receipt, err := m.engine.RegisterDefect(ctx, line)
	if err != nil {
		return nil, m.fail(ctx, c, err)
	}
	return m.finish(ctx, c, &Outcome{Defect: receipt})
}

// SelectCustomer picks the customer whose sales will be edited. Picking
// again before an action is chosen replaces the selection.
func (m *Manager) SelectCustomer(ctx context.Context, id string, customerID int64) (*Outcome, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateEditSelectCustomer, StateEditSelectSale); err != nil {
		return nil, err
	}

	customer, err := m.engine.CustomerSales(ctx, customerID)
	if err != nil {
		return nil, m.fail(ctx, c, err)
	}
	c.CustomerID = &customer.Customer.ID
	c.SaleID = nil
	c.State = StateEditSelectSale
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	return &Outcome{Conversation: c, Customer: customer}, nil
}

func (m *Manager) SelectSale(ctx context.Context, id string, saleID int64) (*Outcome, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.expect(StateEditSelectSale, StateEditSelectAction); err != nil {
		return nil, err
	}

	customer, err := m.engine.CustomerSales(ctx, *c.CustomerID)
	if err != nil {
		return nil, m.fail(ctx, c, err)
	}
	idx := slices.IndexFunc(customer.Sales, func(s domain.Sale) bool { return s.ID == saleID })
	if idx < 0 {
		return nil, fmt.Errorf("%w: sale %d does not belong to customer %d", ErrInvalidTransition, saleID, *c.CustomerID)
	}
	sale := customer.Sales[idx]
	c.SaleID = &sale.ID
	c.State = StateEditSelectAction
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	return &Outcome{Conversation: c, Sale: &sale}, nil
}

// Apply runs the chosen reversal action. add_line and delete_all act on the
// selected customer; edit and delete need a selected sale.
func (m *Manager) Apply(ctx context.Context, id string, req ActionRequest) (*Outcome, error) {
	defer m.lock(id)()
	c, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionEdit, ActionDelete:
		err = c.expect(StateEditSelectAction)
	case ActionAddLine, ActionDeleteAll:
		err = c.expect(StateEditSelectSale, StateEditSelectAction)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, req.Action)
	}
	if err != nil {
		return nil, err
	}
	if (req.Action == ActionEdit || req.Action == ActionAddLine) && req.Line == nil {
		return nil, fmt.Errorf("%w: action %s needs a line", ErrInvalidTransition, req.Action)
	}

	out := &Outcome{}
	switch req.Action {
	case ActionEdit:
		out.Sale, err = m.engine.EditSale(ctx, *c.SaleID, *req.Line)
	case ActionAddLine:
		out.Sale, err = m.engine.AddSaleLine(ctx, *c.CustomerID, *req.Line)
	case ActionDelete:
		err = m.engine.DeleteSale(ctx, *c.SaleID)
	case ActionDeleteAll:
		out.Removed, err = m.engine.DeleteAllSalesForCustomer(ctx, *c.CustomerID)
	}
	if err != nil {
		return nil, m.fail(ctx, c, err)
	}
	return m.finish(ctx, c, out)
}

func (m *Manager) save(ctx context.Context, c *Conversation) error {
	c.UpdatedAt = m.now()
	return m.store.Save(ctx, c)
}

func (m *Manager) finish(ctx context.Context, c *Conversation, out *Outcome) (*Outcome, error) {
	if err := m.store.Delete(ctx, c.ID); err != nil {
		log.Warn().Err(err).Str("conversation", c.ID).Msg("failed to clear finished conversation")
	}
	out.Closed = true
	return out, nil
}

// fail decides what survives an engine error. Recoverable input problems
// keep the conversation so the user can correct them; anything else clears
// it so the chat cannot get stuck.
func (m *Manager) fail(ctx context.Context, c *Conversation, cause error) error {
	if recoverable(cause) {
		if err := m.save(ctx, c); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	}

	if !errors.Is(cause, store.ErrNotFound) {
		log.Error().Err(cause).Str("conversation", c.ID).Str("state", string(c.State)).Msg("conversation turn failed")
	}
	if err := m.store.Delete(ctx, c.ID); err != nil {
		log.Warn().Err(err).Str("conversation", c.ID).Msg("failed to clear conversation")
	}
	return cause
}

func recoverable(err error) bool {
	return errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrInvalidInput) ||
		errors.Is(err, store.ErrDuplicate)
}
