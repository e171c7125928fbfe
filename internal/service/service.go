package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	location *time.Location
	now      func() time.Time
}

func New(repo store.Repository, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		repo:     repo,
		location: location,
		now:      time.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) clock() time.Time {
	return s.now().In(s.location)
}

// WeekStart returns Monday 00:00 of the week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func monthStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

func (s *Service) audit(ctx context.Context, action string) *zerolog.Event {
	ev := log.Info().Str("component", "service").Str("action", action)
	if actor, ok := ActorFromContext(ctx); ok {
		ev = ev.Str("actor", actor.Subject)
	}
	return ev
}

type resolvedLine struct {
	product domain.Product
	flavor  domain.Flavor
	qty     int
}

func validateLine(line domain.CartLine) error {
	if strings.TrimSpace(line.Product) == "" || strings.TrimSpace(line.Flavor) == "" {
		return invalidInput("product and flavor are required")
	}
	if line.Quantity < 1 {
		return invalidInput("quantity must be a positive integer, got %d", line.Quantity)
	}
	if line.Quantity > maxQuantity {
		return invalidInput("quantity %d is too large", line.Quantity)
	}
	return nil
}

// resolveLine re-reads product and flavor so callers act on current stock.
func resolveLine(ctx context.Context, r store.Reader, line domain.CartLine) (resolvedLine, error) {
	product, err := r.FindProductByName(ctx, line.Product)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resolvedLine{}, fmt.Errorf("product %q: %w", strings.TrimSpace(line.Product), store.ErrNotFound)
		}
		return resolvedLine{}, err
	}
	flavor, err := r.FindFlavor(ctx, product.ID, store.NormalizeName(line.Flavor))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resolvedLine{}, fmt.Errorf("flavor %q of %q: %w", strings.TrimSpace(line.Flavor), product.Name, store.ErrNotFound)
		}
		return resolvedLine{}, err
	}
	return resolvedLine{product: *product, flavor: *flavor, qty: line.Quantity}, nil
}

// ResolveLine checks that the line names an existing product and flavor.
// Stock is not checked; that happens at commit time.
func (s *Service) ResolveLine(ctx context.Context, line domain.CartLine) error {
	if err := validateLine(line); err != nil {
		return err
	}
	_, err := resolveLine(ctx, s.repo, line)
	return err
}
