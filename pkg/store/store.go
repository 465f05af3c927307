// Package store owns the cart and the simulated user session of one visitor.
// Every mutation is written through to the key-value storage before the
// refresh callback and the notifier are called.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/model"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/notify"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultCartKey = "flowerShop_cart"
	DefaultUserKey = "flowerShop_user"

	// MaxQuantity is the largest quantity a single line may hold.
	MaxQuantity = math.MaxInt32
)

// Keys names the two storage entries of a store.
type Keys struct {
	Cart string
	User string
}

type Options struct {
	Keys     Keys
	Notifier notify.Notifier
	// OnChange is called with a fresh snapshot after every mutation.
	OnChange func(model.Snapshot)
	Log      logrus.FieldLogger
}

type Store struct {
	mu   sync.Mutex
	kv   storage.KV
	keys Keys
	cart model.Cart
	user *model.UserSession

	notifier notify.Notifier
	onChange func(model.Snapshot)
	log      logrus.FieldLogger

	mutations metric.Int64Counter
}

// Receipt describes a completed checkout.
type Receipt struct {
	OrderRef string `json:"order_ref"`
	Items    int    `json:"items"`
	Total    int64  `json:"total"`
}

func New(kv storage.KV, opts Options) *Store {
	if opts.Keys.Cart == "" {
		opts.Keys.Cart = DefaultCartKey
	}
	if opts.Keys.User == "" {
		opts.Keys.User = DefaultUserKey
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Multi{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	s := &Store{
		kv:       kv,
		keys:     opts.Keys,
		notifier: opts.Notifier,
		onChange: opts.OnChange,
		log:      opts.Log,
	}
	counter, err := otel.GetMeterProvider().Meter("storefront.store").Int64Counter(
		"store_mutations_total",
		metric.WithUnit("{ops}"),
		metric.WithDescription("cart and session mutations by operation"),
	)
	if err != nil {
		s.log.Warnf("failed to register store metrics: %v", err)
	}
	s.mutations = counter
	return s
}

// Load rehydrates the store. Missing entries leave it empty; an entry that
// does not decode is logged and ignored.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.kv.Get(ctx, s.keys.Cart)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.cart = nil
	case err != nil:
		return errors.Wrap(err, "could not load cart")
	default:
		var cart model.Cart
		if err := json.Unmarshal([]byte(raw), &cart); err != nil {
			s.log.WithField("error", err).Warn("discarding unreadable cart")
		} else {
			s.cart = sanitize(cart)
		}
	}

	raw, err = s.kv.Get(ctx, s.keys.User)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.user = nil
	case err != nil:
		return errors.Wrap(err, "could not load user")
	default:
		var user model.UserSession
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			s.log.WithField("error", err).Warn("discarding unreadable user session")
		} else {
			s.user = &user
		}
	}
	return nil
}

// sanitize drops lines that break the cart invariants: non-positive
// quantity or a repeated product id (the first occurrence wins).
func sanitize(cart model.Cart) model.Cart {
	out := make(model.Cart, 0, len(cart))
	for _, l := range cart {
		if l.Quantity < 1 || l.ProductID == "" || out.Index(l.ProductID) >= 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

// AddItem increments the line for id, or appends a new line with quantity 1.
func (s *Store) AddItem(ctx context.Context, id, name string, unitPrice int64) error {
	if strings.TrimSpace(id) == "" {
		return s.fail(ctx, &ValidationError{Msg: "product id is required"})
	}
	if unitPrice < 0 {
		return s.fail(ctx, &ValidationError{Msg: "price must not be negative"})
	}

	s.mu.Lock()
	if i := s.cart.Index(id); i >= 0 {
		if s.cart[i].Quantity >= MaxQuantity {
			s.mu.Unlock()
			return s.fail(ctx, &ValidationError{Msg: fmt.Sprintf("quantity cannot exceed %d", MaxQuantity)})
		}
		s.cart[i].Quantity++
	} else {
		s.cart = append(s.cart, model.CartLine{ProductID: id, Name: name, UnitPrice: unitPrice, Quantity: 1})
	}
	err := s.saveCart(ctx)
	snap := s.snapshot()
	s.mu.Unlock()

	s.changed(ctx, "add_item", snap)
	if err != nil {
		return err
	}
	s.notify(ctx, notify.Success, "Item added to cart!")
	return nil
}

// RemoveItem deletes the line for id. A missing id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	if i := s.cart.Index(id); i >= 0 {
		s.cart = append(s.cart[:i], s.cart[i+1:]...)
	}
	err := s.saveCart(ctx)
	snap := s.snapshot()
	s.mu.Unlock()

	s.changed(ctx, "remove_item", snap)
	if err != nil {
		return err
	}
	s.notify(ctx, notify.Info, "Item removed from cart")
	return nil
}

// SetQuantity sets the quantity of an existing line. A quantity of zero or
// less removes the line, keeping every stored quantity >= 1. A quantity
// above MaxQuantity is rejected.
func (s *Store) SetQuantity(ctx context.Context, id string, quantity int) error {
	if quantity > MaxQuantity {
		return s.fail(ctx, &ValidationError{Msg: fmt.Sprintf("quantity cannot exceed %d", MaxQuantity)})
	}

	s.mu.Lock()
	i := s.cart.Index(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	removed := quantity <= 0
	if removed {
		s.cart = append(s.cart[:i], s.cart[i+1:]...)
	} else {
		s.cart[i].Quantity = int32(quantity)
	}
	err := s.saveCart(ctx)
	snap := s.snapshot()
	s.mu.Unlock()

	s.changed(ctx, "set_quantity", snap)
	if err != nil {
		return err
	}
	if removed {
		s.notify(ctx, notify.Info, "Item removed from cart")
	}
	return nil
}

// Checkout empties the cart of an authenticated visitor. Nothing is sent
// anywhere; the receipt only echoes what was in the cart.
func (s *Store) Checkout(ctx context.Context) (*Receipt, error) {
	s.mu.Lock()
	if len(s.cart) == 0 {
		s.mu.Unlock()
		return nil, s.fail(ctx, &ValidationError{Msg: "Your cart is empty!"})
	}
	if s.user == nil || !s.user.Authenticated {
		s.mu.Unlock()
		return nil, s.fail(ctx, &AuthRequiredError{Msg: "Please sign in to place an order"})
	}

	receipt := &Receipt{
		OrderRef: uuid.NewString(),
		Items:    s.cart.Count(),
		Total:    s.cart.Total(),
	}
	previous := s.cart
	s.cart = nil
	if err := s.saveCart(ctx); err != nil {
		// keep the goods if the empty cart could not be written
		s.cart = previous
		s.mu.Unlock()
		return nil, err
	}
	snap := s.snapshot()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"order":       receipt.OrderRef,
		"order.items": receipt.Items,
		"order.total": receipt.Total,
	}).Info("order placed")
	s.changed(ctx, "checkout", snap)
	s.notify(ctx, notify.Success, "Order placed! We will contact you to confirm it.")
	return receipt, nil
}

// Login accepts any non-empty email and password.
func (s *Store) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return s.fail(ctx, &ValidationError{Msg: "Please fill in all fields"})
	}

	name, _, _ := strings.Cut(email, "@")
	if name == "" {
		name = email
	}
	user := &model.UserSession{Email: email, DisplayName: name, Authenticated: true}
	if err := s.signIn(ctx, user, "login"); err != nil {
		return err
	}
	s.notify(ctx, notify.Success, fmt.Sprintf("Welcome, %s!", name))
	return nil
}

// Register accepts any non-empty name, email and password whose
// confirmation matches.
func (s *Store) Register(ctx context.Context, name, email, password, confirm string) error {
	if password != confirm {
		return s.fail(ctx, &ValidationError{Msg: "Passwords do not match!"})
	}
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return s.fail(ctx, &ValidationError{Msg: "Please fill in all fields"})
	}

	user := &model.UserSession{Email: email, DisplayName: name, Authenticated: true}
	if err := s.signIn(ctx, user, "register"); err != nil {
		return err
	}
	s.notify(ctx, notify.Success, fmt.Sprintf("Registration complete! Welcome, %s!", name))
	return nil
}

func (s *Store) signIn(ctx context.Context, user *model.UserSession, op string) error {
	s.mu.Lock()
	previous := s.user
	s.user = user
	err := s.saveUser(ctx)
	if err != nil {
		s.user = previous
	}
	snap := s.snapshot()
	s.mu.Unlock()

	s.changed(ctx, op, snap)
	return err
}

// Logout clears the session and removes its stored entry.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	err := s.saveUser(ctx)
	snap := s.snapshot()
	s.mu.Unlock()

	s.changed(ctx, "logout", snap)
	if err != nil {
		return err
	}
	s.notify(ctx, notify.Success, "You have signed out.")
	return nil
}

func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// User returns a copy of the current session, or nil when anonymous.
func (s *Store) User() *model.UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.user.Authenticated
}

// snapshot must be called with s.mu held.
func (s *Store) snapshot() model.Snapshot {
	snap := model.Snapshot{
		Items: s.cart.Clone(),
		Count: s.cart.Count(),
		Total: s.cart.Total(),
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// saveCart must be called with s.mu held.
func (s *Store) saveCart(ctx context.Context) error {
	cart := s.cart
	if cart == nil {
		cart = model.Cart{}
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return errors.Wrap(err, "failed to encode cart")
	}
	if err := s.kv.Set(ctx, s.keys.Cart, string(data)); err != nil {
		s.log.WithField("error", err).Error("failed to persist cart")
		return errors.Wrap(err, "failed to persist cart")
	}
	return nil
}

// saveUser must be called with s.mu held.
func (s *Store) saveUser(ctx context.Context) error {
	if s.user == nil {
		if err := s.kv.Delete(ctx, s.keys.User); err != nil {
			s.log.WithField("error", err).Error("failed to clear user")
			return errors.Wrap(err, "failed to clear user")
		}
		return nil
	}
	data, err := json.Marshal(s.user)
	if err != nil {
		return errors.Wrap(err, "failed to encode user")
	}
	if err := s.kv.Set(ctx, s.keys.User, string(data)); err != nil {
		s.log.WithField("error", err).Error("failed to persist user")
		return errors.Wrap(err, "failed to persist user")
	}
	return nil
}

func (s *Store) changed(ctx context.Context, op string, snap model.Snapshot) {
	if s.mutations != nil {
		s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	if s.onChange != nil {
		s.onChange(snap)
	}
}

func (s *Store) notify(ctx context.Context, level notify.Level, msg string) {
	s.notifier.Notify(ctx, notify.New(level, msg))
}

// fail reports err to the visitor and returns it.
func (s *Store) fail(ctx context.Context, err error) error {
	s.notify(ctx, notify.Error, err.Error())
	return err
}
