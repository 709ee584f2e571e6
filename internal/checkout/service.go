package checkout

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/domain"
	"github.com/alferdousrana/Lifesheba/internal/metrics"
	"github.com/alferdousrana/Lifesheba/internal/pricing"
)

const (
	checkoutPath        = "/orders/checkout/"
	accountProfilePath  = "/accounts/profile/me/"
	customerProfilePath = "/customers/profile/"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrMissingFields = errors.New("name, phone and address are required")
)

type Request struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// WithDefaults fills the empty fields of r from d.
func (r Request) WithDefaults(d Request) Request {
	if strings.TrimSpace(r.Name) == "" {
		r.Name = d.Name
	}
	if strings.TrimSpace(r.Phone) == "" {
		r.Phone = d.Phone
	}
	if strings.TrimSpace(r.Address) == "" {
		r.Address = d.Address
	}
	return r
}

func (r Request) complete() bool {
	return r.Name != "" && r.Phone != "" && r.Address != ""
}

type OrderItem struct {
	ProductID domain.ProductID `json:"product_id"`
	Quantity  int              `json:"quantity"`
}

// OrderPayload is the body the remote API expects on checkout.
type OrderPayload struct {
	ShippingAddress string      `json:"shipping_address"`
	PhoneNumber     string      `json:"phone_number"`
	Items           []OrderItem `json:"items"`
}

type Result struct {
	Quote pricing.Quote      `json:"quote"`
	Order stdjson.RawMessage `json:"order,omitempty"`
}

// OrderSubmitter posts the order to the remote API.
type OrderSubmitter interface {
	Post(ctx context.Context, path, token string, in, out any) error
}

// ProfileFetcher reads the signed-in user's profiles from the remote API.
type ProfileFetcher interface {
	Get(ctx context.Context, path, token string, out any) error
}

// Cart is the part of the cart store checkout needs.
type Cart interface {
	Items() []domain.LineItem
	Clear(ctx context.Context)
}

type Service struct {
	api      OrderSubmitter
	profiles ProfileFetcher
	shipping *pricing.ShippingPolicy
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type ServiceOption func(*Service)

// WithProfiles lets checkout fill missing contact fields from the account
// and customer profiles of the token's user.
func WithProfiles(p ProfileFetcher) ServiceOption {
	return func(s *Service) {
		s.profiles = p
	}
}

func NewService(api OrderSubmitter, shipping *pricing.ShippingPolicy, logger *zap.Logger, m *metrics.Metrics, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		api:      api,
		shipping: shipping,
		logger:   logger,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefill loads the contact details on file for token: name and phone from
// the account profile, address from the customer profile. Whatever could be
// loaded is returned even when one of the calls fails.
func (s *Service) Prefill(ctx context.Context, token string) (Request, error) {
	var req Request
	if s.profiles == nil {
		return req, nil
	}

	var user domain.User
	if err := s.profiles.Get(ctx, accountProfilePath, token, &user); err != nil {
		return req, fmt.Errorf("failed to fetch account profile: %w", err)
	}
	req.Name = user.FullName
	req.Phone = user.Phone

	var customer domain.CustomerProfile
	if err := s.profiles.Get(ctx, customerProfilePath, token, &customer); err != nil {
		return req, fmt.Errorf("failed to fetch customer profile: %w", err)
	}
	req.Address = customer.Address
	return req, nil
}

// Quote prices the cart for delivery to address.
func (s *Service) Quote(cart Cart, address string) (pricing.Quote, error) {
	return s.shipping.Quote(cart.Items(), address)
}

// Checkout submits the cart as an order and clears it once the remote API
// accepts. Empty contact fields are taken from the user's profiles when a
// ProfileFetcher is configured. On any failure the cart is left as it was.
func (s *Service) Checkout(ctx context.Context, cart Cart, token string, req Request) (*Result, error) {
	items := cart.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	req = trimRequest(req)
	if !req.complete() && s.profiles != nil {
		defaults, err := s.Prefill(ctx, token)
		if err != nil {
			s.logger.Warn("profile prefill failed", zap.Error(err))
		}
		req = trimRequest(req.WithDefaults(defaults))
	}
	if !req.complete() {
		return nil, ErrMissingFields
	}

	quote, err := s.shipping.Quote(items, req.Address)
	if err != nil {
		return nil, err
	}

	payload := BuildPayload(items, req)

	var order stdjson.RawMessage
	if err := s.api.Post(ctx, checkoutPath, token, payload, &order); err != nil {
		s.metrics.Checkout("failed")
		s.logger.Warn("checkout error", zap.Int("items", len(items)), zap.Error(err))
		return nil, fmt.Errorf("checkout failed: %w", err)
	}

	cart.Clear(ctx)
	s.metrics.Checkout("ok")
	s.logger.Info("order placed",
		zap.Int("items", len(items)),
		zap.String("grand_total", quote.GrandTotal.String()))

	return &Result{Quote: quote, Order: order}, nil
}

func trimRequest(r Request) Request {
	return Request{
		Name:    strings.TrimSpace(r.Name),
		Phone:   strings.TrimSpace(r.Phone),
		Address: strings.TrimSpace(r.Address),
	}
}

func BuildPayload(items []domain.LineItem, req Request) OrderPayload {
	payload := OrderPayload{
		ShippingAddress: req.Address,
		PhoneNumber:     req.Phone,
		Items:           make([]OrderItem, len(items)),
	}
	for i, item := range items {
		payload.Items[i] = OrderItem{ProductID: item.ID, Quantity: item.Quantity}
	}
	return payload
}
