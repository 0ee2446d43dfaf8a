package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/repository"
	"github.com/yeremiapane/cafe-orders/utils"
)

const (
	defaultCodePrefix = "ORD-"
	defaultMaxRetries = 3

	// one regeneration after a collision, then give up
	orderCodeAttempts = 2
)

// Catalog resolves menu items and extras by id. Missing ids are simply
// absent from the returned maps.
type Catalog interface {
	MenuItems(ctx context.Context, ids []uint) (map[uint]models.MenuItem, error)
	ExtraIngredients(ctx context.Context, ids []uint) (map[uint]models.ExtraIngredient, error)
}

type OrderConfig struct {
	CodePrefix string
	// MaxRetries bounds every optimistic read-compute-write loop.
	MaxRetries    int
	CodeGenerator func() string
}

type OrderService struct {
	repo       *repository.OrderRepository
	catalog    Catalog
	gateway    PaymentGateway
	notifier   Notifier
	newCode    func() string
	maxRetries int
}

func NewOrderService(repo *repository.OrderRepository, catalog Catalog, gateway PaymentGateway, notifier Notifier, cfg OrderConfig) *OrderService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.CodeGenerator == nil {
		cfg.CodeGenerator = NewOrderCodeGenerator(cfg.CodePrefix)
	}
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	return &OrderService{
		repo:       repo,
		catalog:    catalog,
		gateway:    gateway,
		notifier:   notifier,
		newCode:    cfg.CodeGenerator,
		maxRetries: cfg.MaxRetries,
	}
}

// NewOrderCodeGenerator returns codes like ORD-1F3A9C0B: the prefix followed
// by eight upper-case characters of a random UUID.
func NewOrderCodeGenerator(prefix string) func() string {
	if prefix == "" {
		prefix = defaultCodePrefix
	}
	return func() string {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		return prefix + strings.ToUpper(raw[:8])
	}
}

type PlaceOrderInput struct {
	CustomerName  string
	CustomerPhone string
	TableNo       string
	PaymentMode   models.PaymentMode
	Items         []OrderLineInput
}

type OrderLineInput struct {
	MenuItemID uint
	Quantity   int
	ExtraIDs   []uint
}

type PlaceOrderResult struct {
	Order   *models.Order
	Payment *models.Payment
}

// GatewayOrderID returns the attached gateway session id, or "" for cash
// orders and online orders whose session could not be opened.
func (r *PlaceOrderResult) GatewayOrderID() string {
	if r == nil || r.Payment == nil || r.Payment.GatewayOrderID == nil {
		return ""
	}
	return *r.Payment.GatewayOrderID
}

// PlaceOrder validates and prices the cart, stores the order with its items
// and a pending payment atomically, then announces it and, for online
// orders, opens a gateway session. A gateway failure yields a
// *PaymentInitiationError that still carries the stored order.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	if err := validatePlaceOrder(in); err != nil {
		return nil, err
	}

	items, err := s.priceLines(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	var (
		order   *models.Order
		payment *models.Payment
	)
	for attempt := 0; ; attempt++ {
		order, payment = buildOrder(in, items, s.newCode())
		err = s.repo.CreateWithPayment(ctx, order, payment)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateOrderCode) {
			utils.ErrorLogger.WithError(err).Error("Failed to persist order")
			return nil, fmt.Errorf("%w: failed to store order", ErrInternal)
		}
		if attempt+1 >= orderCodeAttempts {
			utils.ErrorLogger.WithField("order_code", order.OrderCode).Error("Order code collided twice")
			return nil, fmt.Errorf("%w: could not allocate a unique order code", ErrInternal)
		}
		utils.InfoLogger.WithField("order_code", order.OrderCode).Warn("Order code collision, regenerating")
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_code":   order.OrderCode,
		"order_id":     order.ID,
		"payment_mode": order.PaymentMode,
		"total":        utils.FormatCurrencyINR(order.TotalAmount),
	}).Info("Order placed")

	s.notifier.PublishNewOrder(order.Snapshot())

	result := &PlaceOrderResult{Order: order, Payment: payment}
	if order.PaymentMode != models.PaymentModeOnline {
		return result, nil
	}
	if err := s.openPaymentSession(ctx, order, payment); err != nil {
		return result, &PaymentInitiationError{Result: result, Err: err}
	}
	return result, nil
}

// InitiatePayment retries opening a gateway session for an online order
// whose first attempt failed. It returns the existing session when one is
// already attached.
func (s *OrderService) InitiatePayment(ctx context.Context, orderCode string) (*PlaceOrderResult, error) {
	order, err := s.repo.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, s.lookupError(err, "order %s", orderCode)
	}
	payment, err := s.repo.FindPaymentByOrderID(ctx, order.ID)
	if err != nil {
		return nil, s.lookupError(err, "payment for order %s", orderCode)
	}

	result := &PlaceOrderResult{Order: order, Payment: payment}
	switch {
	case order.PaymentMode != models.PaymentModeOnline:
		return nil, validationErrorf("order %s is not an online payment order", orderCode)
	case order.Status == models.OrderStatusCancelled:
		return nil, validationErrorf("order %s is cancelled", orderCode)
	case payment.PaymentStatus != models.PaymentStatusPending:
		return nil, validationErrorf("payment for order %s is already %s", orderCode, payment.PaymentStatus)
	case payment.GatewayOrderID != nil:
		return result, nil
	}

	if err := s.openPaymentSession(ctx, order, payment); err != nil {
		return result, &PaymentInitiationError{Result: result, Err: err}
	}
	return result, nil
}

func (s *OrderService) TrackOrder(ctx context.Context, orderCode string) (*models.Order, error) {
	order, err := s.repo.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, s.lookupError(err, "order %s", orderCode)
	}
	return order, nil
}

// OrderDetail is the staff view of one order.
type OrderDetail struct {
	Order     *models.Order
	Payment   *models.Payment
	Conflicts []models.PaymentConflict
}

func (s *OrderService) GetOrderDetail(ctx context.Context, orderID uint) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.lookupError(err, "order %d", orderID)
	}
	payment, err := s.repo.FindPaymentByOrderID(ctx, order.ID)
	if err != nil {
		return nil, s.lookupError(err, "payment for order %d", orderID)
	}
	conflicts, err := s.repo.ListConflicts(ctx, payment.ID)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Failed to load payment conflicts")
		return nil, fmt.Errorf("%w: failed to load order", ErrInternal)
	}
	return &OrderDetail{Order: order, Payment: payment, Conflicts: conflicts}, nil
}

// openPaymentSession calls the gateway outside of any transaction and then
// attaches the returned id to the payment with a version-checked write.
func (s *OrderService) openPaymentSession(ctx context.Context, order *models.Order, payment *models.Payment) error {
	logger := utils.InfoLogger.WithFields(logrus.Fields{
		"order_code": order.OrderCode,
		"order_id":   order.ID,
	})
	if s.gateway == nil {
		return fmt.Errorf("%w: no payment gateway configured", ErrGateway)
	}

	session, err := s.gateway.CreateOrder(ctx, payment.Amount, order.OrderCode)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"order_code": order.OrderCode,
		}).WithError(err).Error("Failed to open gateway payment session")
		return fmt.Errorf("%w: could not open payment session", ErrGateway)
	}

	// The gateway order now exists. If its id never reaches the store, a later
	// capture for it cannot be matched, so it is logged for manual follow-up.
	orphaned := func(err error, msg string) {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"order_code":       order.OrderCode,
			"order_id":         order.ID,
			"gateway_order_id": session.ID,
		}).WithError(err).Error(msg)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		now := time.Now()
		err = s.repo.AttachGatewayOrderID(ctx, payment.ID, payment.Version, session.ID, now)
		if err == nil {
			payment.GatewayOrderID = &session.ID
			payment.Version++
			payment.UpdatedAt = now
			logger.WithField("gateway_order_id", session.ID).Info("Gateway payment session opened")
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			orphaned(err, "Gateway order created but not recorded; reconcile manually")
			return fmt.Errorf("%w: could not record payment session", ErrGateway)
		}

		fresh, ferr := s.repo.FindPaymentByOrderID(ctx, order.ID)
		if ferr != nil {
			orphaned(ferr, "Gateway order created but payment reload failed; reconcile manually")
			return fmt.Errorf("%w: could not reload payment", ErrGateway)
		}
		*payment = *fresh
		if payment.GatewayOrderID != nil {
			// another request won; keep its session
			logger.WithField("gateway_order_id", *payment.GatewayOrderID).Warn("Payment session already attached")
			return nil
		}
	}
	orphaned(repository.ErrVersionConflict, "Gateway order created but not recorded after retries; reconcile manually")
	return fmt.Errorf("%w: payment for order %s", ErrConcurrentModification, order.OrderCode)
}

type pricedLine struct {
	item   models.MenuItem
	extras []models.ExtraIngredient
	qty    int
}

// priceLines resolves every line against the catalog before any write.
func (s *OrderService) priceLines(ctx context.Context, lines []OrderLineInput) ([]pricedLine, error) {
	var itemIDs, extraIDs []uint
	for _, line := range lines {
		itemIDs = append(itemIDs, line.MenuItemID)
		extraIDs = append(extraIDs, line.ExtraIDs...)
	}

	menu, err := s.catalog.MenuItems(ctx, itemIDs)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Catalog lookup failed")
		return nil, fmt.Errorf("%w: catalog lookup failed", ErrInternal)
	}
	extras, err := s.catalog.ExtraIngredients(ctx, extraIDs)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Extra ingredient lookup failed")
		return nil, fmt.Errorf("%w: catalog lookup failed", ErrInternal)
	}

	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		item, ok := menu[line.MenuItemID]
		if !ok || !item.Available {
			return nil, fmt.Errorf("%w: menu item %d is not available", ErrItemUnavailable, line.MenuItemID)
		}
		p := pricedLine{item: item, qty: line.Quantity}
		for _, id := range line.ExtraIDs {
			extra, ok := extras[id]
			if !ok || !extra.Active {
				return nil, fmt.Errorf("%w: extra ingredient %d is not available", ErrExtraUnavailable, id)
			}
			p.extras = append(p.extras, extra)
		}
		priced = append(priced, p)
	}
	return priced, nil
}

func buildOrder(in PlaceOrderInput, lines []pricedLine, code string) (*models.Order, *models.Payment) {
	order := &models.Order{
		OrderCode:     code,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		TableNo:       strings.TrimSpace(in.TableNo),
		Status:        models.OrderStatusNew,
		PaymentMode:   in.PaymentMode,
		PaymentStatus: models.PaymentStatusPending,
	}
	for _, line := range lines {
		item := models.OrderItem{
			MenuItemID:   line.item.ID,
			MenuItemName: line.item.Name,
			UnitPrice:    line.item.Price,
			Quantity:     line.qty,
		}
		for _, extra := range line.extras {
			item.Extras = append(item.Extras, models.OrderItemExtra{
				ExtraIngredientID: extra.ID,
				Name:              extra.Name,
				Price:             extra.Price,
			})
		}
		order.Items = append(order.Items, item)
	}
	order.Recalculate()

	payment := &models.Payment{
		PaymentMode:   in.PaymentMode,
		PaymentStatus: models.PaymentStatusPending,
		Amount:        order.TotalAmount,
	}
	return order, payment
}

func validatePlaceOrder(in PlaceOrderInput) error {
	name := strings.TrimSpace(in.CustomerName)
	phone := strings.TrimSpace(in.CustomerPhone)

	switch {
	case name == "":
		return validationErrorf("customer name is required")
	case utf8.RuneCountInString(name) > 50:
		return validationErrorf("customer name must be at most 50 characters")
	case phone == "":
		return validationErrorf("customer phone is required")
	case len(phone) < 10 || len(phone) > 15:
		return validationErrorf("customer phone must be between 10 and 15 characters")
	case utf8.RuneCountInString(strings.TrimSpace(in.TableNo)) > 20:
		return validationErrorf("table number must be at most 20 characters")
	case !in.PaymentMode.Valid():
		return validationErrorf("payment mode must be %s or %s", models.PaymentModeCashOnDelivery, models.PaymentModeOnline)
	case len(in.Items) == 0:
		return validationErrorf("order must contain at least one item")
	}

	for i, line := range in.Items {
		if line.MenuItemID == 0 {
			return validationErrorf("item %d: menu item id is required", i+1)
		}
		if line.Quantity < 1 {
			return validationErrorf("item %d: quantity must be at least 1", i+1)
		}
		seen := make(map[uint]bool, len(line.ExtraIDs))
		for _, id := range line.ExtraIDs {
			if seen[id] {
				return validationErrorf("item %d: extra ingredient %d listed twice", i+1, id)
			}
			seen[id] = true
		}
	}
	return nil
}

func (s *OrderService) lookupError(err error, format string, args ...interface{}) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	utils.ErrorLogger.WithError(err).Errorf("Failed to load %s", what)
	return fmt.Errorf("%w: failed to load %s", ErrInternal, what)
}
