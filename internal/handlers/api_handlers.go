package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/usecases"
)

var _ OrderService = (*usecases.OrderService)(nil)
var _ WalletService = (*usecases.WalletService)(nil)
var _ BindingService = (*usecases.BindingService)(nil)
var _ Reconciler = (*usecases.ReconciliationService)(nil)

type HTTPHandler struct {
	logger        *slog.Logger
	orderService  OrderService
	walletService WalletService
	bindings      BindingService
	reconciler    Reconciler
	fulfiller     Fulfiller
}

func NewHTTPHandler(
	logger *slog.Logger,
	orderService OrderService,
	walletService WalletService,
	bindings BindingService,
	reconciler Reconciler,
	fulfiller Fulfiller,
) *HTTPHandler {
	return &HTTPHandler{
		logger:        logger,
		orderService:  orderService,
		walletService: walletService,
		bindings:      bindings,
		reconciler:    reconciler,
		fulfiller:     fulfiller,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Orders
	router.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	router.HandleFunc("/orders/user", h.GetUserOrders).Methods("GET")
	router.HandleFunc("/orders/{orderId}/status", h.GetOrderStatus).Methods("GET")
	router.HandleFunc("/orders/{orderId}/check", h.CheckOrderPayment).Methods("POST")
	router.HandleFunc("/orders/{orderId}/switch", h.SwitchPaymentMethod).Methods("POST")

	// Wallets
	router.HandleFunc("/wallet/balance", h.GetWalletBalance).Methods("GET")

	// Operational
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
}

type createOrderRequest struct {
	UserID         int64           `json:"user_id"`
	ServiceType    string          `json:"service_type"`
	ServiceDetails json.RawMessage `json:"service_details"`
	AmountUSDCents int64           `json:"amount_usd_cents"`
	PaymentMethod  string          `json:"payment_method"`
}

// CreateOrder creates an order and starts its payment flow: balance-paid
// orders debit and fulfill immediately, crypto-paid orders get a gateway
// receive-address bound to them.
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), ports.CreateOrderInput{
		UserID:         req.UserID,
		ServiceType:    req.ServiceType,
		ServiceDetails: req.ServiceDetails,
		AmountUSD:      entities.Cents(req.AmountUSDCents),
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		h.logger.Error("[Create Order] Error creating order", "error", err, "user_id", req.UserID)
		h.writeError(w, err)
		return
	}

	if order.PaymentMethod == entities.PaymentMethodBalance {
		h.payFromBalance(w, r, order)
		return
	}

	currency := strings.TrimPrefix(order.PaymentMethod, entities.PaymentMethodCryptoPrefix)

	binding, err := h.bindings.Bind(r.Context(), order.ID, currency, order.AmountUSD)
	if err != nil {
		h.logger.Error("[Create Order] Error binding payment address",
			"error", err, "order_id", order.ID, "currency", currency)
		h.writeError(w, err)
		return
	}

	h.logger.Info("[Create Order] Order created",
		"order_id", order.ID, "user_id", order.UserID, "currency", currency, "address", binding.Address)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "success",
		"order_id":         order.ID,
		"payment_address":  binding.Address,
		"currency":         binding.Currency,
		"amount_usd_cents": int64(order.AmountUSD),
	})
}

// payFromBalance debits the user's wallet and fulfills in one request. The
// debit is the payment: once it lands the order is treated as fully paid.
func (h *HTTPHandler) payFromBalance(w http.ResponseWriter, r *http.Request, order *entities.Order) {
	reason := fmt.Sprintf("order %s (%s)", order.ID, order.ServiceType)
	if err := h.walletService.Debit(r.Context(), order.UserID, order.AmountUSD, reason); err != nil {
		if errors.Is(err, entities.ErrInsufficientFunds) {
			h.logger.Info("[Create Order] Insufficient balance",
				"order_id", order.ID, "user_id", order.UserID, "amount", order.AmountUSD.String())
			http.Error(w, "Insufficient wallet balance", http.StatusPaymentRequired)
			return
		}
		h.logger.Error("[Create Order] Balance debit failed", "error", err, "order_id", order.ID)
		h.writeError(w, err)
		return
	}

	if err := h.orderService.MarkPaymentObserved(r.Context(), order.ID); err != nil {
		h.logger.Error("[Create Order] Failed to mark order paid", "error", err, "order_id", order.ID)

		// The user must not stay debited for an order that never reached the
		// paid state. The fixed dedup key keeps the refund single-shot.
		if refundErr := h.walletService.Credit(r.Context(), order.UserID, order.AmountUSD,
			"refund for order "+order.ID, "refund:"+order.ID); refundErr != nil {
			h.logger.Error("[Create Order] Refund after failed state write also failed, balance inconsistent",
				"error", refundErr, "order_id", order.ID, "user_id", order.UserID,
				"amount", order.AmountUSD.String())
		}

		h.writeError(w, err)
		return
	}
	order.Status = entities.OrderStatusPaymentObserved

	ctx, cancel := context.WithTimeout(r.Context(), fulfillTimeout)
	defer cancel()

	if err := h.fulfiller.Fulfill(ctx, order); err != nil {
		// Money already moved; the order stays paid and fulfillment is
		// retried out of band.
		h.logger.Error("[Create Order] Fulfillment failed, order held as paid",
			"error", err, "order_id", order.ID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "paid",
			"order_id": order.ID,
			"detail":   "payment accepted, provisioning pending",
		})
		return
	}

	h.logger.Info("[Create Order] Balance-paid order fulfilled", "order_id", order.ID, "user_id", order.UserID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "fulfilled",
		"order_id": order.ID,
	})
}

func (h *HTTPHandler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userIDParam := r.URL.Query().Get("user_id")
	if userIDParam == "" {
		http.Error(w, "Missing required parameter: user_id", http.StatusBadRequest)
		return
	}

	userID, err := strconv.ParseInt(userIDParam, 10, 64)
	if err != nil {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	orders, err := h.orderService.GetUserOrders(r.Context(), userID)
	if err != nil {
		h.logger.Error("Error getting user orders", "error", err, "user_id", userID)
		http.Error(w, "Failed to retrieve orders", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// GetOrderStatus returns the order with its current payment binding and the
// latest reconciliation decision, if any.
func (h *HTTPHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := map[string]any{
		"order": order,
	}

	if binding, err := h.bindings.BindingForOrder(r.Context(), orderID); err == nil {
		response["payment_address"] = binding.Address
		response["currency"] = binding.Currency
		response["address_retired"] = binding.Retired
	} else if !errors.Is(err, entities.ErrBindingNotFound) {
		h.logger.Error("Error loading order binding", "error", err, "order_id", orderID)
	}

	decision, err := h.reconciler.LatestDecision(r.Context(), orderID)
	if err != nil {
		h.logger.Error("Error loading latest decision", "error", err, "order_id", orderID)
	} else if decision != nil {
		response["decision"] = decision
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// CheckOrderPayment polls the gateway for the order's address on demand and
// reconciles anything actionable it finds.
func (h *HTTPHandler) CheckOrderPayment(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]

	decision, err := h.reconciler.CheckOrder(r.Context(), orderID)
	if err != nil {
		h.logger.Error("On-demand payment check failed", "error", err, "order_id", orderID)
		h.writeError(w, err)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := map[string]any{
		"order_id": orderID,
		"status":   order.Status,
	}
	if decision != nil {
		response["decision"] = decision
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

type switchPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// SwitchPaymentMethod rebinds the order to a new currency. The previous
// address is retired but keeps a grace window during which late payments on
// it still reconcile.
func (h *HTTPHandler) SwitchPaymentMethod(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]

	var req switchPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !strings.HasPrefix(req.PaymentMethod, entities.PaymentMethodCryptoPrefix) {
		http.Error(w, "payment_method must name a crypto currency", http.StatusBadRequest)
		return
	}
	currency := strings.TrimPrefix(req.PaymentMethod, entities.PaymentMethodCryptoPrefix)

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if order.Terminal() {
		http.Error(w, fmt.Sprintf("order is already %s", order.Status), http.StatusConflict)
		return
	}

	binding, err := h.bindings.Bind(r.Context(), orderID, currency, order.AmountUSD)
	if err != nil {
		h.logger.Error("Error switching payment method",
			"error", err, "order_id", orderID, "currency", currency)
		h.writeError(w, err)
		return
	}

	h.logger.Info("Payment method switched",
		"order_id", orderID, "currency", currency, "address", binding.Address)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "success",
		"order_id":        orderID,
		"payment_address": binding.Address,
		"currency":        binding.Currency,
	})
}

func (h *HTTPHandler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	userIDParam := r.URL.Query().Get("user_id")
	if userIDParam == "" {
		http.Error(w, "Missing required parameter: user_id", http.StatusBadRequest)
		return
	}

	userID, err := strconv.ParseInt(userIDParam, 10, 64)
	if err != nil {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	balance, err := h.walletService.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error("Error getting wallet balance", "error", err, "user_id", userID)
		http.Error(w, "Failed to retrieve balance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id":           userID,
		"balance_usd_cents": int64(balance),
		"balance_usd":       balance.String(),
	})
}

func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError maps domain errors to HTTP status codes.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, entities.ErrOrderNotFound), errors.Is(err, entities.ErrBindingNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, entities.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, entities.ErrAlreadyFulfilled), errors.Is(err, entities.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, entities.ErrGatewayUnavailable):
		http.Error(w, "Payment gateway unavailable", http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
