package pos

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
	"github.com/vladislavdragonenkov/storefront/internal/service/settlement"
)

// checkoutRequest — корзина POS-терминала. Цены клиента принимаются
// только для сверки, сервер всегда пересчитывает их сам.
type checkoutRequest struct {
	Items []checkoutItem `json:"items"`
}

type checkoutItem struct {
	ProductID  string          `json:"productId"`
	VariantKey string          `json:"variantKey,omitempty"`
	Quantity   int32           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
}

type checkoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

// Handler принимает офлайн-продажи POS-терминала. Продажа проходит тем же
// конвейером settlement, что и webhook, но без проверки подписи и под
// настроенной walk-in идентичностью покупателя.
type Handler struct {
	products domain.ProductRepository
	orch     settlement.Orchestrator
	// walkInIdentity — платёжная идентичность анонимного покупателя у кассы.
	walkInIdentity string
	logger         *log.Entry
}

// NewHandler создаёт HTTP-обработчик POS-продаж.
func NewHandler(products domain.ProductRepository, orch settlement.Orchestrator, walkInIdentity string, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "pos")
	}
	return &Handler{
		products:       products,
		orch:           orch,
		walkInIdentity: walkInIdentity,
		logger:         logger,
	}
}

// ServeHTTP обрабатывает продажу: пересчитывает корзину, собирает
// синтетическое событие и отдаёт его оркестратору.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResponse(w, http.StatusMethodNotAllowed, checkoutResponse{Success: false, Message: "method not allowed"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, checkoutResponse{Success: false, Message: "unparsable cart"})
		return
	}
	if len(req.Items) == 0 {
		writeResponse(w, http.StatusBadRequest, checkoutResponse{Success: false, Message: "cart is empty"})
		return
	}

	event, err := h.buildEvent(r, req)
	if err != nil {
		h.logger.WithError(err).Warn("pos cart rejected")
		writeResponse(w, http.StatusBadRequest, checkoutResponse{Success: false, Message: err.Error()})
		return
	}

	result, err := h.orch.Settle(r.Context(), event)
	if err != nil {
		// POS показывает кассиру текст ошибки как есть.
		h.logger.WithError(err).WithField("session_id", event.SessionID).Warn("pos sale failed")
		writeResponse(w, http.StatusInternalServerError, checkoutResponse{Success: false, Message: err.Error()})
		return
	}

	writeResponse(w, http.StatusOK, checkoutResponse{Success: true, OrderID: result.OrderID})
}

// buildEvent пересчитывает корзину через Pricing Engine и собирает
// синтетическое settlement-событие. Клиентские цены сверяются мягко:
// расхождение логируется, но продажу не блокирует.
func (h *Handler) buildEvent(r *http.Request, req checkoutRequest) (domain.SettlementEvent, error) {
	ctx := r.Context()
	sessionID := "POS-" + uuid.NewString()

	lines := make([]domain.EventLine, 0, len(req.Items))
	subtotalLines := make([]domain.PricedLine, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return domain.SettlementEvent{}, fmt.Errorf("%w: productId is missing", domain.ErrMalformedEvent)
		}
		if item.Quantity < 1 {
			return domain.SettlementEvent{}, fmt.Errorf("%w: non-positive quantity for %s", domain.ErrMalformedEvent, item.ProductID)
		}

		product, err := h.products.Get(ctx, item.ProductID)
		if err != nil {
			return domain.SettlementEvent{}, err
		}

		variantKey := item.VariantKey
		if variantKey == "" {
			variantKey = domain.DefaultVariantKey
		}

		serverPrice := pricing.PriceLine(product.Price, product.Deal, item.Quantity)
		if !item.FinalPrice.IsZero() && !serverPrice.Equal(item.FinalPrice) {
			h.logger.WithFields(log.Fields{
				"session_id":   sessionID,
				"product_id":   item.ProductID,
				"client_price": item.FinalPrice.String(),
				"server_price": serverPrice.String(),
			}).Warn("pos client price differs from server repricing")
		}

		lines = append(lines, domain.EventLine{
			Key:      domain.LineKey{ProductID: product.ID, VariantKey: variantKey},
			Quantity: item.Quantity,
		})
		subtotalLines = append(subtotalLines, domain.PricedLine{
			CartLine:   domain.CartLine{ProductID: product.ID, Quantity: item.Quantity},
			VariantKey: variantKey,
			UnitPrice:  product.Price,
			FinalPrice: serverPrice,
		})
	}

	totals := pricing.PriceCart(subtotalLines)
	return domain.SettlementEvent{
		SessionID:        sessionID,
		CustomerID:       h.walkInIdentity,
		BuyerID:          h.walkInIdentity,
		OrderNumber:      "POS-" + uuid.NewString()[:8],
		AmountTotalMinor: totals.Total.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:         "usd",
		Lines:            lines,
	}, nil
}

func writeResponse(w http.ResponseWriter, status int, resp checkoutResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
