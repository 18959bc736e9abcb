package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTolerance ограничивает возраст подписи события.
const DefaultTolerance = 5 * time.Minute

// wireEvent — сырой формат события платёжного шлюза.
// Типизируется строго: всё обязательное проверяется явно, optional-chaining
// по нетипизированному metadata не допускается.
type wireEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object wireSession `json:"object"`
	} `json:"data"`
}

type wireSession struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Customer      string `json:"customer"`
	AmountTotal   int64  `json:"amount_total"`
	TotalDetails  struct {
		AmountDiscount int64 `json:"amount_discount"`
	} `json:"total_details"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type wireItem struct {
	Key      string `json:"key"`
	Quantity int32  `json:"quantity"`
}

// Validator проверяет подпись webhook-события и разбирает его
// в типизированный SettlementEvent.
type Validator struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
	logger    *log.Entry
}

// NewValidator создаёт валидатор с допуском по времени подписи по умолчанию.
func NewValidator(secret string, logger *log.Entry) *Validator {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-validator")
	}
	return &Validator{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
		logger:    logger,
	}
}

// Verify проверяет подпись и разбирает payload. Возвращает proceed=false
// без ошибки для событий неинтересных видов: их нужно подтвердить шлюзу,
// чтобы остановить повторные доставки, но не обрабатывать.
func (v *Validator) Verify(raw []byte, sigHeader string) (domain.SettlementEvent, bool, error) {
	if err := v.checkSignature(raw, sigHeader); err != nil {
		return domain.SettlementEvent{}, false, err
	}

	var wire wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.SettlementEvent{}, false, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	if wire.Type != string(domain.EventKindCheckoutCompleted) {
		v.logger.WithFields(log.Fields{
			"event_id":   wire.ID,
			"event_type": wire.Type,
		}).Debug("ignoring event of uninteresting kind")
		return domain.SettlementEvent{}, false, nil
	}

	event, err := v.parseSession(wire.Data.Object)
	if err != nil {
		return domain.SettlementEvent{}, false, err
	}
	return event, true, nil
}

// checkSignature валидирует заголовок формата "t=<unix>,v1=<hex>".
func (v *Validator) checkSignature(raw []byte, sigHeader string) error {
	if sigHeader == "" || v.secret == "" {
		return domain.ErrAuthenticationRequired
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch name {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return domain.ErrSignatureMismatch
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return domain.ErrSignatureMismatch
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return domain.ErrSignatureMismatch
	}

	expected := computeSignature(v.secret, timestamp, raw)
	for _, candidate := range signatures {
		provided, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(provided, expected) {
			return nil
		}
	}
	return domain.ErrSignatureMismatch
}

// parseSession извлекает обязательные поля строго, без fallback-значений.
func (v *Validator) parseSession(session wireSession) (domain.SettlementEvent, error) {
	if session.ID == "" {
		return domain.SettlementEvent{}, fmt.Errorf("%w: session id is missing", domain.ErrMalformedEvent)
	}
	if session.Customer == "" {
		return domain.SettlementEvent{}, fmt.Errorf("%w: customer identity is missing", domain.ErrMalformedEvent)
	}

	buyerID := session.Metadata["buyerId"]
	if buyerID == "" {
		return domain.SettlementEvent{}, fmt.Errorf("%w: metadata buyerId is missing", domain.ErrMalformedEvent)
	}
	rawItems := session.Metadata["items"]
	if rawItems == "" {
		return domain.SettlementEvent{}, fmt.Errorf("%w: metadata items is missing", domain.ErrMalformedEvent)
	}

	var items []wireItem
	if err := json.Unmarshal([]byte(rawItems), &items); err != nil {
		return domain.SettlementEvent{}, fmt.Errorf("%w: metadata items is unparsable: %v", domain.ErrMalformedEvent, err)
	}
	if len(items) == 0 {
		return domain.SettlementEvent{}, fmt.Errorf("%w: metadata items is empty", domain.ErrMalformedEvent)
	}

	lines := make([]domain.EventLine, 0, len(items))
	for _, item := range items {
		key, err := domain.ParseLineKey(item.Key)
		if err != nil {
			return domain.SettlementEvent{}, fmt.Errorf("%w: %q", err, item.Key)
		}
		if item.Quantity < 1 {
			return domain.SettlementEvent{}, fmt.Errorf("%w: non-positive quantity for %q", domain.ErrMalformedEvent, item.Key)
		}
		lines = append(lines, domain.EventLine{Key: key, Quantity: item.Quantity})
	}

	return domain.SettlementEvent{
		SessionID:          session.ID,
		PaymentIntentID:    session.PaymentIntent,
		CustomerID:         session.Customer,
		BuyerID:            buyerID,
		OrderNumber:        session.Metadata["orderNumber"],
		AmountTotalMinor:   session.AmountTotal,
		DiscountTotalMinor: session.TotalDetails.AmountDiscount,
		Currency:           session.Currency,
		Lines:              lines,
	}, nil
}

// Sign подписывает payload для заголовка webhook. Используется тестами
// и локальной эмуляцией шлюза.
func Sign(secret string, ts time.Time, payload []byte) string {
	signature := computeSignature(secret, ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(signature))
}

func computeSignature(secret string, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
