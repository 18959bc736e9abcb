package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/settlement"
)

// SignatureHeader — заголовок с подписью события платёжного шлюза.
const SignatureHeader = "X-Payment-Signature"

// maxBodyBytes ограничивает размер принимаемого payload.
const maxBodyBytes = 1 << 20

// Handler принимает webhook платёжного шлюза: проверяет подпись,
// разбирает событие и передаёт его оркестратору settlement.
// Шлюз повторяет доставку на не-2xx ответ — это единственный механизм
// retry всего конвейера.
type Handler struct {
	validator *Validator
	orch      settlement.Orchestrator
	logger    *log.Entry
}

// NewHandler создаёт HTTP-обработчик webhook.
func NewHandler(validator *Validator, orch settlement.Orchestrator, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "webhook")
	}
	return &Handler{validator: validator, orch: orch, logger: logger}
}

// ServeHTTP реализует контракт боундари: 200 {"received":true} на успех
// и на игнорируемые виды событий, 400 на ошибки подписи/формата,
// 500 на ошибки обработки (шлюз доставит событие повторно).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.WithError(err).Warn("failed to read webhook body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	event, proceed, err := h.validator.Verify(body, r.Header.Get(SignatureHeader))
	if err != nil {
		h.logger.WithError(err).Warn("webhook verification failed")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !proceed {
		// Неинтересный вид события: подтверждаем, чтобы шлюз не повторял доставку.
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	result, err := h.orch.Settle(r.Context(), event)
	if err != nil {
		if domain.IsTerminal(err) {
			// Повторная доставка даст тот же результат, подтверждать нет смысла.
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.WithError(err).WithField("session_id", event.SessionID).Warn("settlement failed, asking gateway to redeliver")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "settlement failed"})
		return
	}

	if result.Duplicate {
		h.logger.WithFields(log.Fields{
			"session_id": event.SessionID,
			"order_id":   result.OrderID,
		}).Info("duplicate webhook delivery acknowledged")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
