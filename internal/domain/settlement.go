package domain

import "time"

// EventKind — тип входящего события платёжного шлюза.
type EventKind string

const (
	// EventKindCheckoutCompleted — единственный вид события, запускающий settlement.
	EventKindCheckoutCompleted EventKind = "checkout.session.completed"
)

// EventLine — купленная позиция из метаданных события: составной ключ + количество.
type EventLine struct {
	Key      LineKey
	Quantity int32
}

// SettlementEvent — типизированное событие подтверждения оплаты.
// Формируется валидатором из сырого payload и потребляется оркестратором
// ровно один раз; суммы приходят в минимальных денежных единицах.
type SettlementEvent struct {
	SessionID       string
	PaymentIntentID string
	// CustomerID — внешняя платёжная идентичность покупателя.
	CustomerID string
	// BuyerID — идентификатор аккаунта покупателя, записанный при создании checkout.
	BuyerID            string
	OrderNumber        string
	AmountTotalMinor   int64
	DiscountTotalMinor int64
	Currency           string
	Lines              []EventLine
}

// SettlementState — состояние конечного автомата settlement для одного события.
type SettlementState string

const (
	StateReceived             SettlementState = "received"
	StateVerified             SettlementState = "verified"
	StateCustomerSynced       SettlementState = "customer_synced"
	StateOrderCreated         SettlementState = "order_created"
	StateLedgerUpdated        SettlementState = "ledger_updated"
	StateInventoryDecremented SettlementState = "inventory_decremented"
	StateCompleted            SettlementState = "completed"
	StateFailed               SettlementState = "failed"
)

// stateRank задаёт порядок прохождения состояний для resume.
var stateRank = map[SettlementState]int{
	StateReceived:             0,
	StateVerified:             1,
	StateCustomerSynced:       2,
	StateOrderCreated:         3,
	StateLedgerUpdated:        4,
	StateInventoryDecremented: 5,
	StateCompleted:            6,
}

// Reached сообщает, достиг ли автомат состояния other (включительно).
// Для StateFailed всегда false: повторная доставка продолжает с места обрыва.
func (s SettlementState) Reached(other SettlementState) bool {
	rank, ok := stateRank[s]
	if !ok {
		return false
	}
	otherRank, ok := stateRank[other]
	if !ok {
		return false
	}
	return rank >= otherRank
}

// SettlementIntent — устойчивая запись о намерении обработать событие.
// Сохраняется до первого побочного эффекта; ключ — SessionID события.
// Повторная доставка события возобновляет обработку с первого
// незавершённого шага вместо повторения уже применённых эффектов.
type SettlementIntent struct {
	SessionID  string
	OrderID    string
	CustomerID string
	// State — последнее подтверждённое состояние автомата.
	State SettlementState
	// FailedAt — состояние, на котором обработка оборвалась (пусто, если не падала).
	FailedAt SettlementState
	Reason   string
	// DecrementedLines — ключи позиций, по которым списание уже применено.
	// Позволяет при resume не списывать остатки повторно.
	DecrementedLines []string
	TTLAt            time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LineDecremented сообщает, было ли списание по ключу позиции уже выполнено.
func (i *SettlementIntent) LineDecremented(key string) bool {
	for _, applied := range i.DecrementedLines {
		if applied == key {
			return true
		}
	}
	return false
}

// MarkLineDecremented фиксирует выполненное списание по позиции.
func (i *SettlementIntent) MarkLineDecremented(key string) {
	if i.LineDecremented(key) {
		return
	}
	i.DecrementedLines = append(i.DecrementedLines, key)
}
