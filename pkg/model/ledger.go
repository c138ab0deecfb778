package model

// Account is a user's balance in minor units.
type Account struct {
	UserID    string   `json:"user_id" bson:"_id"`
	Balance   Amount   `json:"balance" bson:"balance_minor"`
	UpdatedAt DateTime `json:"updated_at" bson:"updated_at"`
}

// TransactionType classifies a ledger movement.
type TransactionType string

const (
	TxnRecharge  TransactionType = "RECHARGE"
	TxnCourseFee TransactionType = "COURSE_FEE"
	TxnRefund    TransactionType = "REFUND"
)

// Transaction records a single balance movement with its generated order ID.
type Transaction struct {
	ID        string          `json:"id,omitempty" bson:"_id,omitempty"`
	OrderID   string          `json:"order_id" bson:"order_id"`
	UserID    string          `json:"user_id" bson:"user_id"`
	Type      TransactionType `json:"type" bson:"type"`
	Amount    Amount          `json:"amount" bson:"amount_minor"`
	RelatedID string          `json:"related_id,omitempty" bson:"related_id,omitempty"`
	CreatedAt DateTime        `json:"created_at" bson:"created_at"`
}

// CompensationKind names the deferred downstream effect to retry.
type CompensationKind string

const (
	CompensateCharge CompensationKind = "CHARGE"
	CompensateRefund CompensationKind = "REFUND"
	CompensateNotify CompensationKind = "NOTIFY"
)

// CompensationStatus tracks a task through the retry worker.
type CompensationStatus string

const (
	CompensationPending CompensationStatus = "PENDING"
	CompensationDone    CompensationStatus = "DONE"
	CompensationFailed  CompensationStatus = "FAILED"
)

// CompensationTask is a downstream effect (charge, refund, notification)
// that failed after its state transition committed. The transition is never
// rolled back; the task is retried until done or the attempt budget runs
// out.
type CompensationTask struct {
	ID        string             `json:"id,omitempty" bson:"_id,omitempty"`
	Kind      CompensationKind   `json:"kind" bson:"kind"`
	UserID    string             `json:"user_id" bson:"user_id"`
	Amount    Amount             `json:"amount" bson:"amount_minor"`
	RelatedID string             `json:"related_id" bson:"related_id"`
	Payload   string             `json:"payload,omitempty" bson:"payload,omitempty"`
	Status    CompensationStatus `json:"status" bson:"status"`
	Attempts  int                `json:"attempts" bson:"attempts"`
	LastError string             `json:"last_error,omitempty" bson:"last_error,omitempty"`
	CreatedAt DateTime           `json:"created_at" bson:"created_at"`
	UpdatedAt DateTime           `json:"updated_at" bson:"updated_at"`
}
