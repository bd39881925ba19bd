package models

// Required dataset columns, matched case-insensitively against the source header.
const (
	ColTransactionID = "transaction_id"
	ColTimestamp     = "timestamp"
	ColAmount        = "amount"
	ColPaymentMethod = "payment_method"
	ColDevice        = "device"
	ColState         = "state"
	ColAgeGroup      = "age_group"
	ColNetwork       = "network"
	ColCategory      = "category"
	ColStatus        = "status"
	ColFailureCode   = "failure_code"
	ColFraudFlag     = "fraud_flag"
	ColReviewFlag    = "review_flag"

	// ColDateOnly is derived from ColTimestamp at load time.
	ColDateOnly = "date_only"
)

// RequiredColumns lists the dataset contract in canonical order.
var RequiredColumns = []string{
	ColTransactionID,
	ColTimestamp,
	ColAmount,
	ColPaymentMethod,
	ColDevice,
	ColState,
	ColAgeGroup,
	ColNetwork,
	ColCategory,
	ColStatus,
	ColFailureCode,
	ColFraudFlag,
	ColReviewFlag,
}

// StatusFailed is the status value that marks a failed transaction.
const StatusFailed = "Failed"

// Transaction is one normalized dataset row.
type Transaction struct {
	ID            string  `db:"transaction_id" json:"transaction_id"`
	Timestamp     string  `db:"timestamp"      json:"timestamp"`
	DateOnly      string  `db:"date_only"      json:"date_only"`
	Amount        float64 `db:"amount"         json:"amount"`
	PaymentMethod string  `db:"payment_method" json:"payment_method"`
	Device        string  `db:"device"         json:"device"`
	State         string  `db:"state"          json:"state"`
	AgeGroup      string  `db:"age_group"      json:"age_group"`
	Network       string  `db:"network"        json:"network"`
	Category      string  `db:"category"       json:"category"`
	Status        string  `db:"status"         json:"status"`
	FailureCode   *string `db:"failure_code"   json:"failure_code,omitempty"`
	FraudFlag     int     `db:"fraud_flag"     json:"fraud_flag"`
	ReviewFlag    int     `db:"review_flag"    json:"review_flag"`
}
