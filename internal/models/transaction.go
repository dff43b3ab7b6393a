package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transaction is a debt (negative amount) or reward (positive amount) of a
// person. It is settled once linked to a bank movement.
type Transaction struct {
	ID                  int64      `db:"id" json:"id"`
	PersonID            int64      `db:"person_id" json:"person_id"`
	Amount              int        `db:"amount" json:"amount"`
	Reason              string     `db:"reason" json:"reason"`
	DateDue             time.Time  `db:"date_due" json:"date_due"`
	EventID             *int64     `db:"event_id" json:"event_id,omitempty"`
	FeatureAssignmentID *int64     `db:"feature_assignment_id" json:"feature_assignment_id,omitempty"`
	EnrollmentID        *int64     `db:"enrollment_id" json:"enrollment_id,omitempty"`
	FioTransactionID    *int64     `db:"fio_transaction_id" json:"fio_transaction_id,omitempty"`
	SettledDate         *time.Time `db:"settled_date" json:"settled_date,omitempty"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IsSettled reports whether the transaction is linked to a bank movement.
func (t Transaction) IsSettled() bool { return t.FioTransactionID != nil }

// IsDebt reports whether the person owes the club.
func (t Transaction) IsDebt() bool { return t.Amount < 0 }

// AbsAmount returns the unsigned amount.
func (t Transaction) AbsAmount() int {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// Kind returns "debt" or "reward".
func (t Transaction) Kind() TransactionKind {
	if t.IsDebt() {
		return TransactionDebt
	}
	return TransactionReward
}

// TransactionKind distinguishes debts from rewards.
type TransactionKind string

const (
	TransactionDebt   TransactionKind = "debt"
	TransactionReward TransactionKind = "reward"
)

// TransactionState filters by settlement.
type TransactionState string

const (
	TransactionStateAll     TransactionState = "all"
	TransactionStateSettled TransactionState = "settled"
	TransactionStateDue     TransactionState = "due"
)

// TransactionDetail joins a transaction with its owner and event names.
type TransactionDetail struct {
	Transaction
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	EventName *string `db:"event_name" json:"event_name,omitempty"`
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	State    TransactionState
	Kind     TransactionKind
	Category EventCategory
	From     *time.Time
	To       *time.Time
	PersonID *int64
	EventID  *int64
	Page     int
	PageSize int
}

// TransactionRequest creates or edits a manual transaction.
type TransactionRequest struct {
	PersonID int64  `json:"person_id" validate:"required,min=1"`
	Amount   int    `json:"amount" validate:"required,ne=0"`
	Reason   string `json:"reason" validate:"required,max=150"`
	DateDue  Date   `json:"date_due"`
	EventID  *int64 `json:"event_id"`
}

// LedgerSummary aggregates one person's transactions. Due* covers unsettled
// ones only.
type LedgerSummary struct {
	PersonID    int64 `db:"person_id" json:"person_id"`
	TotalDebt   int   `db:"total_debt" json:"total_debt"`
	TotalReward int   `db:"total_reward" json:"total_reward"`
	DueDebt     int   `db:"due_debt" json:"due_debt"`
	DueReward   int   `db:"due_reward" json:"due_reward"`
}

// FioTransaction is a reconciled bank movement.
type FioTransaction struct {
	ID    int64     `db:"id" json:"id"`
	FioID int64     `db:"fio_id" json:"fio_id"`
	Date  time.Time `db:"date" json:"date"`
}

// FioSettings is the singleton reconciliation progress record.
type FioSettings struct {
	LastFioFetchTime *time.Time `db:"last_fio_fetch_time" json:"last_fio_fetch_time,omitempty"`
}

// PaymentDescriptor is what a QR payment generator needs to pay a debt.
type PaymentDescriptor struct {
	Currency       string `json:"currency"`
	AccountNumber  string `json:"account_number"`
	BankCode       string `json:"bank_code"`
	IBAN           string `json:"iban,omitempty"`
	Amount         int    `json:"amount"`
	VariableSymbol string `json:"variable_symbol"`
	Message        string `json:"message"`
	SPD            string `json:"spd,omitempty"`
}

// NewPaymentDescriptor describes how to pay t into the given account.
func NewPaymentDescriptor(t Transaction, account, bankCode string) PaymentDescriptor {
	d := PaymentDescriptor{
		Currency:       "CZK",
		AccountNumber:  account,
		BankCode:       bankCode,
		Amount:         t.AbsAmount(),
		VariableSymbol: strconv.FormatInt(t.ID, 10),
		Message:        t.Reason,
	}
	if iban, err := CzechIBAN(account, bankCode); err == nil {
		d.IBAN = iban
		d.SPD = d.ShortPaymentDescriptor()
	}
	return d
}

// ShortPaymentDescriptor renders the Czech "SPD*1.0" QR payload.
func (d PaymentDescriptor) ShortPaymentDescriptor() string {
	msg := strings.NewReplacer("*", " ").Replace(d.Message)
	if r := []rune(msg); len(r) > 60 {
		msg = string(r[:60])
	}
	return fmt.Sprintf("SPD*1.0*ACC:%s*AM:%d.00*CC:%s*X-VS:%s*MSG:%s",
		d.IBAN, d.Amount, d.Currency, d.VariableSymbol, msg)
}

// CzechIBAN converts "[prefix-]number" and a bank code into an IBAN.
func CzechIBAN(account, bankCode string) (string, error) {
	prefix, number := "0", account
	if i := strings.Index(account, "-"); i >= 0 {
		prefix, number = account[:i], account[i+1:]
	}
	if !allDigits(prefix) || !allDigits(number) || !allDigits(bankCode) ||
		len(prefix) > 6 || len(number) > 10 || len(number) == 0 || len(bankCode) != 4 {
		return "", fmt.Errorf("invalid czech account %q/%q", account, bankCode)
	}
	bban := bankCode + fmt.Sprintf("%06s%010s", prefix, number)
	bban = strings.ReplaceAll(bban, " ", "0")

	// "CZ" = 12 35, moved behind the BBAN with a "00" placeholder checksum.
	remainder := 0
	for _, r := range bban + "123500" {
		remainder = (remainder*10 + int(r-'0')) % 97
	}
	return fmt.Sprintf("CZ%02d%s", 98-remainder, bban), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
