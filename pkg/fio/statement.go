package fio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The statement JSON names every attribute "columnN" with a {value,name,id}
// object that is null when the bank has nothing to report.
type statementResponse struct {
	AccountStatement struct {
		TransactionList struct {
			Transaction []rawTransaction `json:"transaction"`
		} `json:"transactionList"`
	} `json:"accountStatement"`
}

type rawTransaction struct {
	Date           *column `json:"column0"`
	Amount         *column `json:"column1"`
	VariableSymbol *column `json:"column5"`
	Counterparty   *column `json:"column10"`
	Currency       *column `json:"column14"`
	Message        *column `json:"column16"`
	MovementID     *column `json:"column22"`
}

type column struct {
	Value any `json:"value"`
}

func (c *column) text() string {
	if c == nil || c.Value == nil {
		return ""
	}
	switch v := c.Value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (c *column) number() (float64, bool) {
	if c == nil || c.Value == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (s statementResponse) entries() ([]Entry, error) {
	raw := s.AccountStatement.TransactionList.Transaction
	out := make([]Entry, 0, len(raw))
	for i, tx := range raw {
		id, ok := tx.MovementID.number()
		if !ok {
			return nil, fmt.Errorf("fio: transaction %d has no movement id", i)
		}
		amount, ok := tx.Amount.number()
		if !ok {
			return nil, fmt.Errorf("fio: transaction %d has no amount", i)
		}
		date, err := parseDate(tx.Date.text())
		if err != nil {
			return nil, fmt.Errorf("fio: transaction %d: %w", i, err)
		}
		out = append(out, Entry{
			ID:             int64(id),
			Date:           date,
			Amount:         amount,
			Currency:       tx.Currency.text(),
			VariableSymbol: tx.VariableSymbol.text(),
			Counterparty:   tx.Counterparty.text(),
			Message:        tx.Message.text(),
		})
	}
	return out, nil
}

// parseDate accepts "2024-04-03+0200" as sent by the bank, or a bare date.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	if t, err := time.Parse("2006-01-02-0700", value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}
