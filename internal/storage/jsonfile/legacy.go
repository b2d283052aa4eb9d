package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"expense-tracker/internal/domain"
)

// flexID reads ids stored either as strings or as the numeric
// Date.now() values the old Node server wrote.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id %s: %w", data, err)
		}
		*id = flexID(n.String())
	}
	return nil
}

// UnmarshalJSON accepts the old layout too: "id" instead of "_id", and the
// budget kept on the user record.
func (r *userRecord) UnmarshalJSON(data []byte) error {
	type plain userRecord
	aux := struct {
		*plain
		ID       flexID `json:"_id"`
		LegacyID flexID `json:"id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ID = string(aux.ID)
	if r.ID == "" {
		r.ID = string(aux.LegacyID)
	}
	return nil
}

func (r *expenseRecord) UnmarshalJSON(data []byte) error {
	type plain expenseRecord
	aux := struct {
		*plain
		ID     flexID `json:"_id"`
		UserID flexID `json:"userId"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ID = string(aux.ID)
	r.UserID = string(aux.UserID)
	return nil
}

// legacyBudget reports the budget an old user record carries, if any.
func (r userRecord) legacyBudget() *budgetRecord {
	if r.MonthlyBudget == nil {
		return nil
	}
	b := &budgetRecord{UserID: r.ID, MonthlyBudget: *r.MonthlyBudget, WarningThreshold: domain.DefaultWarningThreshold}
	if r.BudgetWarningThreshold != nil {
		b.WarningThreshold = *r.BudgetWarningThreshold
	}
	return b
}
