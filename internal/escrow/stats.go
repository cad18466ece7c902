package escrow

import (
	"context"

	"github.com/shopspring/decimal"

	"servipay/internal/models"
)

// Stats агрегат по эскроу для админской панели
type Stats struct {
	Total          int64                         `json:"total"`
	ByStatus       map[models.EscrowStatus]int64 `json:"byStatus"`
	HeldAmount     int64                         `json:"heldAmount"`
	PaidOutAmount  int64                         `json:"paidOutAmount"`
	RefundedAmount int64                         `json:"refundedAmount"`
	OpenDisputes   int64                         `json:"openDisputes"`
	StuckCount     int64                         `json:"stuckCount"`
	AverageAmount  decimal.Decimal               `json:"averageAmount"`
}

// CollectStats считает распределение по статусам и объёмы
func (e *Engine) CollectStats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStatus: make(map[models.EscrowStatus]int64)}

	type row struct {
		Status models.EscrowStatus
		Count  int64
		Sum    int64
	}
	var rows []row
	if err := e.db.Model(&models.Escrow{}).
		Select("status, count(*) as count, sum(amount) as sum").
		Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	var totalAmount int64
	for _, r := range rows {
		st.ByStatus[r.Status] = r.Count
		st.Total += r.Count
		totalAmount += r.Sum
		switch r.Status {
		case models.EscrowStatusFundsHeld, models.EscrowStatusInProgress, models.EscrowStatusComplete, models.EscrowStatusPayoutInitiated:
			st.HeldAmount += r.Sum
		case models.EscrowStatusPayoutCompleted:
			st.PaidOutAmount += r.Sum
		case models.EscrowStatusRefunded:
			st.RefundedAmount += r.Sum
		case models.EscrowStatusDispute:
			st.OpenDisputes += r.Count
		}
	}
	if st.Total > 0 {
		st.AverageAmount = decimal.NewFromInt(totalAmount).
			Div(decimal.NewFromInt(st.Total)).Round(2)
	}

	if err := e.db.Model(&models.Escrow{}).
		Where("flagged_as_stuck = ?", true).
		Count(&st.StuckCount).Error; err != nil {
		return nil, err
	}
	return st, nil
}
