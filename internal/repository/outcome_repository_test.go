package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"trader/internal/models"
)

// ============================================================
// OutcomeRepository Tests
// ============================================================

func TestOutcomeRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		outcome     *models.TradeOutcome
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			outcome: &models.TradeOutcome{
				Symbol:     "BTCUSDT",
				Side:       models.SideLong,
				EntryPrice: 60000,
				ExitPrice:  62500,
				PnlPct:     4.17,
				HoldHours:  2.5,
				Reason:     models.CloseReasonHardStop,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO trade_outcomes`).
					WithArgs(sqlmock.AnyArg(), "BTCUSDT", models.SideLong, 60000.0, 62500.0, 4.17, 2.5, models.CloseReasonHardStop).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
			expectError: false,
		},
		{
			name: "database error",
			outcome: &models.TradeOutcome{
				Symbol: "ETHUSDT",
				Side:   models.SideShort,
				Reason: models.CloseReasonDecay,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO trade_outcomes`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewOutcomeRepository(db)
			err = repo.Create(tt.outcome)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if tt.outcome.ID == 0 {
					t.Error("ID not set after create")
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestOutcomeRepositoryGetRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "ts", "symbol", "side", "entry_price", "exit_price", "pnl_pct", "hold_hours", "reason"}).
		AddRow(2, now, "ETHUSDT", models.SideShort, 3000.0, 2950.0, 1.67, 1.2, models.CloseReasonSignalFlip).
		AddRow(1, now.Add(-time.Hour), "BTCUSDT", models.SideLong, 60000.0, 59400.0, -1.0, 3.0, models.CloseReasonHardStop)

	mock.ExpectQuery(`SELECT (.+) FROM trade_outcomes`).
		WithArgs(20).
		WillReturnRows(rows)

	repo := NewOutcomeRepository(db)
	outcomes, err := repo.GetRecent(20)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].Symbol != "ETHUSDT" || outcomes[0].Reason != models.CloseReasonSignalFlip {
		t.Errorf("unexpected first outcome: %+v", outcomes[0])
	}
	if outcomes[1].PnlPct != -1.0 {
		t.Errorf("PnlPct = %v, want -1.0", outcomes[1].PnlPct)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
