package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func setupMockLedger(t *testing.T, maxRetries int) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	return New(db, Config{MaxRetries: maxRetries}, testLogger()), mock
}

var serializationFailure = &pq.Error{Code: "40001", Message: "could not serialize access"}

func expectSelectItemConflict(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, point_value FROM items`)).
		WithArgs(int64(1)).
		WillReturnError(serializationFailure)
	mock.ExpectRollback()
}

func TestRedeemRetriesSerializationFailure(t *testing.T) {
	l, mock := setupMockLedger(t, 3)

	expectSelectItemConflict(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, point_value FROM items`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "point_value"}).AddRow(2, 10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT points FROM users WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(15))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users SET points = points - $1`)).
		WithArgs(10, int64(3), 10).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE items SET is_available = FALSE`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO redemptions`)).
		WithArgs(int64(1), int64(3), int64(2), 10, "completed").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	receipt, err := l.Redeem(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if receipt.RedemptionID != 7 || receipt.RemainingPoints != 5 {
		t.Errorf("receipt = %+v, want redemption 7 with 5 remaining", receipt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRedeemGivesUpAfterMaxRetries(t *testing.T) {
	l, mock := setupMockLedger(t, 2)

	for i := 0; i < 3; i++ {
		expectSelectItemConflict(mock)
	}

	_, err := l.Redeem(context.Background(), 1, 3)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if KindOf(err) != KindConflict {
		t.Errorf("kind = %v, want conflict", KindOf(err))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRedeemDoesNotRetryPermanentErrors(t *testing.T) {
	l, mock := setupMockLedger(t, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, point_value FROM items`)).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := l.Redeem(context.Background(), 1, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("permanent error must not be reported as a conflict")
	}
	if KindOf(err) != KindInternal {
		t.Errorf("kind = %v, want error", KindOf(err))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApproveUsesRowLocksOnPostgres(t *testing.T) {
	l, mock := setupMockLedger(t, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, title, point_value, is_approved FROM items WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "title", "point_value", "is_approved"}).AddRow(2, "coat", 25, false))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE items SET is_approved = TRUE`)).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET points = points + $1`)).
		WithArgs(25, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	approval, err := l.Approve(context.Background(), 4)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approval.PointsAwarded != 25 || approval.Title != "coat" {
		t.Errorf("approval = %+v", approval)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
