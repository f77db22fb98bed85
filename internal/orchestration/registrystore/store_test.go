package registrystore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestStore_InsertGetDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	t.Run("Insert", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO dnssd_registrations`).
			WithArgs(id, "_http._tcp.example.org.", "instance-1", "host.example.org.", 8080, now).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := store.Insert(ctx, Registration{
			ID:          id,
			ServiceType: "_http._tcp.example.org.",
			Instance:    "instance-1",
			Target:      "host.example.org.",
			Port:        8080,
			CreatedAt:   now,
		})
		if err != nil {
			t.Errorf("Insert failed: %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "service_type", "instance", "target", "port", "created_at"}).
			AddRow(id, "_http._tcp.example.org.", "instance-1", "host.example.org.", 8080, now)

		mock.ExpectQuery(`SELECT (.+) FROM dnssd_registrations WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(rows)

		reg, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if reg == nil || reg.Instance != "instance-1" || reg.Port != 8080 {
			t.Errorf("unexpected registration: %+v", reg)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM dnssd_registrations WHERE id = \$1`).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		reg, err := store.Get(ctx, id)
		if err != nil {
			t.Errorf("expected no error for missing row, got %v", err)
		}
		if reg != nil {
			t.Errorf("expected nil registration, got %+v", reg)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM dnssd_registrations WHERE id = \$1`).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := store.Delete(ctx, id); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
