package repository

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/database/migrations"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Create in-memory database
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// Run migrations
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Clean up when test completes
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// testQueueItem builds a pending queue item with sane defaults. Pass a
// non-zero createdAt to control drain ordering in tests.
func testQueueItem(userID, accountID string, priority int, createdAt time.Time) *models.QueueItem {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &models.QueueItem{
		ID:          ulid.Make().String(),
		UserID:      userID,
		AccountID:   accountID,
		ActionType:  models.ActionCommentReply,
		PayloadJSON: json.RawMessage(`{"comment_id":"c1","message":"thanks!"}`),
		Priority:    priority,
		Status:      models.QueueStatusPending,
		DeferReason: models.DeferReasonUserLimit,
		WindowStart: window.CurrentStart(createdAt),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}
