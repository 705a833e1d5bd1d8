// Package storage persists knowledge base documents and chat transcripts.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kanit/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore persists knowledge base documents.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *models.KBDocument) error
	GetDocument(ctx context.Context, id string) (*models.KBDocument, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.KBDocument, error)
	CountDocuments(ctx context.Context) (int64, error)
}

// ChatStore persists chat transcripts per user session.
type ChatStore interface {
	SaveMessage(ctx context.Context, userID, sessionID string, rec models.ChatRecord) error
	History(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatRecord, error)
	ClearSession(ctx context.Context, userID, sessionID string) error
	ExportHistory(ctx context.Context, userID, sessionID string) ([]byte, error)
}

// Storage is the full persistence interface.
type Storage interface {
	DocumentStore
	ChatStore
	Close() error
}
