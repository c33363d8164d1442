// Package ingest implements the per-message pipeline that ties the DB
// gateway, vault storage, header parser and broker publisher together:
// inbox lookup -> DB row transition -> header extraction -> vault copy ->
// DB finalize -> outbound echo.
//
// Grounded step-for-step on original_source/lega/ingest.py's work()
// function.
package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/neicnordic/ingest-worker/internal/header"
	"github.com/neicnordic/ingest-worker/internal/ingesterr"
	"github.com/neicnordic/ingest-worker/internal/vault"
)

// DB is the subset of db.Gateway the worker needs.
type DB interface {
	InsertFile(ctx context.Context, filepath, userID string) (int64, error)
	MarkInProgress(ctx context.Context, fileID int64) error
	SetInfo(ctx context.Context, fileID int64, vaultPath string, vaultSize int64, headerHex string) error
}

// Publisher is the subset of *broker.Broker the worker needs to send the
// processing-started notice to CentralEGA.
type Publisher interface {
	Publish(content any, exchange, routingKey, correlationID string) error
}

// Config carries the per-process settings the worker needs beyond its
// collaborators: the inbox root template and the CentralEGA progress
// routing.
type Config struct {
	// InboxLocationTemplate is CONF.get('inbox','location'): a format
	// string containing exactly one %s placeholder, substituted with
	// user_id.
	InboxLocationTemplate string

	ProgressExchange   string // "cega"
	ProgressRoutingKey string // "files.processing"
}

// Worker runs the twelve-step ingestion pipeline for one parsed
// ingestion-notification message.
type Worker struct {
	db     DB
	vault  vault.Storage
	header header.Parser
	pub    Publisher
	cfg    Config
}

// New builds a Worker from its collaborators.
func New(db DB, storage vault.Storage, parser header.Parser, pub Publisher, cfg Config) *Worker {
	return &Worker{db: db, vault: storage, header: parser, pub: pub, cfg: cfg}
}

// Process runs the ingestion pipeline for one delivery. content is the
// parsed notification body; correlationID is used for the progress
// publish. On success it returns the populated outbound echo message;
// the dispatcher publishes it to the default exchange/routing key and
// acks. On failure it returns an ingesterr.FromUser (inbox miss, rejected
// header) or a plain error (DB/storage/system fault).
func (w *Worker) Process(ctx context.Context, correlationID string, content map[string]any) (map[string]any, error) {
	filepathVal, _ := content["filepath"].(string)
	logrus.Infof("processing %s", filepathVal)

	userID := sanitize(stringField(content, "user"))

	fileID, err := w.db.InsertFile(ctx, filepathVal, userID)
	if err != nil {
		return nil, fmt.Errorf("insert_file: %w", err)
	}
	content["file_id"] = fileID

	orgMsg := copyMap(content)
	content["org_msg"] = orgMsg

	inboxRoot := fmt.Sprintf(w.cfg.InboxLocationTemplate, userID)
	inboxFilepath := filepath.Join(inboxRoot, strings.TrimPrefix(filepathVal, "/"))
	logrus.Debugf("inbox file path: %s", inboxFilepath)

	if _, statErr := os.Stat(inboxFilepath); statErr != nil {
		return nil, ingesterr.NotFoundInInbox(filepathVal)
	}

	if err := w.db.MarkInProgress(ctx, fileID); err != nil {
		return nil, fmt.Errorf("mark_in_progress(%d): %w", fileID, err)
	}

	progress := copyMap(orgMsg)
	progress["status"] = "PROCESSING"
	if err := w.pub.Publish(progress, w.cfg.ProgressExchange, w.cfg.ProgressRoutingKey, correlationID); err != nil {
		return nil, fmt.Errorf("publishing progress message: %w", err)
	}

	infile, err := os.Open(inboxFilepath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", inboxFilepath, err)
	}
	defer infile.Close()

	beginning, headerBytes, err := w.header.ReadHeader(infile)
	if err != nil {
		if header.IsFormatError(err) {
			return nil, ingesterr.HeaderRejected(err)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	target, err := w.vault.Location(fileID)
	if err != nil {
		return nil, fmt.Errorf("vault location(%d): %w", fileID, err)
	}
	logrus.Infof("moving the rest of %s to %s", filepathVal, target)

	targetSize, err := w.vault.Copy(infile, target)
	if err != nil {
		return nil, fmt.Errorf("vault copy to %s: %w", target, err)
	}

	headerHex := hex.EncodeToString(append(append([]byte{}, beginning...), headerBytes...))
	if err := w.db.SetInfo(ctx, fileID, target, targetSize, headerHex); err != nil {
		return nil, fmt.Errorf("set_info(%d): %w", fileID, err)
	}

	content["header"] = headerHex
	content["vault_path"] = target
	return content, nil
}

func stringField(content map[string]any, key string) string {
	v, _ := content[key].(string)
	return v
}

// sanitize strips a leading scheme-like prefix up to and including ":"
// and a trailing "@domain" suffix, yielding a bare user id. Matches
// spec.md's glossary: "elixir:alice@example.org" -> "alice".
func sanitize(user string) string {
	if idx := strings.Index(user, ":"); idx != -1 {
		user = user[idx+1:]
	}
	if idx := strings.Index(user, "@"); idx != -1 {
		user = user[:idx]
	}
	return user
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
