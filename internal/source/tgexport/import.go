package tgexport

import (
	"fmt"
	"os"
	"path/filepath"

	"chatdigest/internal/storage"
)

// Import writes exp into db in one transaction. Re-importing an export
// overwrites rows with the same ids.
func Import(db *storage.DB, exp *Export) error {
	return db.WithTx(func(tx *storage.Tx) error {
		if err := tx.UpsertChat(exp.ChatID, exp.Name); err != nil {
			return fmt.Errorf("upsert chat: %w", err)
		}
		for _, p := range exp.Participants {
			if err := tx.UpsertParticipant(exp.ChatID, p); err != nil {
				return fmt.Errorf("upsert participant %s: %w", p.SenderID, err)
			}
		}
		for _, m := range exp.Messages {
			if err := tx.UpsertMessage(m); err != nil {
				return fmt.Errorf("upsert message %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// ImportFile parses and imports the export at path, then records path as
// the chat's last import.
func ImportFile(db *storage.DB, path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	exp, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := Import(db, exp); err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := db.RecordImport(exp.ChatID, path); err != nil {
		return nil, fmt.Errorf("record import of %s: %w", path, err)
	}
	return exp, nil
}
