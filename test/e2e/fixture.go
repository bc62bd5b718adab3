package e2e

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/lastview/internal/scrollpos"
)

// dbPath returns the position database used by a test home directory.
func dbPath(homeDir string) string {
	return filepath.Join(homeDir, ".lastview", "lastview.db")
}

// seedPosition saves a position for feedKey before the binary starts.
func seedPosition(homeDir, feedKey, itemKey string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath(homeDir)), 0755); err != nil {
		return err
	}
	st, err := scrollpos.Open(dbPath(homeDir))
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Put(context.Background(), scrollpos.Position{
		FeedKey:             feedKey,
		LastViewedItemID:    itemKey,
		LastViewedSortValue: time.Now().UnixMilli(),
		LastUpdated:         time.Now().UnixMilli(),
	})
}

// readPosition reads what the binary saved for feedKey.
func readPosition(homeDir, feedKey string) (scrollpos.Position, error) {
	st, err := scrollpos.Open(dbPath(homeDir))
	if err != nil {
		return scrollpos.Position{}, err
	}
	defer st.Close()
	return st.Get(context.Background(), feedKey)
}
