package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolwatch/store"
)

// resolveStore opens the baseline store selected by the --store and
// --store-path flags. TOOLWATCH_STORE_PATH overrides the default location
// when no explicit path is given.
func resolveStore(cmd *cobra.Command) (store.Store, func(), error) {
	backend, _ := cmd.Flags().GetString("store")
	storePath, _ := cmd.Flags().GetString("store-path")
	if strings.TrimSpace(storePath) == "" {
		storePath = os.Getenv("TOOLWATCH_STORE_PATH")
	}
	storePath = strings.TrimSpace(storePath)

	switch strings.TrimSpace(backend) {
	case "", "sqlite":
		var (
			s   *store.SQLiteStore
			err error
		)
		if storePath == "" {
			s, err = store.NewDefaultSQLiteStore()
		} else {
			s, err = store.NewSQLiteStore(store.SQLiteConfig{DSN: filepath.Clean(storePath)})
		}
		if err != nil {
			return nil, nil, exitError(exitRuntime, "opening sqlite store: %v", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "file":
		if storePath == "" {
			s, err := store.NewDefaultFileStore()
			if err != nil {
				return nil, nil, exitError(exitRuntime, "opening file store: %v", err)
			}
			return s, func() {}, nil
		}
		return store.NewFileStore(filepath.Clean(storePath)), func() {}, nil
	default:
		return nil, nil, exitError(exitValidation, "unsupported --store %q (use sqlite or file)", backend)
	}
}

// addStoreFlags registers the store selection flags shared by every command
// that touches persisted baselines or alerts.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "sqlite", "Store backend: sqlite | file")
	cmd.Flags().String("store-path", "", "Store location: sqlite database path or file store directory (default: ~/.toolwatch)")
}
