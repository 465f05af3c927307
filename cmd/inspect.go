package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/config"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/storage"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/store"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the stored cart and user of one visitor session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			cfg := config.Load()
			log := newLogger(cfg)
			log.Out = os.Stderr

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			be, err := openStorage(cfg, log)
			if err != nil {
				return err
			}
			defer be.close()

			st := store.New(storage.Namespace(be.kv, sessionID), store.Options{
				Keys: store.Keys{Cart: cfg.CartKey, User: cfg.UserKey},
				Log:  log.WithField("session", sessionID),
			})
			if err := st.Load(ctx); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st.Snapshot())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "visitor session id (the subject of the shop_session cookie)")
	return cmd
}
