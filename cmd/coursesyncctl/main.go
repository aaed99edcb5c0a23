// coursesyncctl is the storage-management companion for the coursesync
// engine: it inspects and prunes a local cache database without going
// through the app.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/praxishq/coursesync/internal/cachestore"
	"github.com/praxishq/coursesync/internal/logger"
	"github.com/praxishq/coursesync/internal/model"
)

func main() {
	log := logger.New("coursesyncctl")

	var cachePath string

	root := &cobra.Command{
		Use:           "coursesyncctl",
		Short:         "Inspect and prune a coursesync cache database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cachePath, "cache", "", "path to the cache database (required)")
	_ = root.MarkPersistentFlagRequired("cache")

	openStore := func() (*cachestore.Store, error) {
		return cachestore.New(cachePath)
	}

	evict := &cobra.Command{
		Use:   "evict",
		Short: "Remove every cached entry past its expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			keys, err := st.EvictExpired(context.Background(), time.Now())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			log.Info().Int("evicted", len(keys)).Msg("eviction complete")
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear <ownerID>",
		Short: "Remove all cached content and the membership baseline for one owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID := args[0]
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := context.Background()
			n, err := st.DeletePrefix(ctx, model.OwnerPrefix(ownerID))
			if err != nil {
				return err
			}
			if err := st.Delete(ctx, model.MembershipKey(ownerID)); err != nil {
				return err
			}
			log.Info().Str("owner", ownerID).Int64("removed", n).Msg("owner cache cleared")
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats [ownerID]",
		Short: "Print per-key size, expiry and last-access metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "item/"
			if len(args) == 1 {
				prefix = model.OwnerPrefix(args[0])
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			idx, err := st.IndexMetadata(context.Background(), prefix)
			if err != nil {
				return err
			}
			var total int64
			for k, meta := range idx {
				fmt.Printf("%s\t%d bytes\texpires %s\tlast accessed %s\n",
					k, meta.SizeBytes, fmtTime(meta.ExpiresAt), fmtTime(meta.LastAccessed))
				total += meta.SizeBytes
			}
			fmt.Printf("%d entries, %d bytes total\n", len(idx), total)
			return nil
		},
	}

	root.AddCommand(evict, clear, stats)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
