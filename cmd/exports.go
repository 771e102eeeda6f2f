package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"musinotes/storage"

	"github.com/spf13/cobra"
)

var (
	exportsUser   int64
	exportsStats  bool
	exportsDelete bool
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Inspect the PDF export archive",
	Long:  `List, summarise or purge archived PDF exports in the MinIO bucket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Minio.Enabled() {
			return errors.New("MINIO_ENDPOINT is not set")
		}
		store, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			return err
		}
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.Minio.Endpoint, store.BucketName())

		ctx := context.Background()
		prefix := "exports/"
		if exportsUser > 0 {
			prefix = storage.UserPrefix(exportsUser)
		}

		switch {
		case exportsDelete:
			if exportsUser <= 0 {
				return errors.New("--delete needs --user")
			}
			n, err := store.RemovePrefix(ctx, prefix)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d objects under %s\n", n, prefix)

		case exportsStats:
			stats, err := store.Stats(ctx, prefix)
			if err != nil {
				return err
			}
			fmt.Printf("Objects: %d\nTotal size: %s\n", stats.Objects, storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("Last modified: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			owners := make([]string, 0, len(stats.PerOwner))
			for owner := range stats.PerOwner {
				owners = append(owners, owner)
			}
			sort.Strings(owners)
			for _, owner := range owners {
				fmt.Printf("  user %s: %d\n", owner, stats.PerOwner[owner])
			}

		default:
			objects, err := store.List(ctx, prefix)
			if err != nil {
				return err
			}
			for _, obj := range objects {
				fmt.Printf("%-70s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size),
					obj.LastModified.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("%d objects\n", len(objects))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportsCmd)

	exportsCmd.Flags().Int64VarP(&exportsUser, "user", "u", 0, "limit to one user's exports")
	exportsCmd.Flags().BoolVarP(&exportsStats, "stats", "s", false, "show archive statistics")
	exportsCmd.Flags().BoolVarP(&exportsDelete, "delete", "d", false, "delete the user's archived exports")

	exportsCmd.Example = `  # list every archived export
  musinotes exports

  # statistics for user 42
  musinotes exports -s -u 42

  # purge user 42's exports
  musinotes exports -d -u 42`
}
