package cmd

import (
	"context"
	"fmt"

	"musinotes/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Test the Redis connection",
	Long:  `Connect to Redis and run a set/get/del round trip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis: %s, DB: %d\n", cfg.Redis.Addr(), cfg.Redis.DB)

		client, err := db.ConnectRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Println("Connected")

		if err := db.TestRedis(context.Background(), client); err != nil {
			return err
		}
		fmt.Println("Set/get/del round trip succeeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
