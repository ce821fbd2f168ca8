package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/estore-payments/internal/methodconfig"
	mcpostgres "github.com/frahmantamala/estore-payments/internal/methodconfig/postgres"
	"github.com/frahmantamala/estore-payments/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed payment method settings",
	Long:  `Seed the payment_methods_config table with PIX, card and boleto settings for development and testing.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, gdb, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		defs := methodconfig.DefaultDefinitions()
		if seedFile != "" {
			f, err := os.Open(seedFile)
			if err != nil {
				log.Fatalf("failed to open seed file: %v", err)
			}
			defs, err = methodconfig.LoadDefinitions(f)
			f.Close()
			if err != nil {
				log.Fatalf("failed to read seed file: %v", err)
			}
		}

		ctx := context.Background()
		service := methodconfig.NewService(mcpostgres.NewMethodConfigRepository(gdb), logger.LoggerWrapper())
		n, err := service.Seed(ctx, defs, clearData)
		if err != nil {
			log.Fatalf("failed to seed payment methods: %v", err)
		}
		fmt.Printf("Seeded %d payment method(s)\n", n)

		if err := service.Refresh(ctx); err != nil {
			log.Fatalf("seeded settings do not load: %v", err)
		}
		fmt.Println("Payment method settings verified")
	},
}
