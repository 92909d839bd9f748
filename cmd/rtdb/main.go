// Command rtdb is a small client for exercising a realtime database
// connection from a terminal: set a value, fetch one, or watch a location
// for changes. Grounded structurally on the teacher's cmd/bd root command
// (PersistentPreRun wiring signal-aware cancellation and debug verbosity,
// Execute() in main), scaled down to this module's four verbs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Cutii/firebase-go-sdk/internal/auth"
	"github.com/Cutii/firebase-go-sdk/internal/debug"
	"github.com/Cutii/firebase-go-sdk/rtdb"
)

var (
	rootCtx    context.Context
	rootCancel context.CancelFunc

	flagConfigPath string
	flagURL        string
	flagToken      string
	flagForceREST  bool
	verboseFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "rtdb",
	Short: "rtdb - command-line client for a realtime database endpoint",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		debug.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.yaml (default $HOME/.rtdb/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "database URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "auth token (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagForceREST, "rest", false, "use the read-only REST+SSE transport instead of the websocket")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging (RTDB_DEBUG)")

	rootCmd.AddCommand(setCmd, getCmd, watchCmd, statusCmd)
}

func openDatabase() (*rtdb.Database, error) {
	cfg, err := loadConfig(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagURL != "" {
		cfg.URL = flagURL
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagForceREST {
		cfg.ForceREST = true
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("no database URL: pass --url or set it in the config file")
	}

	var tokens auth.TokenProvider
	if cfg.Token != "" {
		tokens = auth.NewStatic(cfg.Token)
	}

	return rtdb.NewDatabase(rtdb.Config{
		URL:       cfg.URL,
		Tokens:    tokens,
		ForceREST: cfg.ForceREST,
	})
}

var setCmd = &cobra.Command{
	Use:   "set <path> <json-value>",
	Short: "Write a JSON value at path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value any
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("invalid JSON value: %w", err)
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		done := make(chan error, 1)
		db.Ref(args[0]).Set(value, func(err error) { done <- err })

		select {
		case err := <-done:
			return err
		case <-rootCtx.Done():
			return rootCtx.Err()
		}
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Fetch the current value at path once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		defer cancel()

		value, err := db.Ref(args[0]).Get(ctx)
		if err != nil {
			return err
		}
		return printJSON(value)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Print path's value and every subsequent change until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		sessionID := uuid.New().String()
		debug.Logf("rtdb: watch session %s on %s\n", sessionID, args[0])

		off := db.Ref(args[0]).On(func(value any, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return
			}
			_ = printJSON(value)
		})
		defer off()

		<-rootCtx.Done()
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print engine counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		time.Sleep(500 * time.Millisecond)
		stats := db.Stats()
		fmt.Printf("writes sent:         %d\n", stats.WritesSent)
		fmt.Printf("writes acked:        %d\n", stats.WritesAcked)
		fmt.Printf("writes reverted:     %d\n", stats.WritesReverted)
		fmt.Printf("listens established: %d\n", stats.ListensEstablished)
		fmt.Printf("listens failed:      %d\n", stats.ListensFailed)
		fmt.Printf("reconnects:          %d\n", stats.Reconnects)
		fmt.Printf("events delivered:    %d\n", stats.EventsDelivered)
		fmt.Printf("callback panics:     %d\n", stats.CallbackPanics)
		return nil
	},
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
