// Package cli wires the ingestion worker's command-line entry point:
// locate and load the INI configuration, build the broker/db/vault
// collaborators it describes, and run the consume loop until the process
// receives an interrupt.
//
// Grounded on the teacher's cli/root.go for the cobra+viper flag/env
// wiring shape, generalized from an HTTP server's one-shot startup to a
// long-running consumer with signal-driven shutdown (informed by
// cli/consumer.go's goroutine/signal structure) and on
// original_source/lega/conf.py for which environment variables and flags
// the original worker honors.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neicnordic/ingest-worker/internal/broker"
	"github.com/neicnordic/ingest-worker/internal/config"
	"github.com/neicnordic/ingest-worker/internal/db"
	"github.com/neicnordic/ingest-worker/internal/dispatcher"
	"github.com/neicnordic/ingest-worker/internal/header"
	"github.com/neicnordic/ingest-worker/internal/ingest"
	"github.com/neicnordic/ingest-worker/internal/logging"
	"github.com/neicnordic/ingest-worker/internal/model"
	"github.com/neicnordic/ingest-worker/internal/retry"
	"github.com/neicnordic/ingest-worker/internal/secrets"
	"github.com/neicnordic/ingest-worker/internal/vault"
	"github.com/neicnordic/ingest-worker/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

// ConsumeLoopError marks a fatal error raised from inside the broker
// consume loop itself, as opposed to one raised during startup (bad
// config, exhausted broker/DB connect retries). main distinguishes the
// two to pick an exit code: startup failures exit 1, a dead consume loop
// exits 2, matching the original worker's "any other exception inside
// the loop is fatal" shutdown path.
type ConsumeLoopError struct {
	Cause error
}

func (e *ConsumeLoopError) Error() string {
	return fmt.Sprintf("consume loop: %s", e.Cause)
}

func (e *ConsumeLoopError) Unwrap() error {
	return e.Cause
}

// RootCmd is the ingest-worker entry point: a single long-running command
// with no subcommands, matching the original's "one process, one queue"
// deployment model.
var RootCmd = &cobra.Command{
	Use:   "ingest-worker",
	Short: "consume upload notifications and archive Crypt4GH payloads into the vault",
	Long: `ingest-worker

Consumes file-upload notifications from a message broker, splits the
Crypt4GH header from the payload, records the header and vault location in
Postgres, and streams the ciphertext into the configured vault backend
(local filesystem or S3).

Configuration is read from an INI file (LEGA_CONF or --config), with
individual values optionally resolved through value://, env://, file://
or secret:// schemes for sensitive settings.`,
	RunE: runWorker,
}

func init() {
	cobra.OnInitialize(initConfigPath)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the INI configuration file (default: $LEGA_CONF)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "log level override (default: $LEGA_LOG, or 'info')")

	viper.BindPFlag("config", RootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log", RootCmd.PersistentFlags().Lookup("log"))
}

// initConfigPath resolves the config file path and log level from flags
// falling back to LEGA_CONF/LEGA_LOG, matching the original's
// environment-variable-first configuration discovery.
func initConfigPath() {
	viper.SetEnvPrefix("lega")
	viper.BindEnv("conf")
	viper.BindEnv("log")
	viper.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = viper.GetString("conf")
	}
	if logLevel == "" {
		logLevel = viper.GetString("log")
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	logCfg, err := logging.LoadYAMLConfig(logLevel)
	if err != nil {
		return fmt.Errorf("loading log configuration: %w", err)
	}
	logger := logging.Setup(logCfg)

	if cfgFile == "" {
		return fmt.Errorf("no configuration file given (use --config or set LEGA_CONF)")
	}

	store, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	build := version.GetBuildInfo()
	logger.WithField("go_version", build.GoVersion).Info("starting ingest-worker")

	brokerURI, err := store.GetSensitive("broker", "connection")
	if err != nil {
		return fmt.Errorf("resolving broker.connection: %w", err)
	}
	logger.Debugf("broker.connection resolved to %s", secrets.Mask(brokerURI))
	brokerCfg := broker.Config{
		URI:      brokerURI,
		Attempts: store.GetInt("broker", "try", retry.DefaultAttempts),
		Interval: time.Duration(store.GetInt("broker", "try_interval", int(retry.DefaultInterval/time.Second))) * time.Second,
		TLS: broker.TLSConfig{
			VerifyPeer:     store.GetBool("broker", "verify_peer", false),
			VerifyHostname: store.GetBool("broker", "verify_hostname", false),
			CACertFile:     store.Get("broker", "cacertfile", ""),
			CertFile:       store.Get("broker", "certfile", ""),
			KeyFile:        store.Get("broker", "keyfile", ""),
			ServerHostname: store.Get("broker", "server_hostname", ""),
		},
		Queue:      store.Get("broker", "queue", "files"),
		Exchange:   store.Get("DEFAULT", "exchange", "ingestion.v1"),
		RoutingKey: store.Get("DEFAULT", "routing_key", "archived"),
	}

	b := broker.New(brokerCfg, func() { os.Exit(1) })

	dbConnString, err := store.GetSensitive("db", "connection")
	if err != nil {
		return fmt.Errorf("resolving db.connection: %w", err)
	}
	logger.Debugf("db.connection resolved to %s", secrets.Mask(dbConnString))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gateway, err := db.Connect(ctx, dbConnString,
		store.GetInt("db", "try", retry.DefaultAttempts),
		time.Duration(store.GetInt("db", "try_interval", int(retry.DefaultInterval/time.Second)))*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer gateway.Close()

	vaultStorage, err := vault.New(store.Get("vault", "driver", "FileStorage"), vault.Config{
		FileStorageRoot: store.Get("vault", "location", "/ega/vault"),
		S3Endpoint:      store.Get("vault", "s3_url", ""),
		S3Region:        store.Get("vault", "s3_region", "us-east-1"),
		S3Bucket:        store.Get("vault", "s3_bucket", ""),
		S3AccessKey:     store.Get("vault", "s3_access_key", ""),
		S3SecretKey:     store.Get("vault", "s3_secret_key", ""),
		S3PathPrefix:    store.Get("vault", "s3_prefix", ""),
	})
	if err != nil {
		return fmt.Errorf("building vault storage: %w", err)
	}

	headerParser, err := header.NewCrypt4GHParser(store.Get("crypt4gh", "keyfile", ""), store.Get("crypt4gh", "passphrase", ""))
	if err != nil {
		return fmt.Errorf("loading crypt4gh key: %w", err)
	}

	worker := ingest.New(gateway, vaultStorage, headerParser, b, ingest.Config{
		InboxLocationTemplate: store.Get("inbox", "location", "/ega/inbox/%s"),
		ProgressExchange:      store.Get("cega", "exchange", "cega"),
		ProgressRoutingKey:    store.Get("cega", "routing_key", "files.processing"),
	})

	catchErrors := gateway.CatchError
	routing := dispatcher.Routing{
		Exchange:     brokerCfg.Exchange,
		RoutingKey:   brokerCfg.RoutingKey,
		ErrorKey:     store.Get("DEFAULT", "error", "error.system"),
		UserErrorKey: store.Get("DEFAULT", "user_error", "error"),
	}

	disp := dispatcher.New(b, routing, func(dctx dispatcher.Context, content map[string]any) (map[string]any, error) {
		work := func(ctx context.Context, data map[string]any) error {
			result, procErr := worker.Process(ctx, dctx.CorrelationID, data)
			if procErr != nil {
				return procErr
			}
			for k, v := range result {
				data[k] = v
			}
			return nil
		}
		if err := catchErrors(work)(ctx, content); err != nil {
			return nil, err
		}
		return content, nil
	})

	logger.Infof("consuming from queue %q", brokerCfg.Queue)
	if err := b.Consume(ctx, func(d model.Delivery) broker.Outcome {
		settlement := disp.Handle(d.ContentType, d.Body, d.CorrelationID)
		switch settlement {
		case dispatcher.Ack:
			return broker.Ack
		case dispatcher.RejectRequeue:
			return broker.RejectRequeue
		default:
			return broker.RejectDiscard
		}
	}); err != nil {
		return &ConsumeLoopError{Cause: err}
	}

	return nil
}
