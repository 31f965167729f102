package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NYTimes/gziphandler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aberdasher/draftbot/internal/database"
	"github.com/aberdasher/draftbot/internal/draftapi"
	"github.com/aberdasher/draftbot/internal/registry"
	"github.com/aberdasher/draftbot/internal/util/slogx"
	"github.com/aberdasher/draftbot/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "draftbot",
	Version: version.Version,
	Short:   "Draft session orchestration server",
	Long: `DraftBot orchestrates team draft tournaments: sign-ups, team split,
round-robin pairings, match reporting, and keep-alive sessions on the
external drafting service.
`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.ExactArgs(0),
	Short: "Start the draftbot server",
}

var logCmd = &cobra.Command{
	Use:   "log <session-id>",
	Args:  cobra.ExactArgs(1),
	Short: "Print the stored draft log of a session",
	Long: `Looks up a session in the database and writes its collected draft log
to stdout. The log is only available once the draft has finished and the
collector has fetched it.
`,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Args:  cobra.ExactArgs(0),
	Short: "Generate a fresh API token and its hash",
	Long: `Generates an API token together with its salted hash. Put the hash
into the options file as token-hash and hand the token to API clients.
`,
}

// chatProvisioner backs the registry with plain logged channels. Real chat
// integrations plug in here.
type chatProvisioner struct {
	log *slog.Logger
	ctr atomic.Int64
}

func (p *chatProvisioner) CreateChannel(_ context.Context, name string, participants []string) (string, error) {
	id := fmt.Sprintf("chan-%v", p.ctr.Add(1))
	p.log.Info("created channel",
		slog.String("channel_id", id),
		slog.String("name", name),
		slog.Int("participants", len(participants)),
	)
	return id, nil
}

func (p *chatProvisioner) DeleteChannel(_ context.Context, channelID string) error {
	p.log.Info("deleted channel", slog.String("channel_id", channelID))
	return nil
}

func init() {
	p := serveCmd.Flags()
	optsPath := p.StringP(
		"options", "o", "",
		"options file")
	if err := serveCmd.MarkFlagRequired("options"); err != nil {
		panic(err)
	}

	serveCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		rawOpts, err := os.ReadFile(*optsPath)
		if err != nil {
			return fmt.Errorf("read options: %w", err)
		}
		var opts Options
		if err := toml.Unmarshal(rawOpts, &opts); err != nil {
			return fmt.Errorf("unmarshal options: %w", err)
		}
		opts.FillDefaults()
		if opts.TokenHash == "" {
			return fmt.Errorf("no token-hash in options, run `draftbot token` to get one")
		}
		tokenChecker, err := draftapi.NewTokenChecker(opts.TokenHash, opts.Token)
		if err != nil {
			return fmt.Errorf("build token checker: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		log := newLogger(opts.Debug)

		db, err := database.New(log, opts.DB)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		reg, err := registry.New(ctx, log, db, &chatProvisioner{log: log}, opts.Registry)
		if err != nil {
			return fmt.Errorf("create registry: %w", err)
		}
		defer reg.Close()

		svc := draftapi.NewService(ctx, log, opts.Service, reg, db)
		defer svc.Close()

		mux := http.NewServeMux()
		if err := draftapi.RegisterServer(svc, mux, draftapi.ServerOptions{
			TokenChecker: tokenChecker,
		}, "/api/draft", log); err != nil {
			return fmt.Errorf("register server: %w", err)
		}

		servCtx, servCancel := context.WithCancel(ctx)
		defer servCancel()
		server := &http.Server{
			Addr:        opts.Addr,
			Handler:     gziphandler.GzipHandler(mux),
			BaseContext: func(net.Listener) context.Context { return servCtx },
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("starting http server", slog.String("addr", opts.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("stopping server")
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			if err := server.Shutdown(sctx); err != nil {
				log.Warn("shutdown failed", slogx.Err(err))
				_ = server.Close()
			}
			return nil
		})
		return g.Wait()
	}

	logOptsPath := logCmd.Flags().StringP(
		"options", "o", "",
		"options file")
	if err := logCmd.MarkFlagRequired("options"); err != nil {
		panic(err)
	}

	logCmd.RunE = func(cmd *cobra.Command, args []string) error {
		rawOpts, err := os.ReadFile(*logOptsPath)
		if err != nil {
			return fmt.Errorf("read options: %w", err)
		}
		var opts Options
		if err := toml.Unmarshal(rawOpts, &opts); err != nil {
			return fmt.Errorf("unmarshal options: %w", err)
		}
		opts.FillDefaults()

		log := newLogger(opts.Debug)
		db, err := database.New(log, opts.DB)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		ctx := cmd.Context()
		sess, err := db.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess == nil {
			return fmt.Errorf("no session %v in the database", args[0])
		}
		data, err := db.GetDraftLog(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("load draft log: %w", err)
		}
		if data == nil {
			return fmt.Errorf("no draft log collected yet for draft %v", sess.DraftID)
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	tokenCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		token, hash, err := draftapi.GenerateToken(nil)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Printf("token: %v\ntoken-hash: %q\n", token, hash)
		return nil
	}

	rootCmd.AddCommand(serveCmd, logCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
