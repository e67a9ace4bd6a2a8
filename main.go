package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goldleaf/storefront/config"
	"github.com/goldleaf/storefront/internal/adminapi"
	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/notify"
	"github.com/goldleaf/storefront/internal/storeapi"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/internal/whatsapp"
	"go.uber.org/zap"
)

var version = "dev"

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("version", false, "show version")
	conffile = flag.String("c", "", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	migrate  = flag.Bool("migrate", false, "run schema migration, then exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version)
		return
	}
	if *h {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	a := app.NewApplication(cfg)
	a.Init(cfg)
	defer a.Release()

	switch {
	case *initdb:
		a.InitDb()
		zap.S().Info("database initialized")
		return
	case *migrate:
		// Init already migrated
		zap.S().Info("database migrated")
		return
	}

	var wa *whatsapp.Service
	if cfg.WhatsApp.Enabled {
		wa, err = whatsapp.Init(a)
		if err != nil {
			zap.S().Errorf("whatsapp init failed: %v", err)
		} else {
			// notifications prefer WhatsApp; login codes follow otp.channel
			a.SetTextSender(notify.FallbackSender{wa, a.SMS()})
		}
	}

	storeapi.Init()
	adminapi.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.StartBackgroundJobs(ctx)

	srv := webserver.NewServer(a)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		zap.S().Info("shutting down")
	case err := <-errCh:
		if err != nil {
			zap.S().Error(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorf("webserver shutdown: %v", err)
	}
	if wa != nil {
		wa.Stop()
	}
}
