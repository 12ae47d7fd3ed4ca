// Push service: browser subscriptions in Redis, Web Push delivery signed with VAPID keys.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatterbox/internal/config"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/push"
	"github.com/chatterbox/internal/startup"
)

func main() {
	genVAPID := flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	memory := flag.Bool("memory", false, "keep subscriptions in memory instead of Redis")
	flag.Parse()

	logger.SetPrefix("push")
	defer logger.Flush(2 * time.Second)

	if *genVAPID {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("generate VAPID: %v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", pub)
		logger.Infof("VAPID_PRIVATE_KEY=%s", priv)
		return
	}

	logger.Info("starting push service")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	keys := &push.VAPIDKeys{PublicKey: cfg.Push.VAPIDPublicKey, PrivateKey: cfg.Push.VAPIDPrivateKey}
	if keys.PublicKey == "" || keys.PrivateKey == "" {
		keys, err = push.EnsureVAPIDKeys(cfg.Push.VAPIDKeysFile)
		if err != nil {
			logger.Errorf("VAPID keys unavailable, delivery disabled: %v", err)
			keys = nil
		}
	}
	var sender push.Sender
	publicKey := ""
	if keys != nil {
		sender = push.NewWebPushSender(keys, cfg.Push.Subscriber)
		publicKey = keys.PublicKey
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var subs push.SubscriptionStore
	if *memory || cfg.Redis.URL == "" {
		logger.Info("subscriptions kept in memory")
		subs = push.NewMemorySubscriptions()
	} else {
		rc, err := startup.ConnectRedisWithRetry(ctx, cfg.Redis.URL, 2*time.Minute, "push: ")
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		defer rc.Close()
		logger.Info("redis connected")
		subs = push.NewRedisSubscriptions(rc.Redis())
	}

	srv := &http.Server{
		Addr:         cfg.Push.ServerAddr,
		Handler:      push.NewServer(subs, sender, publicKey, cfg.Push.InternalSecret).Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Infof("push server listening on %s", cfg.Push.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("push server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("push server stopped")
}
