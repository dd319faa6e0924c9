package main

import (
	"context"

	"git.sr.ht/~aondrejcak/payrecon/alert"
	"git.sr.ht/~aondrejcak/payrecon/gateway"
	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"git.sr.ht/~aondrejcak/payrecon/ledger"
	"git.sr.ht/~aondrejcak/payrecon/lock"
	"git.sr.ht/~aondrejcak/payrecon/reconcile"
	"github.com/rs/zerolog/log"
)

type app struct {
	art     *kernel.AppRuntime
	service *reconcile.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// wire builds the service from configuration. Kafka and Redis are optional:
// without brokers repairs are only logged, without Redis runs are unguarded.
func wire(ctx context.Context) (*app, error) {
	art := kernel.LoadConfig()
	art.SetupLogging()

	a := &app{art: art}

	cleanupOtel, err := art.SetupOtel(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cleanupOtel)

	if err := art.PrepareDatabase(); err != nil {
		a.Close()
		return nil, err
	}
	if sqlDB, err := art.DatabaseClient.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}

	store := ledger.NewStore(art.DatabaseClient)
	opts := []reconcile.ServiceOption{reconcile.WithDiagnostic(art.Diagnostic)}

	if len(art.KafkaBrokers) > 0 {
		kafka, err := alert.NewKafkaAlerter(art.KafkaBrokers, art.KafkaAlertTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = kafka.Close() })
		opts = append(opts, reconcile.WithAlerter(kafka))
		log.Info().Strs("brokers", art.KafkaBrokers).Str("topic", art.KafkaAlertTopic).Msg("repair alerts go to kafka")
	} else {
		opts = append(opts, reconcile.WithAlerter(alert.LogAlerter{}))
	}

	if art.RedisAddr != "" {
		guard := lock.NewRedisGuardFromRuntime(art)
		if err := guard.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", art.RedisAddr).Msg("redis not reachable, runs will fail open until it is")
		}
		a.closers = append(a.closers, func() { _ = guard.Close() })
		opts = append(opts, reconcile.WithRunGuard(guard))
	}

	a.service = reconcile.NewService(
		store,
		store,
		gateway.NewClientFromRuntime(art),
		reconcile.ServiceConfigFromRuntime(art),
		opts...,
	)
	return a, nil
}
