// Command mysqlcdc starts the connector's MySQL session layer and exposes
// its introspection operations over HTTP for operational checks:
//
//	GET /healthz                        connection liveness and capability class
//	GET /introspect/gtid                executed GTID set
//	GET /introspect/privileges/{grant}  privilege check for the connecting user
//	GET /introspect/variables           full system-variable snapshot
//	GET /introspect/variables/charset   charset/collation variables and SET statement
//
// Run with:
//
//	mysqlcdc -config connector.yaml -listen :8080
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/datakite/mysqlcdc/internal/config"
	"github.com/datakite/mysqlcdc/internal/database/mysql"
	"github.com/datakite/mysqlcdc/internal/logger"
)

func main() {
	configPath := flag.String("config", "connector.yaml", "path to the connector configuration file")
	listenAddr := flag.String("listen", ":8080", "address for the operational HTTP endpoint")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log := logger.New(&logger.Config{Level: *logLevel, Format: "json", Output: os.Stdout})
	logger.SetGlobal(log)

	cfg, err := config.FromYAMLFile(*configPath)
	if err != nil {
		log.ErrorWith("failed to load configuration", err, map[string]interface{}{"path": *configPath})
		os.Exit(1)
	}

	session, err := mysql.NewConnectionContext(cfg, mysql.WithLogger(log))
	if err != nil {
		log.ErrorWith("invalid connector configuration", err, nil)
		os.Exit(1)
	}

	if err := session.Start(); err != nil {
		log.ErrorWith("failed to start connection context", err, nil)
		os.Exit(1)
	}
	defer session.Shutdown()

	log.With().
		Str("host", session.Hostname()).
		Int("port", session.Port()).
		Str("ssl_mode", session.SSLMode().String()).
		Logger().
		Info("connection context started")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handleHealth(session))
	r.Get("/introspect/gtid", handleGtidSet(session))
	r.Get("/introspect/privileges/{grant}", handlePrivileges(session))
	r.Get("/introspect/variables", handleVariables(session))
	r.Get("/introspect/variables/charset", handleCharsetVariables(session))

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("operational endpoint listening on %s", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorWith("http server failed", err, nil)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
