package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/triwire/triwire/pkg/log"
	"github.com/triwire/triwire/pkg/server"
)

// Config configures the JSON-RPC adapter.
type Config struct {
	Addr   string
	Path   string // endpoint path, default "/"
	Logger log.Logger
}

// Adapter returns a protocol factory serving the contract's methods as
// JSON-RPC 2.0 over HTTP. A bind failure is fatal to this adapter's
// startup only.
func Adapter(conf Config) server.Factory {
	if conf.Path == "" {
		conf.Path = "/"
	}
	return func(shared *server.Shared) (server.Task, error) {
		router := chi.NewRouter()
		router.Use(middleware.Recoverer)
		router.Handle(conf.Path, NewHandler(shared, conf.Logger))

		return func(ctx context.Context) error {
			ln, err := net.Listen("tcp", conf.Addr)
			if err != nil {
				return fmt.Errorf("jsonrpc: listen %s: %w", conf.Addr, err)
			}
			if conf.Logger != nil {
				conf.Logger.Info("json-rpc server listening on http://" + ln.Addr().String())
			}

			srv := &http.Server{Handler: router}
			go func() {
				<-ctx.Done()
				srv.Close()
			}()

			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, nil
	}
}
