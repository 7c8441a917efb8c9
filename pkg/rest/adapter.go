package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/triwire/triwire/pkg/log"
	"github.com/triwire/triwire/pkg/server"
)

// Config configures the REST adapter.
type Config struct {
	Addr   string
	Logger log.Logger
}

// Adapter returns a protocol factory serving the contract's routes over
// HTTP. A bind failure is fatal to this adapter's startup only.
func Adapter(conf Config) server.Factory {
	return func(shared *server.Shared) (server.Task, error) {
		router := NewRouter(shared, conf.Logger)

		return func(ctx context.Context) error {
			ln, err := net.Listen("tcp", conf.Addr)
			if err != nil {
				return fmt.Errorf("rest: listen %s: %w", conf.Addr, err)
			}
			if conf.Logger != nil {
				conf.Logger.Info("rest server listening on http://" + ln.Addr().String())
			}

			srv := &http.Server{
				Handler: router,
				BaseContext: func(net.Listener) context.Context {
					return ctx
				},
			}
			go func() {
				<-ctx.Done()
				// Abrupt close: in-flight requests are not drained.
				srv.Close()
			}()

			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, nil
	}
}
