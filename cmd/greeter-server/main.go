// Command greeter-server exposes one Greeter service simultaneously over
// stream-RPC, REST, and JSON-RPC. All three listeners dispatch into the
// same service instance, so behavior is identical regardless of protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/fatih/color"

	"github.com/triwire/triwire/pkg/contract"
	"github.com/triwire/triwire/pkg/jsonrpc"
	"github.com/triwire/triwire/pkg/log"
	"github.com/triwire/triwire/pkg/rest"
	"github.com/triwire/triwire/pkg/server"
	"github.com/triwire/triwire/pkg/streamrpc"
	"github.com/triwire/triwire/pkg/streamrpc/tcp"
)

type config struct {
	StreamAddr  string `env:"STREAM_ADDR" envDefault:"127.0.0.1:9001"`
	RESTAddr    string `env:"REST_ADDR" envDefault:"127.0.0.1:9002"`
	JSONRPCAddr string `env:"JSONRPC_ADDR" envDefault:"127.0.0.1:9003"`
}

// Settings is a user's display configuration.
type Settings struct {
	Brightness uint32 `json:"brightness"`
	Theme      string `json:"theme"`
}

// Greeter is the example service shared by all three protocol servers.
type Greeter struct {
	name     string
	settings map[uint64]Settings
}

func NewGreeter(name string) *Greeter {
	return &Greeter{
		name:     name,
		settings: make(map[uint64]Settings),
	}
}

func (g *Greeter) Greet(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("name cannot be empty")
	}
	return fmt.Sprintf("Hello, %s! My name is %s.", name, g.name), nil
}

func (g *Greeter) UpdateSettings(ctx context.Context, userID uint64, brightness uint32, theme string) (string, error) {
	if brightness > 100 {
		return "", fmt.Errorf("brightness %d is out of range", brightness)
	}
	g.settings[userID] = Settings{
		Brightness: brightness,
		Theme:      theme,
	}
	return fmt.Sprintf("Settings updated for user %d: theme is now %q at %d%% brightness.",
		userID, theme, brightness), nil
}

func newContract() *contract.Contract {
	c := contract.New()
	c.MustRegister(contract.Method{
		Name:   "greet",
		Params: []contract.Param{{Name: "name"}},
		Rest: &contract.Route{
			Verb: "GET",
			Path: "/greet/{name}",
		},
	})
	c.MustRegister(contract.Method{
		Name: "update_settings",
		Params: []contract.Param{
			{Name: "user_id"},
			{Name: "brightness"},
			{Name: "theme"},
		},
		Rest: &contract.Route{
			Verb: "POST",
			Path: "/users/{user_id}/settings",
			Body: []string{"brightness", "theme"},
		},
	})
	return c
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	logger := log.New("greeter-server")

	builder, err := server.NewBuilder(newContract(), NewGreeter("Chauncey"), server.WithLogger(logger))
	if err != nil {
		return err
	}

	runner, err := builder.
		AddProtocol(streamrpc.Adapter(streamrpc.ServerConfig{
			Transport: tcp.NewServerTransport(tcp.ServerTransportConfig{
				Addr:    cfg.StreamAddr,
				NoDelay: true,
			}),
			Logger: logger,
		})).
		AddProtocol(rest.Adapter(rest.Config{
			Addr:   cfg.RESTAddr,
			Logger: logger,
		})).
		AddProtocol(jsonrpc.Adapter(jsonrpc.Config{
			Addr:   cfg.JSONRPCAddr,
			Logger: logger,
		})).
		Build()
	if err != nil {
		return err
	}

	color.Green("Servers running: stream-rpc %s, rest %s, json-rpc %s. Press Ctrl+C to shut down.",
		cfg.StreamAddr, cfg.RESTAddr, cfg.JSONRPCAddr)

	return runner.Run(context.Background())
}

func main() {
	if err := run(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
