// Command dcmx-node wires a mesh node's identity, configuration, and a UDP
// stand-in radio into a running internal/node.Node. It is a minimal
// entrypoint, not a production daemon: content storage, royalty accounting,
// and any HTTP surface remain the job of an external collaborator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/config"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/identity"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/node"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/transport/udpradio"
)

var (
	version = "master"
	gitCommit = "none"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to the node's TOML config file",
	Value:   "dcmx-node.toml",
}

var peersFlag = &cli.StringFlag{
	Name:  "peers",
	Usage: "path to the TOML static peer address table",
	Value: "peers.toml",
}

var listenFlag = &cli.StringFlag{
	Name:  "listen",
	Usage: "UDP address the stand-in radio binds to",
	Value: "0.0.0.0:7700",
}

var latFlag = &cli.Float64Flag{
	Name:  "lat",
	Usage: "node latitude, used only by a fresh keygen",
}

var lonFlag = &cli.Float64Flag{
	Name:  "lon",
	Usage: "node longitude, used only by a fresh keygen",
}

var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "log at debug level",
}

func main() {
	app := &cli.App{
		Name:    "dcmx-node",
		Version: version,
		Usage:   "run a DCMX mesh node over a narrowband radio adapter",
		Flags:   []cli.Flag{verboseFlag},
		Commands: []*cli.Command{
			keygenCmd,
			runCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dcmx-node: %v\n", err)
		os.Exit(1)
	}
}

func loggerFrom(c *cli.Context) log.Logger {
	level := log.InfoLevel
	if c.Bool("verbose") {
		level = log.DebugLevel
	}
	return log.New(nil, level, false)
}

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "generate a fresh node identity and write it to --config",
	Flags: []cli.Flag{configFlag, latFlag, lonFlag},
	Action: func(c *cli.Context) error {
		id, err := identity.New(c.Float64(latFlag.Name), c.Float64(lonFlag.Name))
		if err != nil {
			return fmt.Errorf("generating identity: %w", err)
		}

		fc := &config.FileConfig{
			SecretHex:             id.SecretHex(),
			Lat:                   id.Lat,
			Lon:                   id.Lon,
			BeaconIntervalSeconds: 30,
			MaxTTL:                8,
			RetryTimeoutSeconds:   5,
			BackoffFactor:         2.0,
			MaxRetries:            4,
			QuorumSize:            4,
			ApprovalThreshold:     3,
			ProofDifficultyBits:   20,
			RingSize:              10,
		}
		if err := config.SaveFile(c.String(configFlag.Name), fc); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("generated node %s at %s\n", id.ID, c.String(configFlag.Name))
		return nil
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start the node, blocking until interrupted",
	Flags: []cli.Flag{configFlag, peersFlag, listenFlag},
	Action: func(c *cli.Context) error {
		logger := loggerFrom(c)

		fc, err := config.LoadFile(c.String(configFlag.Name))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		secret, err := identity.ParseSecretHex(fc.SecretHex)
		if err != nil {
			return fmt.Errorf("parsing node secret: %w", err)
		}
		id := identity.FromSecret(secret, fc.Lat, fc.Lon)

		opts := append(fc.ToOptions(), config.WithLogger(logger))
		cfg := config.NewConfig(opts...)

		radio, err := udpradio.Listen(c.String(listenFlag.Name), logger)
		if err != nil {
			return fmt.Errorf("opening radio: %w", err)
		}
		defer radio.Close()

		if peersPath := c.String(peersFlag.Name); peersPath != "" {
			if err := udpradio.LoadPeers(radio, peersPath); err != nil {
				logger.Warnw("loading peer table failed, starting with no known peers", "err", err)
			}
		}

		n := node.New(id, cfg, radio)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		n.Start(ctx)
		defer n.Stop()

		logger.Infow("node started", "node_id", string(id.ID), "listen", c.String(listenFlag.Name))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Infow("shutting down")
		return nil
	},
}
