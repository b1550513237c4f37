package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/collabsheet/sheet-service/config"
)

const ServiceName = "sheet-service"

// Run is the process entrypoint behind main.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Collaborative spreadsheet server",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:      "server",
		Aliases:   []string{"s"},
		Usage:     "Run the spreadsheet server",
		ArgsUsage: "[port]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() > 1 {
				printUsage(c.App.Name)
				return nil
			}

			port, ok := parsePort(c.Args())
			if !ok {
				fmt.Println("Invalid port number. Port must be between 2112 and 2120.")
				return cli.Exit("", 1)
			}

			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			if c.Args().Len() == 1 {
				cfg.Listen.Port = port
			} else if cfg.Listen.Port == 0 {
				cfg.Listen.Port = config.DefaultPort
			}

			app := NewApp(cfg)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			fmt.Println("The server can be stopped with the STOP command.")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			stdinStop := make(chan struct{})
			go watchStdin(stdinStop)

			select {
			case <-stop:
			case <-stdinStop:
			}

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

// parsePort validates the optional positional port argument. No argument
// selects the default port; an explicit value must fall inside the
// acceptable range.
func parsePort(args cli.Args) (int, bool) {
	if args.Len() == 0 {
		return config.DefaultPort, true
	}
	port, err := strconv.Atoi(args.Get(0))
	if err != nil || port < config.MinPort || port > config.MaxPort {
		return 0, false
	}
	return port, true
}

func printUsage(name string) {
	fmt.Printf("Usage: %s server <port>\n", name)
	fmt.Println("\t<port>\tA valid port number used for accepting connections.")
	fmt.Println("\t      \t  Valid ports are 2000 and 2112 to 2120.")
}

// watchStdin closes done when the operator types STOP.
func watchStdin(done chan<- struct{}) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if sc.Text() == "STOP" {
			close(done)
			return
		}
	}
}
