// Command greenhouse runs the greenhouse controller. Once a minute it drives
// the pumps and fans from the sensors and logs the tick to a daily CSV file.
package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/greenhouse/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type options struct {
	configPath string
	board      string
	csvDir     string
	broker     string
	httpAddr   string
	tachWindow int
	ecScale    float64
	interval   time.Duration
	debug      bool
	syslog     bool
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:          "greenhouse",
		Short:        "Greenhouse irrigation and ventilation controller",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.debug, opts.syslog)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	def := config.Default()
	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&opts.board, "board", def.Board, fmt.Sprintf("board layout %v", config.BoardNames()))
	f.BoolVar(&opts.debug, "debug", false, "log every tick")
	f.BoolVar(&opts.syslog, "syslog", false, "also log to syslog")

	rf := root.Flags()
	rf.StringVar(&opts.csvDir, "csv-dir", "", "CSV log directory (default: cwd on a terminal, else home)")
	rf.StringVar(&opts.broker, "broker", def.Broker, "MQTT broker address (empty to disable)")
	rf.StringVar(&opts.httpAddr, "http", def.HTTPAddr, "HTTP status address (empty to disable)")
	rf.IntVar(&opts.tachWindow, "tach-window", def.TachWindow, "tach pulses per RPM measurement")
	rf.Float64Var(&opts.ecScale, "ec-scale", def.Sensors.ECScale, "divisor from raw ADC to conductivity")
	rf.DurationVar(&opts.interval, "interval", def.Interval, "control tick period")

	root.AddCommand(newStateCmd(opts), newVersionCmd())
	return root
}

// loadConfig reads the config file and applies the flags the user set
// explicitly on top of it.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	changed := func(name string) bool {
		fl := cmd.Flag(name)
		return fl != nil && fl.Changed
	}
	if changed("board") {
		cfg.Board = opts.board
	}
	if changed("csv-dir") {
		cfg.CSVDir = opts.csvDir
	}
	if changed("broker") {
		cfg.Broker = opts.broker
	}
	if changed("http") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if changed("tach-window") {
		cfg.TachWindow = opts.tachWindow
	}
	if changed("ec-scale") {
		cfg.Sensors.ECScale = opts.ecScale
	}
	if changed("interval") {
		cfg.Interval = opts.interval
	}

	if cfg.CSVDir == "" {
		if cfg.CSVDir, err = config.DefaultCSVDir(); err != nil {
			return cfg, fmt.Errorf("csv dir: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the water level sensors and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			levels, err := readWaterLevels(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatLevels(levels))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "greenhouse %s\n", version)
			return nil
		},
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)
