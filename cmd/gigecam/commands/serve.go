package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camctl/gigecam/internal/api"
	"github.com/camctl/gigecam/internal/config"
	"github.com/camctl/gigecam/internal/driver"
	"github.com/camctl/gigecam/internal/logger"
	"github.com/camctl/gigecam/internal/pvapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camera control server",
	Long: `Start the HTTP server and bring up every configured camera instance.

Each camera connects as soon as it is reachable and reconnects
automatically when it drops off the network and comes back.`,
	Example: `  # Start with the cameras from the config file
  gigecam serve

  # Start on a custom port with debug logging
  gigecam serve --port 9090 --log-level debug

  # Start against simulated cameras
  gigecam serve --simulate`,
	RunE: runServe,
}

var serveSimulate bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "use simulated cameras instead of real hardware")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if logLevel := viper.GetString("log_level"); logLevel != "" {
			configMgr.SetLogLevel(logLevel)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.GetConfigPath()).Msg("Configuration loaded")

	transport, cameras, err := buildTransport(cfg, serveSimulate)
	if err != nil {
		return err
	}

	registry := driver.NewRegistry(transport)
	for _, cc := range cameras {
		d, err := driver.New(registry, driver.Options{
			Name:          cc.Name,
			CameraID:      cc.ID,
			FrameBuffers:  cc.FrameBuffers,
			RetryCount:    cc.RetryCount,
			RetryInterval: cc.RetryInterval(),
		})
		if err != nil {
			return fmt.Errorf("failed to create camera %q: %w", cc.Name, err)
		}
		defer d.Close()
		for k, v := range cc.Metadata {
			d.AddMetadata(k, v)
		}
	}

	server := api.NewServer(registry, configMgr)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Int("cameras", len(cameras)).
		Bool("simulate", serveSimulate || cfg.Simulate).
		Msg("gigecam is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	return nil
}

// buildTransport assembles the camera transport. Only the simulated
// transport is compiled into this binary; a PvAPI cgo build would return
// the real one here.
func buildTransport(cfg *config.Config, simulate bool) (pvapi.Transport, []config.CameraConfig, error) {
	if !simulate && !cfg.Simulate {
		return nil, nil, fmt.Errorf("this build has no PvAPI hardware transport, run with --simulate")
	}

	sim := pvapi.NewSim()
	cameras := cfg.Cameras

	// With no cameras configured, fabricate one so the server is usable
	// out of the box.
	if len(cameras) == 0 {
		cameras = []config.CameraConfig{{Name: "sim1", ID: "1"}}
	}

	nextID := uint32(1)
	for _, cc := range cameras {
		id := nextID
		if v, err := strconv.ParseUint(cc.ID, 10, 32); err == nil {
			id = uint32(v)
		}
		sim.AddCamera(pvapi.NewSimCamera(id, cc.Name))
		nextID = id + 1
	}
	return sim, cameras, nil
}
