package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"deye-monitor/config"
	"deye-monitor/internal/api"
	"deye-monitor/internal/battery"
	"deye-monitor/internal/inverter"
	"deye-monitor/internal/link"
	"deye-monitor/internal/metrics"
	"deye-monitor/internal/monitor"
	"deye-monitor/internal/mqtt"
	"deye-monitor/internal/notify"
	"deye-monitor/internal/outage"
	"deye-monitor/internal/poller"
	"deye-monitor/internal/registers"
	"deye-monitor/internal/stats"
	"deye-monitor/internal/storage"
	"deye-monitor/internal/weather"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deye-monitor",
		Short: "Deye hybrid inverter monitor",
		Long:  "Monitors a Deye/Sunsynk hybrid inverter over the Solarman logger protocol",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(detectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLink(cfg *config.Config) (*link.Link, error) {
	switch cfg.Inverter.Transport {
	case "", "solarman":
		return link.New(link.NewSolarman(
			cfg.Inverter.IP,
			cfg.Inverter.Port,
			cfg.Inverter.Serial,
			cfg.Inverter.Timeout,
		)), nil
	case "modbus-tcp":
		return link.New(link.NewModbusTCP(
			cfg.Inverter.IP,
			cfg.Inverter.Port,
			cfg.Inverter.SlaveID,
			cfg.Inverter.Timeout,
		)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Inverter.Transport)
	}
}

// resolveCapabilities applies config overrides over auto-detection. A fully
// specified config skips the probe entirely.
func resolveCapabilities(cfg *config.Config, l *link.Link) inverter.Capabilities {
	fullyConfigured := cfg.Inverter.Family != "" &&
		cfg.Inverter.HasBattery != nil &&
		cfg.Inverter.HasGenerator != nil &&
		cfg.Inverter.PVStrings > 0

	var caps inverter.Capabilities
	if fullyConfigured {
		caps = inverter.DefaultCapabilities()
	} else {
		caps = inverter.Detect(l)
	}

	if cfg.Inverter.Family != "" {
		family, err := registers.ParseFamily(cfg.Inverter.Family)
		if err != nil {
			logrus.Warnf("ignoring invalid family %q: %v", cfg.Inverter.Family, err)
		} else if family == registers.FamilyThreePhase {
			caps.Phases = 3
		} else {
			caps.Phases = 1
		}
	}
	if cfg.Inverter.HasBattery != nil {
		caps.HasBattery = *cfg.Inverter.HasBattery
	}
	if cfg.Inverter.HasGenerator != nil {
		caps.HasGenerator = *cfg.Inverter.HasGenerator
	}
	if cfg.Inverter.PVStrings > 0 {
		caps.PVStrings = cfg.Inverter.PVStrings
	}
	return caps
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring service",
		Long:  "Start the poller, notification monitor, API server, and publishers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			l, err := newLink(cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			caps := resolveCapabilities(cfg, l)
			logrus.Infof("capabilities: %d-phase, battery=%v, pv_strings=%d, generator=%v",
				caps.Phases, caps.HasBattery, caps.PVStrings, caps.HasGenerator)

			regs := registers.ForFamily(caps.Family())
			reader := inverter.NewReader(l, caps)

			sampler := battery.NewSampler(l, regs, cfg.Battery.SampleInterval, cfg.Battery.BufferSize)
			if !caps.HasBattery {
				sampler.Disable()
			}
			sampler.Start()
			defer sampler.Stop()

			// Outage schedule
			var schedule *outage.Poller
			provider, err := outage.NewProvider(outage.ProviderConfig{
				Name:    cfg.Outage.Provider,
				Group:   cfg.Outage.Group,
				Windows: outageWindows(cfg),
			})
			if err != nil {
				return fmt.Errorf("outage provider: %w", err)
			}
			if provider != nil {
				schedule = outage.NewPoller(provider, cfg.Outage.Interval)
				schedule.Start()
				defer schedule.Stop()
			}

			events := outage.NewEventLog(cfg.Outage.EventsPath)

			// Derived stats
			phases := stats.NewPhaseRecorder(cfg.Stats.PhaseStatsPath, cfg.Stats.PhaseHistoryPath)
			gridLog := stats.NewGridImportLog(cfg.Stats.GridImportPath)
			var generator *stats.GeneratorRecorder
			if caps.HasGenerator {
				generator = stats.NewGeneratorRecorder(cfg.Stats.GeneratorPath)
			}

			// Snapshot poller
			pol := poller.New(poller.Config{
				Reader:    reader,
				Smoothed:  sampler,
				Interval:  cfg.Poller.Interval,
				CachePath: cfg.Poller.CachePath,
				MaxAge:    cfg.Poller.CacheAge,
			})
			pol.OnSnapshot(func(snap inverter.Snapshot) {
				if snap.Err != "" {
					return
				}
				if caps.Phases == 3 {
					phases.Record(snap.LoadL1, snap.LoadL2, snap.LoadL3)
				}
				gridLog.Record(snap.DailyGridImport)
				if generator != nil {
					generator.Record(snap.GeneratorPower)
				}
			})

			// Database
			var db *storage.Database
			if cfg.Database.Enabled {
				db, err = storage.NewDatabase(cfg.Database.Path)
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer db.Close()
				logrus.Infof("database opened at %s", cfg.Database.Path)

				pol.OnSnapshot(func(snap inverter.Snapshot) {
					if snap.Err != "" {
						return
					}
					if err := db.SaveReading(&snap); err != nil {
						logrus.Warnf("save reading: %v", err)
					}
				})
			}

			// MQTT publisher
			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				DeviceID:    cfg.MQTT.DeviceID,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				logrus.Warnf("MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				publisher.PublishHomeAssistantDiscovery()
				defer publisher.Close()
				pol.OnSnapshot(func(snap inverter.Snapshot) {
					if err := publisher.Publish(&snap); err != nil {
						logrus.Warnf("mqtt publish: %v", err)
					}
				})
			}

			// Weather
			var weatherPoller *weather.Poller
			if cfg.Weather.Enabled {
				weatherPoller = weather.NewPoller(
					weather.NewOpenMeteoClient(cfg.Weather.Latitude, cfg.Weather.Longitude),
					cfg.Weather.Interval,
				)
			}

			// Notification monitor
			mon := monitor.New(monitor.Config{
				Reader:      reader,
				Smoothed:    sampler,
				Schedule:    schedule,
				Events:      events,
				CapacityKWh: cfg.Battery.CapacityKWh,
				Interval:    cfg.Monitor.Interval,
				StatePath:   cfg.Monitor.StatePath,
			})

			var notifier monitor.Notifier = notify.LogNotifier{}
			var telegram *notify.Telegram
			if cfg.Telegram.Enabled {
				tgCfg := notify.TelegramConfig{
					Token:       cfg.Telegram.Token,
					ChatIDs:     cfg.Telegram.ChatIDs,
					Cursor:      mon,
					Snapshots:   pol,
					Schedule:    schedule,
					GridLog:     gridLog,
					Generator:   generator,
					HasBattery:  caps.HasBattery,
					CapacityKWh: cfg.Battery.CapacityKWh,
				}
				if weatherPoller != nil {
					tgCfg.Weather = weatherPoller
				}
				telegram, err = notify.NewTelegram(tgCfg)
				if err != nil {
					logrus.Warnf("telegram disabled: %v", err)
				} else {
					notifier = telegram
				}
			}
			mon.SetNotifier(notifier)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go pol.Start(ctx)
			go mon.Start(ctx)
			if telegram != nil {
				go telegram.Run(ctx)
			}
			if weatherPoller != nil {
				go weatherPoller.Start(ctx)
			}
			if db != nil && cfg.Database.Retention > 0 {
				go func() {
					ticker := time.NewTicker(24 * time.Hour)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							if err := db.CleanOldReadings(cfg.Database.Retention); err != nil {
								logrus.Warnf("clean old readings: %v", err)
							}
						}
					}
				}()
			}

			// API server
			if cfg.API.Enabled {
				registry := prometheus.NewRegistry()
				registry.MustRegister(metrics.NewCollector(pol))

				server := api.NewServer(api.ServerConfig{
					Port:                      cfg.API.Port,
					Poller:                    pol,
					Caps:                      caps,
					Schedule:                  schedule,
					Events:                    events,
					Phases:                    phases,
					Generator:                 generator,
					Weather:                   weatherPoller,
					Database:                  db,
					GeneratorFuelLPerHour:     cfg.Generator.FuelLPerHour,
					GeneratorOilIntervalHours: cfg.Generator.OilIntervalHours,
					BatteryCapacityKWh:        cfg.Battery.CapacityKWh,
					MetricsRegistry:           registry,
				})
				go func() {
					if err := server.Start(); err != nil {
						logrus.Errorf("API server error: %v", err)
					}
				}()
				defer server.Stop(context.Background())
			}

			logrus.Info("Deye Monitor started. Press Ctrl+C to stop.")

			<-sigChan
			logrus.Info("Shutting down...")
			cancel()

			return nil
		},
	}
}

func outageWindows(cfg *config.Config) []outage.Window {
	windows := make([]outage.Window, 0, len(cfg.Outage.Windows))
	for _, w := range cfg.Outage.Windows {
		windows = append(windows, outage.Window{
			StartHour: w.StartHour,
			StartMin:  w.StartMin,
			EndHour:   w.EndHour,
			EndMin:    w.EndMin,
		})
	}
	return windows
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read a snapshot once from the inverter",
		Long:  "Connect to the inverter, run one full register cycle, and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			l, err := newLink(cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			caps := resolveCapabilities(cfg, l)
			reader := inverter.NewReader(l, caps)

			snap := reader.ReadSnapshot(nil)
			if snap.Err != "" {
				return fmt.Errorf("read failed: %s", snap.Err)
			}

			output, _ := json.MarshalIndent(snap, "", "  ")
			fmt.Println(string(output))
			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connection to the inverter",
		Long:  "Verify the logger connection by reading one register",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Printf("Testing connection to %s:%d...\n", cfg.Inverter.IP, cfg.Inverter.Port)

			l, err := newLink(cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			regs := registers.ForFamily(registers.FamilyThreePhase)
			err = l.Session(func(read link.ReadFunc) error {
				_, err := read(regs.BatteryVoltage)
				return err
			})
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}

			fmt.Println("Connection SUCCESS!")
			return nil
		},
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Auto-detect inverter capabilities",
		Long:  "Probe the inverter to determine phases, battery, PV strings, and generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			l, err := newLink(cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			caps := inverter.Detect(l)
			output, _ := json.MarshalIndent(caps, "", "  ")
			fmt.Println(string(output))
			return nil
		},
	}
}
