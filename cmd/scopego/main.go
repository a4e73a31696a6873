package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/ScopeGo/internal/config"
	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/hw/camera"
	"github.com/cjeanneret/ScopeGo/internal/hw/gpio"
	"github.com/cjeanneret/ScopeGo/internal/hw/motor"
	"github.com/cjeanneret/ScopeGo/internal/hw/stepper"
	"github.com/cjeanneret/ScopeGo/internal/logic/calibration"
	"github.com/cjeanneret/ScopeGo/internal/logic/guidance"
	"github.com/cjeanneret/ScopeGo/internal/logic/motion"
	"github.com/cjeanneret/ScopeGo/internal/telemetry"
	"github.com/cjeanneret/ScopeGo/internal/vision"
	"github.com/cjeanneret/ScopeGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{}
	flag.Var(webPort, "web", "override web.port from the config file")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if p := webPort.port(); p > 0 {
		cfg.Web.Port = p
	}

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Opening motor channel")
	mnt, err := openMount(cfg)
	if err != nil {
		log.Fatalf("init motor failed: %v", err)
	}
	defer mnt.close()

	debug.Step(2, "Registering cameras")
	cameras := newRegistry(cfg)
	debug.Value("Cameras", cameras.Names())

	debug.Step(3, "Wiring telemetry")
	sink := telemetry.NewMulti(broadcaster)
	if cfg.MQTT.Broker != "" {
		m, err := telemetry.DialMQTT(telemetry.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			// Guidance works without a broker.
			debug.Warn("MQTT disabled: %v", err)
		} else {
			sink.Add(m)
			defer m.Close()
		}
	}

	debug.Step(4, "Creating guidance and calibration controllers")
	source := camera.DefaultSource()
	guide := guidance.New(source, vision.StarDetector{}, mnt.ch, sink)
	defer guide.Close()
	calib := calibration.New(source, mnt.ch,
		calibration.WithSettle(cfg.SettleTime()),
		calibration.WithSink(sink),
	)

	srv, err := web.NewServer(fmt.Sprintf(":%d", cfg.Web.Port), web.Deps{
		Broadcaster: broadcaster,
		Motor:       mnt.ch,
		MotorReader: mnt.reader,
		Guide:       guide,
		Calibrator:  calib,
		Cameras:     cameras,
		Defaults:    guideDefaults(cfg),
		DebugDir:    cfg.Calibration.DebugDir,
	})
	if err != nil {
		log.Fatalf("web server: %v", err)
	}
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("web server: %v", err)
	}
	debug.Info("Shutting down")
}

// mount is the motor channel plus whatever must be released on exit.
type mount struct {
	ch     motor.Channel
	reader motor.Reader
	close  func()
}

// openMount selects the serial link or GPIO direct drive. A serial port that
// cannot be opened is not fatal: motor commands then answer "not open".
func openMount(cfg *config.Config) (*mount, error) {
	if !cfg.DirectDrive.Enabled {
		debug.Value("Serial port", cfg.Serial.Port)
		s, err := motor.OpenSerial(motor.SerialConfig{
			Port:        cfg.Serial.Port,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.SerialReadTimeout(),
		})
		if err != nil {
			debug.Warn("serial link unavailable: %v", err)
			u := motor.Unavailable{Err: err}
			return &mount{ch: u, reader: u, close: func() {}}, nil
		}
		return &mount{ch: s, reader: s, close: func() {
			if err := s.Close(); err != nil {
				log.Printf("closing serial port failed: %v", err)
			}
		}}, nil
	}

	dd := cfg.DirectDrive
	debug.Value("Mock GPIO", dd.MockGPIO)
	g, err := gpio.NewDriver(dd.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	pan := stepper.NewStepper(g, stepperConfig("pan", dd.PanStepper, cfg))
	debug.PrintStruct("Pan stepper config", dd.PanStepper)
	tilt := stepper.NewStepper(g, stepperConfig("tilt", dd.TiltStepper, cfg))
	debug.PrintStruct("Tilt stepper config", dd.TiltStepper)

	ctrl := motion.NewController(pan, tilt)
	direct := motor.NewDirect(motion.NewInterpreter(ctrl))
	return &mount{ch: direct, reader: direct, close: func() {
		ctrl.DisableMotors()
		if err := g.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}}, nil
}

func stepperConfig(name string, s config.StepperConfig, cfg *config.Config) stepper.Config {
	return stepper.Config{
		Name:          name,
		StepPin:       s.StepPin,
		DirPin:        s.DirPin,
		EnablePin:     s.EnablePin,
		StepsPerRev:   s.StepsPerRev,
		Microstepping: s.Microstepping,
		StepDelay:     cfg.StepDelay(),
	}
}

func newRegistry(cfg *config.Config) *camera.Registry {
	devs := make([]camera.Device, 0, len(cfg.Cameras))
	for _, c := range cfg.Cameras {
		devs = append(devs, camera.FromConfig(c))
	}
	return camera.NewRegistry(devs...)
}

// guideDefaults takes the guide form defaults from config; the first camera is the default one.
func guideDefaults(cfg *config.Config) web.GuideDefaults {
	d := web.GuideDefaults{
		IntervalS:    cfg.Guidance.IntervalS,
		ThresholdPct: cfg.GuideThreshold(),
		StepsCmd:     cfg.Guidance.StepsCmd,
		SpeedCmd:     cfg.Guidance.SpeedCmd,
	}
	if len(cfg.Cameras) > 0 {
		d.Camera = cfg.Cameras[0].Name
	}
	return d
}

// webPortFlag implements flag.Value for -web: 0 = use config, -web 8980 → 8980.
type webPortFlag struct {
	val int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
