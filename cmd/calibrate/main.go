// Command calibrate runs one weight calibration from a JSON input file and
// prints the result. With -config it uses the configured stores, so
// -publish, -import and -history become available; with -remote it posts
// the input to a running API instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ConfluenceCal/internal/di"
	"ConfluenceCal/internal/domain/models"
	"ConfluenceCal/internal/domain/service"
	internalrepo "ConfluenceCal/internal/repository"
	"ConfluenceCal/internal/services/optimizer"
	"ConfluenceCal/internal/services/scoring"
	"ConfluenceCal/internal/usecase"
	pkgch "ConfluenceCal/pkg/clickhouse"
	"ConfluenceCal/pkg/config"
	xhttp "ConfluenceCal/pkg/http"
	applogger "ConfluenceCal/pkg/logger"
)

type options struct {
	in          string
	configPath  string
	publish     bool
	lr          float64
	iterations  int
	minTerminal int
	report      bool
	remote      string
	importOnly  bool
	history     string
	limit       int
	set         map[string]bool
}

func main() {
	var o options
	flag.StringVar(&o.in, "in", "-", "input JSON file, - for stdin")
	flag.StringVar(&o.configPath, "config", "", "config file; enables stores, publishing and import")
	flag.BoolVar(&o.publish, "publish", false, "publish the calibrated weights")
	flag.Float64Var(&o.lr, "lr", 0, "learning rate override")
	flag.IntVar(&o.iterations, "iterations", 0, "iteration budget override")
	flag.IntVar(&o.minTerminal, "min-terminal", 0, "minimum terminal signals required")
	flag.BoolVar(&o.report, "report", false, "print the full run report instead of {weights, score}")
	flag.StringVar(&o.remote, "remote", "", "base URL of a running calibration API")
	flag.BoolVar(&o.importOnly, "import", false, "store the input signals in ClickHouse and exit")
	flag.StringVar(&o.history, "history", "", "print recent published runs for a symbol and exit")
	flag.IntVar(&o.limit, "limit", 10, "number of runs printed by -history")
	flag.Parse()

	o.set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		log.Printf("calibrate: %v", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, out io.Writer) error {
	if o.history != "" {
		return history(ctx, o, out)
	}

	in, err := readInput(o.in)
	if err != nil {
		return err
	}
	if o.set["lr"] {
		in.LearningRate = &o.lr
	}
	if o.set["iterations"] {
		in.Iterations = &o.iterations
	}

	if o.remote != "" {
		rep, err := calibrateRemote(ctx, o.remote, in, o.publish)
		if err != nil {
			return err
		}
		return write(out, o.report, rep)
	}

	if o.configPath == "" {
		if o.publish || o.importOnly {
			return errors.New("-publish and -import need -config")
		}
		uc := usecase.NewCalibrationUseCase(scoring.New(), optimizer.DefaultConfig(), localSettings(o))
		rep, err := uc.Calibrate(ctx, in, false)
		if err != nil {
			return err
		}
		return write(out, o.report, rep)
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.importOnly {
		return importSignals(ctx, cfg, in, out)
	}

	uc, cleanup, err := configuredUseCase(cfg, o)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := uc.Calibrate(ctx, in, o.publish)
	if err != nil {
		return err
	}
	return write(out, o.report, rep)
}

func readInput(path string) (*models.CalibrationInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	var in models.CalibrationInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return &in, nil
}

func write(out io.Writer, full bool, rep *models.CalibrationReport) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if full {
		return enc.Encode(rep)
	}
	return enc.Encode(rep.Output())
}

func localSettings(o options) usecase.Settings {
	s := usecase.DefaultSettings()
	s.MinTerminalSignals = o.minTerminal
	return s
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	// stdout carries the result
	cfg.Logger.Output = "stderr"
	cfg.Logger.CollectErrors = false
	return cfg, nil
}

// configuredUseCase builds the use case from the same providers as the
// service. Nothing is scheduled or consumed.
func configuredUseCase(cfg *config.Config, o options) (service.Calibrator, func(), error) {
	optCfg, err := di.ProvideOptimizerConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	ch, err := di.ProvideClickHouseClient(cfg, l)
	if err != nil {
		return nil, nil, err
	}
	c, err := di.ProvideCache(cfg, l)
	if err != nil {
		closeCH(ch)
		return nil, nil, err
	}
	producer, err := di.ProvideKafkaProducer(cfg)
	if err != nil {
		closeCH(ch)
		_ = c.Close()
		return nil, nil, err
	}
	settings := di.ProvideSettings(cfg)
	if o.set["min-terminal"] {
		settings.MinTerminalSignals = o.minTerminal
	}

	uc := di.ProvideCalibrationUseCase(cfg, di.ProvideScorer(cfg), optCfg, settings, ch, c, producer, di.ProvideMetrics(), l)
	cleanup := func() {
		if producer != nil {
			if err := producer.Close(); err != nil {
				l.Warn("kafka producer close error", applogger.Error(err))
			}
		}
		_ = c.Close()
		closeCH(ch)
	}
	return uc, cleanup, nil
}

func closeCH(ch *pkgch.Client) {
	if ch != nil {
		_ = ch.Close()
	}
}

func importSignals(ctx context.Context, cfg *config.Config, in *models.CalibrationInput, out io.Writer) error {
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	ch, err := di.ProvideClickHouseClient(cfg, l)
	if err != nil {
		return err
	}
	if ch == nil {
		return errors.New("-import needs clickhouse.enabled")
	}
	defer closeCH(ch)

	store := internalrepo.NewCHSignalStore(ch)
	store.SetLogger(l)
	signals := models.ToSignals(in.Signals)
	if in.Symbol != "" {
		for i := range signals {
			if signals[i].Symbol == "" {
				signals[i].Symbol = in.Symbol
			}
		}
	}
	if err := store.StoreSignals(ctx, signals); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "imported %d signals\n", len(signals))
	return err
}

func history(ctx context.Context, o options, out io.Writer) error {
	if o.configPath == "" {
		return errors.New("-history needs -config")
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	ch, err := di.ProvideClickHouseClient(cfg, l)
	if err != nil {
		return err
	}
	if ch == nil {
		return errors.New("-history needs clickhouse.enabled")
	}
	defer closeCH(ch)

	runs, err := internalrepo.NewCHRunStore(ch).RecentRuns(ctx, o.history, o.limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}

func calibrateRemote(ctx context.Context, base string, in *models.CalibrationInput, publish bool) (*models.CalibrationReport, error) {
	client := xhttp.NewClient(xhttp.WithBaseURL(base), xhttp.WithTimeout(10*time.Minute))
	var rep models.CalibrationReport
	err := client.SendAndParseData(ctx, &xhttp.RequestOptions{
		Method:      http.MethodPost,
		URL:         "/api/calibrate",
		QueryParams: map[string][]string{"publish": {strconv.FormatBool(publish)}},
		Body:        in,
	}, &rep)
	if err != nil {
		return nil, fmt.Errorf("remote calibrate: %w", err)
	}
	return &rep, nil
}
