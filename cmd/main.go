package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"ecg"
	"ecg/Population"
	"ecg/Store"

	"github.com/spf13/cobra"
)

var (
	configPath string
	sampleRate float64
	workers    int
	dbPath     string
	jsonOutput bool
	traceDir   string
	serialPort string
	baudRate   int
	duration   time.Duration
	outPath    string
	listenAddr string
	synthCount int
	synthBPM   float64
	synthStart string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ecg",
		Short:        "ECG analytics pipeline",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ecg.toml", "TOML config file (missing file uses defaults)")
	rootCmd.PersistentFlags().Float64Var(&sampleRate, "rate", 0, "default sample rate in Hz when a recording carries none")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "number of records analyzed concurrently")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite store path")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newCompareCmd())
	rootCmd.AddCommand(newAcquireCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSynthCmd())
	return rootCmd
}

// loadConfig 读取配置文件，再用显式给出的命令行参数覆盖
func loadConfig(cmd *cobra.Command) (*ecg.Config, error) {
	cfg, err := ecg.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("rate") {
		cfg.SampleRate = sampleRate
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("port") {
		cfg.Acquisition.Port = serialPort
	}
	if flags.Changed("baud") {
		cfg.Acquisition.BaudRate = baudRate
	}
	if flags.Changed("duration") {
		cfg.Acquisition.Duration = duration
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore() (*Store.Store, error) {
	if dbPath == "" {
		return nil, nil
	}
	return Store.Open(dbPath)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file|dir>...",
		Short: "Analyze recordings (.csv, .txt, .wav)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sources, err := collectSources(args)
			if err != nil {
				return err
			}

			analyzer, err := ecg.NewAnalyzer(cfg)
			if err != nil {
				return err
			}
			if traceDir != "" {
				sink, err := ecg.NewCsvTraceSink(traceDir)
				if err != nil {
					return err
				}
				defer sink.Close()
				analyzer.SetTrace(sink)
			}

			ctx, stop := signalContext()
			defer stop()
			results := analyzer.AnalyzeBatch(ctx, sources)

			if err := persist(ctx, "analyze", ecg.Records(results)); err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print full records as JSON")
	cmd.Flags().StringVar(&traceDir, "trace", "", "directory for per-sample CSV traces")
	return cmd
}

// collectSources 把参数展开为数据源，目录展开为其中的记录文件
func collectSources(args []string) ([]ecg.Source, error) {
	var sources []ecg.Source
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			sources = append(sources, ecg.FileSource{Path: arg})
			continue
		}
		files, err := ecg.Glob(arg)
		if err != nil {
			return nil, err
		}
		sources = append(sources, files...)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no recordings found in %v", args)
	}
	return sources, nil
}

func persist(ctx context.Context, label string, records []ecg.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}
	st, err := openStore()
	if err != nil || st == nil {
		return err
	}
	defer st.Close()

	runID, err := st.BeginRun(ctx, label)
	if err != nil {
		return err
	}
	return st.SaveRecords(ctx, runID, records)
}

// resultView 是 BatchResult 的 JSON 形式 (error 接口本身无法序列化)
type resultView struct {
	ID     string              `json:"id"`
	Record *ecg.AnalysisRecord `json:"record,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func printResults(w io.Writer, results []ecg.BatchResult) error {
	if jsonOutput {
		views := make([]resultView, len(results))
		for i, r := range results {
			views[i] = resultView{ID: r.ID, Record: r.Record}
			if r.Err != nil {
				views[i].Error = r.Err.Error()
			}
		}
		return writeJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tHR\tSDNN\tRMSSD\tBEATS\tTREND\tSCORE\tLEVEL\tWARNINGS")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t-\t-\t%v\n", r.ID, r.Err)
			continue
		}
		rec := r.Record
		trend := "-"
		if rec.Trend != nil {
			trend = string(rec.Trend.Label)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%.1f\t%d\t%s\t%d\t%s\t%v\n",
			rec.ID, rec.RecordDate, rec.HeartRate.Mean, rec.HRV.SDNN, rec.HRV.RMSSD,
			rec.TotalBeats, trend, rec.Health.Score, rec.Health.Level, rec.Health.Warnings)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		fmt.Fprintf(w, "%d of %d recordings failed\n", failed, len(results))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [file|dir]...",
		Short: "Population report over recordings and/or the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			var records []ecg.AnalysisRecord
			if len(args) > 0 {
				sources, err := collectSources(args)
				if err != nil {
					return err
				}
				analyzer, err := ecg.NewAnalyzer(cfg)
				if err != nil {
					return err
				}
				records = ecg.Records(analyzer.AnalyzeBatch(ctx, sources))
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
				stored, err := st.LoadCorpus(ctx, false)
				if err != nil {
					return err
				}
				records = append(records, stored...)
			}
			if len(args) == 0 && st == nil {
				return fmt.Errorf("nothing to compare: give recordings or --db")
			}

			report := Population.Analyze(records, cfg.Population)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r Population.Report) error {
	fmt.Fprintf(w, "records: %d (%s .. %s)\n", r.TotalRecords, r.DateStart, r.DateEnd)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tHR\tSDNN\tRMSSD\tPNN50\tSCORE")
	for i := range r.Dates {
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t%d\n",
			r.Dates[i], r.MeanHR[i], r.SDNN[i], r.RMSSD[i], r.PNN50[i], r.HealthScores[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for flag, counts := range r.FlagCounts {
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Fprintf(w, "flag %q: %d records %v\n", flag, total, counts)
	}
	for _, a := range r.Anomalies {
		fmt.Fprintf(w, "anomaly %s (%s): hr=%.1f sdnn=%.1f score=%.3f\n", a.ID, a.Date, a.MeanHR, a.SDNN, a.Score)
	}
	if r.Forecast != nil {
		for i, v := range r.Forecast.Values {
			fmt.Fprintf(w, "forecast %s: %.1f\n", r.Forecast.Labels[i], v)
		}
	} else if r.ForecastNote != "" {
		fmt.Fprintf(w, "forecast: %s\n", r.ForecastNote)
	}
	return nil
}

func newAcquireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Record from a serial ECG front end and analyze it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			analyzer, err := ecg.NewAnalyzer(cfg)
			if err != nil {
				return err
			}

			src := ecg.NewSerialSource(cfg.Acquisition, cfg.SampleRate)
			if err := src.Open(); err != nil {
				return err
			}
			defer src.Close()

			ctx, stop := signalContext()
			defer stop()
			header, series, err := src.Load(ctx)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := saveRecording(outPath, header, series); err != nil {
					return err
				}
				log.Printf("[ACQUIRE] saved %d samples to %s", series.Len(), outPath)
			}

			rec, err := analyzer.Analyze(src.ID(), header, series)
			if err != nil {
				return err
			}
			if err := persist(ctx, "acquire", []ecg.AnalysisRecord{*rec}); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&serialPort, "port", "", "serial device, e.g. /dev/ttyUSB0")
	cmd.Flags().IntVar(&baudRate, "baud", 0, "baud rate")
	cmd.Flags().DurationVar(&duration, "duration", 0, "acquisition length")
	cmd.Flags().StringVar(&outPath, "out", "", "also save the raw recording (.csv or .wav)")
	return cmd
}

// saveRecording 按扩展名选择格式。WAV 不保存头信息
func saveRecording(path string, header ecg.Header, series ecg.SampleSeries) error {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return ecg.SaveWav(path, series)
	}
	return ecg.SaveCSV(path, header, series)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			analyzer, err := ecg.NewAnalyzer(cfg)
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			ctx, stop := signalContext()
			defer stop()
			return serve(ctx, listenAddr, newServer(analyzer, st))
		},
	}
	cmd.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address")
	return cmd
}

func newSynthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth <dir>",
		Short: "Write synthetic daily recordings for testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			start, err := time.Parse("2006-01-02", synthStart)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return err
			}

			for i := 0; i < synthCount; i++ {
				date := start.AddDate(0, 0, i).Format("2006-01-02")
				// 以周为周期起伏，群体预测能拟合到季节项
				bpm := synthBPM + 4*float64(i%7) - 6
				series, _ := ecg.Synthesize(ecg.SynthConfig{
					Rate:     cfg.SampleRate,
					Duration: 60,
					BPM:      bpm,
					Noise:    0.02,
					Wander:   0.1,
					Seed:     int64(i + 1),
				})
				path := filepath.Join(args[0], fmt.Sprintf("ecg-%s.csv", date))
				header := ecg.Header{"record_date": date, "classification": "synthetic"}
				if err := ecg.SaveCSV(path, header, series); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d recordings to %s\n", synthCount, args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&synthCount, "count", 14, "number of daily recordings")
	cmd.Flags().Float64Var(&synthBPM, "bpm", 72, "base heart rate")
	cmd.Flags().StringVar(&synthStart, "start", "2024-01-01", "first record date")
	return cmd
}
