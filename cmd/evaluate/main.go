package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/evaluate"
	"sleepywoodpecker/csi-motion/internal/logger"
)

func main() {
	defaults := evaluate.DefaultOptions()

	dir := pflag.StringP("dir", "d", ".", "directory of CSV captures")
	window := pflag.Int("window", defaults.WindowSize, "frames per classification window")
	threshold := pflag.Float64("threshold", defaults.Threshold, "motion threshold on the mean subcarrier standard deviation")
	stride := pflag.Int("stride", defaults.Stride, "frames between classifications")
	minSubcarriers := pflag.Int("min-subcarriers", defaults.MinSubcarriers, "first frame with more pairs than this fixes the subcarrier count")
	column := pflag.String("column", defaults.Column, "CSV column holding the raw CSI bytes")
	debug := pflag.Bool("debug", false, "log at debug level")
	pflag.Parse()

	log, err := logger.NewLogger("", *debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	opts := evaluate.Options{
		WindowSize:     *window,
		Threshold:      *threshold,
		Stride:         *stride,
		MinSubcarriers: *minSubcarriers,
		Column:         *column,
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatal("[evaluate] error reading capture directory", zap.Error(err), zap.String("dir", *dir))
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		fmt.Printf("\nProcessing file: %s\n", name)

		summary, err := evaluateFile(filepath.Join(*dir, name), opts, log)
		if err != nil {
			log.Warn("[evaluate] error evaluating capture", zap.Error(err), zap.String("file", name))
			continue
		}

		if summary.Classifications == 0 {
			fmt.Printf("No classifications (%d rows, %d skipped)\n", summary.Rows, summary.Skipped)
			continue
		}
		fmt.Printf("Minimum metric during detection: %.6f\n", summary.MinMetric())
		fmt.Printf("Mean metric: %.6f\n", summary.MeanMetric())
		fmt.Printf("Detected motion in %d out of %d windows.\n", summary.Detections, summary.Classifications)
		fmt.Printf("Motion detected ratio: %.2f%%\n", summary.Ratio()*100)
	}
}

func evaluateFile(path string, opts evaluate.Options, log *zap.Logger) (evaluate.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return evaluate.Summary{}, err
	}
	defer f.Close()

	return evaluate.Run(f, opts, log)
}
