package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"teaser/internal/buildinfo"
	"teaser/internal/dataset"
	"teaser/internal/early"
	"teaser/internal/estimator"
	"teaser/internal/estimator/forest"
	"teaser/internal/estimator/oneclass"
	"teaser/internal/logging"
	"teaser/internal/shutdown"
)

var (
	flagManifest    = flag.String("manifest", "dataset/manifest.toml", "path to the dataset manifest")
	flagPoints      = flag.Int("points", 20, "number of classification points")
	flagTrees       = flag.Int("trees", 50, "number of trees in the interval forest")
	flagConsecutive = flag.Int("consecutive", 3, "consecutive agreeing checkpoints required to close")
	flagSeed        = flag.Int64("seed", 0, "random state, 0 picks a random seed")
)

func main() {
	flag.Parse()
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)

	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx); err != nil {
		logger.Fatal(err)
	}
	defer done()
}

func run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	ds, err := dataset.Load(*flagManifest)
	if err != nil {
		return fmt.Errorf("unable load dataset: %w", err)
	}
	logger.Infof(
		"Dataset %s: %d train, %d test, %d channels, length %d",
		ds.Name, ds.Train.Len(), ds.Test.Len(), ds.Channels, ds.Length,
	)

	cls, err := early.New(
		early.WithNumPoints(*flagPoints),
		early.WithConsecutive(*flagConsecutive),
		early.WithEstimator(func() (estimator.ProbaEstimator, error) {
			return forest.New(
				forest.WithTrees(*flagTrees),
				forest.WithSeed(*flagSeed),
			)
		}),
		early.WithOneClass(func() (estimator.OneClass, error) {
			return oneclass.New()
		}),
	)
	if err != nil {
		return fmt.Errorf("unable create classifier: %w", err)
	}

	start := time.Now()
	if err := cls.Fit(ctx, ds.Train, ds.TrainY); err != nil {
		return fmt.Errorf("unable fit classifier: %w", err)
	}
	logger.Infof("Fitted %d checkpoints in %v", len(cls.Points()), time.Since(start))

	if ds.Test.Len() == 0 {
		logger.Info("No test split in manifest, nothing to score")
		return nil
	}

	hm, acc, earliness, err := cls.Score(ctx, ds.Test, ds.TestY)
	if err != nil {
		return fmt.Errorf("unable score classifier: %w", err)
	}

	state := cls.State()
	fmt.Printf("instances:     %d\n", state.Total())
	fmt.Printf("accuracy:      %.4f\n", acc)
	fmt.Printf("earliness:     %.4f\n", earliness)
	fmt.Printf("harmonic mean: %.4f\n", hm)
	printClosePoints(state)

	return nil
}

// printClosePoints reports how many instances closed at each
// checkpoint.
func printClosePoints(state early.State) {
	counts := map[int]int{}
	for _, rec := range state.Records {
		counts[rec.ClosedAt]++
	}
	fmt.Println("closed at:")
	for _, point := range sortedKeys(counts) {
		fmt.Printf("  point %4d: %d\n", point, counts[point])
	}
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
