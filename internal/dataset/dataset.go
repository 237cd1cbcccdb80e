package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"teaser/internal/series"
)

type Config struct {
	Manifest string `envconfig:"TEASER_DATASET_MANIFEST" default:"dataset/manifest.toml"`
}

// manifest is the bundled dataset description, series files are
// resolved relative to it.
type manifest struct {
	Name     string   `toml:"name"`
	Channels int      `toml:"channels"`
	Length   int      `toml:"length"`
	Classes  []string `toml:"classes"`
	Train    split    `toml:"train"`
	Test     split    `toml:"test"`
}

type split struct {
	Data string `toml:"data"`
}

type Dataset struct {
	Name     string
	Channels int
	Length   int
	Classes  []string

	Train  series.Batch
	TrainY []string
	Test   series.Batch
	TestY  []string
}

// Load reads a TOML manifest and the CSV series files it points to.
// Each CSV row is a label followed by channels*length values in
// channel major order.
func Load(path string) (*Dataset, error) {
	var m manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("unable to decode manifest %s: %w", path, err)
	}
	if m.Channels < 1 || m.Length < 1 {
		return nil, fmt.Errorf("manifest %s: channels and length must be positive", path)
	}
	dir := filepath.Dir(path)

	train, trainY, err := loadSplit(filepath.Join(dir, m.Train.Data), m.Channels, m.Length)
	if err != nil {
		return nil, fmt.Errorf("unable to load train split: %w", err)
	}
	ds := &Dataset{
		Name:     m.Name,
		Channels: m.Channels,
		Length:   m.Length,
		Classes:  m.Classes,
		Train:    train,
		TrainY:   trainY,
	}
	if m.Test.Data != "" {
		test, testY, err := loadSplit(filepath.Join(dir, m.Test.Data), m.Channels, m.Length)
		if err != nil {
			return nil, fmt.Errorf("unable to load test split: %w", err)
		}
		ds.Test = test
		ds.TestY = testY
	}
	return ds, nil
}

func loadSplit(path string, channels, length int) (series.Batch, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var batch series.Batch
	var labels []string
	want := channels * length
	for i, row := range rows {
		if len(row) != want+1 {
			return nil, nil, fmt.Errorf("%s row %d: %d values, want label plus %d", path, i+1, len(row), want)
		}
		labels = append(labels, row[0])
		values := make([][]float64, channels)
		for c := 0; c < channels; c++ {
			values[c] = make([]float64, length)
			for t := 0; t < length; t++ {
				v, err := strconv.ParseFloat(row[1+c*length+t], 64)
				if err != nil {
					return nil, nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
				}
				values[c][t] = v
			}
		}
		batch = append(batch, series.New(values))
	}
	if err := batch.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return batch, labels, nil
}
