package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/chainflow-labs/chainflow/internal/domain"
	randomforest "github.com/malaschitz/randomForest"
)

// ForestConfig controls synthetic data generation and forest training.
type ForestConfig struct {
	Seed           uint64
	Samples        int
	FraudRatio     float64
	TestFraction   float64
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int

	// SnapshotPath, when set, holds the trained trees as JSON. A snapshot
	// trained with the same parameters is loaded instead of retraining, so
	// predictions survive restarts unchanged.
	SnapshotPath string
}

// DefaultForestConfig returns the standard training setup:
// 1000 samples, 20% fraud, 80/20 train/test split.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Seed:           42,
		Samples:        1000,
		FraudRatio:     0.2,
		TestFraction:   0.2,
		Trees:          100,
		MaxDepth:       10,
		MinSamplesLeaf: 1,
	}
}

func (c ForestConfig) validate() error {
	switch {
	case c.Samples < 10:
		return fmt.Errorf("samples must be at least 10, got %d", c.Samples)
	case c.FraudRatio <= 0 || c.FraudRatio >= 1:
		return fmt.Errorf("fraud ratio must be in (0,1), got %v", c.FraudRatio)
	case c.TestFraction <= 0 || c.TestFraction >= 1:
		return fmt.Errorf("test fraction must be in (0,1), got %v", c.TestFraction)
	case c.Trees <= 0:
		return fmt.Errorf("trees must be positive, got %d", c.Trees)
	case c.MaxDepth <= 0:
		return fmt.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// ForestModel is a random forest over scaled features. It is immutable after
// training and safe for concurrent use.
type ForestModel struct {
	scaler   *StandardScaler
	forest   *randomforest.Forest
	accuracy float64
	restored bool
}

// TrainForest generates the synthetic dataset, fits the scaler on the
// training split, grows (or restores) the forest and measures hold-out
// accuracy. The dataset and scaler depend only on the seed; tree growth uses
// the library's own randomness.
func TrainForest(cfg ForestConfig) (*ForestModel, error) {
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid forest config: %w", err)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
	data := GenerateDataset(rng, cfg.Samples, cfg.FraudRatio)
	train, test := data.Split(cfg.TestFraction)
	if !hasBothClasses(train.Y) {
		return nil, errors.New("training split contains a single class")
	}

	scaler, err := FitScaler(train.X)
	if err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}

	model := &ForestModel{scaler: scaler}
	if cfg.SnapshotPath != "" {
		forest, err := loadSnapshot(cfg)
		switch {
		case err == nil:
			model.forest = forest
			model.restored = true
		case errors.Is(err, os.ErrNotExist):
		default:
			slog.Warn("ignoring forest snapshot", "path", cfg.SnapshotPath, "error", err)
		}
	}

	if model.forest == nil {
		model.forest = &randomforest.Forest{
			Data: randomforest.ForestData{
				X:     scaler.TransformAll(train.X),
				Class: train.Y,
			},
			MaxDepth:  cfg.MaxDepth,
			LeafSize:  cfg.MinSamplesLeaf,
			MFeatures: featuresPerSplit(domain.FeatureCount),
		}
		model.forest.Train(cfg.Trees)
		// Training rows are not needed for voting.
		model.forest.Data = randomforest.ForestData{}

		if cfg.SnapshotPath != "" {
			if err := saveSnapshot(cfg, model.forest); err != nil {
				slog.Warn("failed to write forest snapshot", "path", cfg.SnapshotPath, "error", err)
			}
		}
	}

	model.accuracy = model.score(test)
	return model, nil
}

// Predict returns the fraud-class vote share across the forest.
func (m *ForestModel) Predict(attrs domain.TransactionAttributes) float64 {
	return m.predictScaled(m.scaler.Transform(attrs.Features()))
}

func (m *ForestModel) predictScaled(row []float64) float64 {
	votes := m.forest.Vote(row)
	if len(votes) < 2 {
		return 0
	}
	return math.Min(1, math.Max(0, votes[1]))
}

// Trained always reports true for a forest.
func (m *ForestModel) Trained() bool { return true }

// Accuracy is the hold-out accuracy measured at training time.
func (m *ForestModel) Accuracy() float64 { return m.accuracy }

// Name identifies the model in assessments.
func (m *ForestModel) Name() string { return domain.ModelRandomForest }

// TreeCount returns the number of trees in the forest.
func (m *ForestModel) TreeCount() int { return m.forest.NTrees }

// Restored reports whether the trees came from a snapshot.
func (m *ForestModel) Restored() bool { return m.restored }

func (m *ForestModel) score(test *Dataset) float64 {
	if test.Len() == 0 {
		return 0
	}
	correct := 0
	for i, row := range test.X {
		pred := 0
		if m.predictScaled(m.scaler.Transform(row)) >= 0.5 {
			pred = 1
		}
		if pred == test.Y[i] {
			correct++
		}
	}
	return float64(correct) / float64(test.Len())
}

// forestSnapshot pins a trained forest to the parameters that produced it.
type forestSnapshot struct {
	Seed       uint64               `json:"seed"`
	Samples    int                  `json:"samples"`
	FraudRatio float64              `json:"fraudRatio"`
	Trees      int                  `json:"trees"`
	MaxDepth   int                  `json:"maxDepth"`
	Features   int                  `json:"features"`
	Forest     *randomforest.Forest `json:"forest"`
}

func newSnapshot(cfg ForestConfig, forest *randomforest.Forest) forestSnapshot {
	return forestSnapshot{
		Seed:       cfg.Seed,
		Samples:    cfg.Samples,
		FraudRatio: cfg.FraudRatio,
		Trees:      cfg.Trees,
		MaxDepth:   cfg.MaxDepth,
		Features:   domain.FeatureCount,
		Forest:     forest,
	}
}

func loadSnapshot(cfg ForestConfig) (*randomforest.Forest, error) {
	data, err := os.ReadFile(cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}
	var snap forestSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	forest := snap.Forest
	if forest == nil {
		return nil, errors.New("snapshot holds no forest")
	}
	snap.Forest = nil
	if snap != newSnapshot(cfg, nil) {
		return nil, errors.New("snapshot was trained with different parameters")
	}
	if forest.NTrees != cfg.Trees || forest.Classes != 2 || forest.Features != domain.FeatureCount {
		return nil, fmt.Errorf("snapshot forest has %d trees, %d classes, %d features", forest.NTrees, forest.Classes, forest.Features)
	}
	return forest, nil
}

// saveSnapshot writes through a temp file so readers never see a partial
// snapshot.
func saveSnapshot(cfg ForestConfig, forest *randomforest.Forest) error {
	data, err := json.Marshal(newSnapshot(cfg, forest))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(cfg.SnapshotPath)
	tmp, err := os.CreateTemp(dir, ".forest-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), cfg.SnapshotPath)
}

func featuresPerSplit(width int) int {
	return max(1, int(math.Sqrt(float64(width))))
}

func hasBothClasses(y []int) bool {
	var seen [2]bool
	for _, v := range y {
		seen[v] = true
	}
	return seen[0] && seen[1]
}
