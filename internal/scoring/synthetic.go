package scoring

import (
	"math/rand/v2"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// featureDist is the normal-class distribution of one feature.
type featureDist struct {
	mean float64
	std  float64
}

// Normal-class distributions in FeatureNames order.
var normalFeatures = [domain.FeatureCount]featureDist{
	{mean: 5000, std: 1500}, // amount
	{mean: 48, std: 12},     // delivery_time_hours
	{mean: 80, std: 8},      // supplier_trust_score
	{mean: 5, std: 3},       // route_deviation_km
	{mean: 2, std: 1},       // temperature_variance
	{mean: 90, std: 5},      // documentation_completeness
	{mean: 24, std: 8},      // payment_delay_hours
}

// The fraud family is shifted up by fraudMeanShift standard deviations and
// spread by fraudStdFactor on every feature.
const (
	fraudMeanShift = 2.0
	fraudStdFactor = 1.5
)

// Dataset is a labelled feature matrix. Label 1 marks fraud.
type Dataset struct {
	X [][]float64
	Y []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Y) }

// GenerateDataset draws n samples, a fraudRatio share from the fraud family,
// shuffled. The output depends only on n, fraudRatio and rng state.
func GenerateDataset(rng *rand.Rand, n int, fraudRatio float64) *Dataset {
	nFraud := int(float64(n) * fraudRatio)
	ds := &Dataset{
		X: make([][]float64, 0, n),
		Y: make([]int, 0, n),
	}
	for i := 0; i < n; i++ {
		fraud := i >= n-nFraud
		row := make([]float64, domain.FeatureCount)
		for j, d := range normalFeatures {
			mean, std := d.mean, d.std
			if fraud {
				mean += fraudMeanShift * d.std
				std *= fraudStdFactor
			}
			row[j] = mean + std*rng.NormFloat64()
		}
		ds.X = append(ds.X, row)
		if fraud {
			ds.Y = append(ds.Y, 1)
		} else {
			ds.Y = append(ds.Y, 0)
		}
	}
	rng.Shuffle(n, func(i, j int) {
		ds.X[i], ds.X[j] = ds.X[j], ds.X[i]
		ds.Y[i], ds.Y[j] = ds.Y[j], ds.Y[i]
	})
	return ds
}

// Split returns the first (1-testFraction) share as train and the rest as test.
func (d *Dataset) Split(testFraction float64) (train, test *Dataset) {
	nTest := int(float64(d.Len()) * testFraction)
	cut := d.Len() - nTest
	return &Dataset{X: d.X[:cut], Y: d.Y[:cut]}, &Dataset{X: d.X[cut:], Y: d.Y[cut:]}
}
