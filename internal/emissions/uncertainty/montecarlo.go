package uncertainty

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/aggregation"
)

// MaxIterations bounds the sample buffer of a single run
const MaxIterations = 1_000_000

// chunkSize is the number of iterations drawn from one random stream. Chunk k
// always uses stream (seed, k), so the samples are the same whatever the
// number of workers or the order chunks finish in.
const chunkSize = 256

// sampler draws one activity's emissions from a lognormal distribution whose
// mean is the point estimate
type sampler struct {
	value    float64
	mu       float64
	sigma    float64
	negative bool
	fixed    bool
}

func newSampler(a emissions.ResolvedActivity) sampler {
	value, _ := a.EmissionsKgCO2e.Float64()
	cv := a.CombinedUncertainty()
	if value == 0 || cv == 0 {
		return sampler{value: value, fixed: true}
	}

	sigma := math.Sqrt(math.Log(cv*cv + 1))
	return sampler{
		value:    value,
		mu:       math.Log(math.Abs(value)) - sigma*sigma/2,
		sigma:    sigma,
		negative: value < 0,
	}
}

func (s sampler) draw(rng *rand.Rand) float64 {
	if s.fixed {
		return s.value
	}
	v := math.Exp(s.mu + s.sigma*rng.NormFloat64())
	if s.negative {
		return -v
	}
	return v
}

func monteCarlo(activities []emissions.ResolvedActivity, agg aggregation.Result, iterations int, options Options) (Result, error) {
	if iterations > MaxIterations {
		return Result{}, fmt.Errorf("iterations must not exceed %d, got %d", MaxIterations, iterations)
	}

	seed := rand.Uint64()
	if options.Seed != nil {
		seed = *options.Seed
	}
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ordered := sortedActivities(activities)
	samplers := make([]sampler, len(ordered))
	for i, a := range ordered {
		samplers[i] = newSampler(a)
	}

	samples := make([]float64, iterations)

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < iterations; start += chunkSize {
		end := min(start+chunkSize, iterations)
		stream := uint64(start / chunkSize)
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, stream))
			for i := start; i < end; i++ {
				var sum float64
				for _, s := range samplers {
					sum += s.draw(rng)
				}
				samples[i] = sum
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	mean, stdDev := meanStdDev(samples)
	sort.Float64s(samples)
	low := percentile(samples, 0.025)
	high := percentile(samples, 0.975)

	total, _ := agg.Total.Float64()
	slack := emissions.RollupTolerance(total)
	for _, v := range []float64{mean, total} {
		if low-slack > v || high+slack < v {
			return Result{}, &IntervalError{Method: MethodMonteCarlo, Value: v, Low: low, High: high}
		}
	}

	return Result{
		Mean:                       round(mean),
		StdDev:                     round(stdDev),
		CI95Low:                    round(low),
		CI95High:                   round(high),
		RelativeUncertaintyPercent: relative((high-low)/2, mean),
		Method:                     MethodMonteCarlo,
		Iterations:                 iterations,
		Seed:                       &seed,
	}, nil
}

// meanStdDev sums in index order so the result is reproducible
func meanStdDev(samples []float64) (float64, float64) {
	n := float64(len(samples))
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / n
	if len(samples) < 2 {
		return mean, 0
	}

	var squares float64
	for _, v := range samples {
		squares += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(squares / (n - 1))
}

// percentile interpolates linearly between the closest ranks of sorted
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
