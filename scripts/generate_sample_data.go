package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"physio-predictor/internal/common"
	"physio-predictor/internal/features"
	"physio-predictor/internal/matrix"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/storage"
)

// exercise describes the synthetic motion of one class: the dominant
// frequency (cycles per recording) and amplitude of each sensor channel.
type exercise struct {
	name  string
	cycle float64
	amp   [common.SegmentChannels]float64
}

var exercises = []exercise{
	{"arm_raise", 2, [9]float64{1.2, 0.2, 0.3, 0.8, 0.1, 0.1, 0.4, 0.2, 0.1}},
	{"squat", 3, [9]float64{0.2, 1.5, 0.3, 0.1, 0.6, 0.1, 0.2, 0.7, 0.1}},
	{"lunge", 1.5, [9]float64{0.4, 0.9, 0.9, 0.2, 0.3, 0.5, 0.1, 0.3, 0.6}},
	{"shoulder_rotation", 4, [9]float64{0.6, 0.1, 0.6, 1.1, 0.2, 1.0, 0.3, 0.1, 0.2}},
	{"knee_extension", 2.5, [9]float64{0.1, 0.4, 0.2, 0.1, 1.3, 0.2, 0.1, 0.9, 0.4}},
}

func main() {
	var (
		outPath    = flag.String("out", "artifacts", "Directory for scaler.json, model.json and labels.json")
		samplePath = flag.String("samples", "samples", "Directory for sample recordings")
		bundlePath = flag.String("bundle", "", "Also pack the artifacts into this bundle file")
		perClass   = flag.Int("per-class", 40, "Training recordings generated per exercise")
		seed       = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("Generating demo artifacts...\n")
	fmt.Printf("  Exercises: %d\n", len(exercises))
	fmt.Printf("  Recordings per exercise: %d\n", *perClass)
	fmt.Printf("  Output: %s\n", *outPath)

	vectors := make([][][]float64, len(exercises))
	for c, ex := range exercises {
		segs := make([]features.Segment, *perClass)
		for i := range segs {
			segs[i] = synthesize(rng, ex)
		}
		v, err := features.Extract(segs)
		if err != nil {
			log.Fatalf("Failed to extract features: %v", err)
		}
		vectors[c] = v
	}

	scaler := fitScaler(vectors)
	model := fitCentroids(scaler, vectors)
	labels := ml.LabelEncoder{Classes: make([]string, len(exercises))}
	for c, ex := range exercises {
		labels.Classes[c] = ex.name
	}

	if err := os.MkdirAll(*outPath, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	for name, v := range map[string]any{
		common.ScalerArtifact: scaler,
		common.ModelArtifact:  model,
		common.LabelsArtifact: labels,
	} {
		if err := writeJSON(filepath.Join(*outPath, name+".json"), v); err != nil {
			log.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	if err := writeSamples(rng, *samplePath); err != nil {
		log.Fatalf("Failed to write samples: %v", err)
	}

	if *bundlePath != "" {
		b, err := storage.Create(*bundlePath)
		if err != nil {
			log.Fatalf("Failed to create bundle: %v", err)
		}
		if err := storage.Pack(b, ml.DirSource{Dir: *outPath}); err != nil {
			b.Close()
			log.Fatalf("Failed to pack bundle: %v", err)
		}
		if err := b.Close(); err != nil {
			log.Fatalf("Failed to close bundle: %v", err)
		}
	}

	fmt.Printf("✓ Generated demo artifacts in %s and samples in %s\n", *outPath, *samplePath)
}

func synthesize(rng *rand.Rand, ex exercise) *matrix.Matrix {
	m := matrix.New(common.SegmentRows, common.SegmentChannels)
	for ch := 0; ch < common.SegmentChannels; ch++ {
		phase := rng.Float64() * 2 * math.Pi
		cycle := ex.cycle * (0.9 + 0.2*rng.Float64())
		offset := rng.NormFloat64() * 0.1
		for t := 0; t < common.SegmentRows; t++ {
			angle := 2*math.Pi*cycle*float64(t)/common.SegmentRows + phase
			m.Set(t, ch, offset+ex.amp[ch]*math.Sin(angle)+rng.NormFloat64()*0.05)
		}
	}
	return m
}

func fitScaler(vectors [][][]float64) ml.StandardScaler {
	n := 0
	mean := make([]float64, common.FeatureCount)
	for _, class := range vectors {
		for _, v := range class {
			for j, x := range v {
				mean[j] += x
			}
			n++
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	scale := make([]float64, common.FeatureCount)
	for _, class := range vectors {
		for _, v := range class {
			for j, x := range v {
				scale[j] += (x - mean[j]) * (x - mean[j])
			}
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(n))
	}
	return ml.StandardScaler{Mean: mean, Scale: scale}
}

// fitCentroids builds a nearest-centroid classifier expressed as softmax
// weights: w = mu, b = -|mu|^2 / 2.
func fitCentroids(scaler ml.StandardScaler, vectors [][][]float64) ml.SoftmaxModel {
	model := ml.SoftmaxModel{Kind: "softmax"}
	for _, class := range vectors {
		scaled, err := scaler.Transform(class)
		if err != nil {
			log.Fatalf("Failed to scale features: %v", err)
		}
		mu := make([]float64, common.FeatureCount)
		for _, v := range scaled {
			for j, x := range v {
				mu[j] += x / float64(len(scaled))
			}
		}
		norm := 0.0
		for _, x := range mu {
			norm += x * x
		}
		model.Weights = append(model.Weights, mu)
		model.Intercept = append(model.Intercept, -norm/2)
	}
	return model
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// writeSamples writes one recording per exercise with a header line and
// comma decimal separators, the way the sensor export tool produces them.
func writeSamples(rng *rand.Rand, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	header := make([]string, common.SegmentChannels)
	for i := range header {
		header[i] = fmt.Sprintf("%s_%c", []string{"acc", "gyr", "mag"}[i/3], 'x'+rune(i%3))
	}

	for _, ex := range exercises {
		m := synthesize(rng, ex)
		var b strings.Builder
		b.WriteString(strings.Join(header, ";"))
		b.WriteString("\n")
		for _, row := range m.ToRows() {
			cells := make([]string, len(row))
			for ch, v := range row {
				cells[ch] = strings.Replace(strconv.FormatFloat(v, 'f', 6, 64), ".", ",", 1)
			}
			b.WriteString(strings.Join(cells, ";"))
			b.WriteString("\n")
		}
		if err := os.WriteFile(filepath.Join(dir, ex.name+".txt"), []byte(b.String()), 0644); err != nil {
			return err
		}
	}
	return nil
}
