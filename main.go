package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/AlexisAoun/brique/data"
	"github.com/AlexisAoun/brique/ml"
)

const usage = `usage: brique <command> [flags]

commands:
  train    train a classifier on IDX or CSV data
  test     report the accuracy of a saved model
  predict  classify an image with a saved model
  spiral   train on a generated spiral dataset

run "brique <command> -h" for the flags of a command`

// -------- MAIN -------- //
func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "train":
		return runTrain(args[1:], out)
	case "test":
		return runTest(args[1:], out)
	case "predict":
		return runPredict(args[1:], out)
	case "spiral":
		return runSpiral(args[1:], out)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// hardwareBanner prints the execution environment, the way long runs are
// usually introduced.
func hardwareBanner(out io.Writer) {
	cpu := cpuid.CPU
	fmt.Fprintf(out, "Running on %d cores (%s, x86-64-v%d, AVX2: %t)\n",
		runtime.GOMAXPROCS(0), cpu.BrandName, cpu.X64Level(), cpu.Supports(cpuid.AVX2))
}

// -------- FLAGS -------- //

// modelFlags describe a fresh network and its training run.
type modelFlags struct {
	hidden     string
	optimizer  string
	step       float64
	lambda     float64
	epochs     int
	batch      int
	validation int
	checkpoint string
	metric     string
	every      int
	seed       uint64
	silent     bool
	trace      string
}

func (f *modelFlags) register(fs *flag.FlagSet, defaults modelFlags) {
	fs.StringVar(&f.hidden, "hidden", defaults.hidden, "comma separated hidden layer sizes")
	fs.StringVar(&f.optimizer, "opt", defaults.optimizer, "optimizer: sgd or adam")
	fs.Float64Var(&f.step, "lr", defaults.step, "learning step")
	fs.Float64Var(&f.lambda, "lambda", ml.DefaultLambda, "L2 regularisation coefficient")
	fs.IntVar(&f.epochs, "epochs", defaults.epochs, "number of epochs")
	fs.IntVar(&f.batch, "batch", defaults.batch, "mini-batch size")
	fs.IntVar(&f.validation, "val", defaults.validation, "samples held out for validation")
	fs.StringVar(&f.checkpoint, "checkpoint", "", "save the best model to this path")
	fs.StringVar(&f.metric, "metric", "acc", "checkpoint metric: acc or loss")
	fs.IntVar(&f.every, "every", ml.DefaultPrintFrequency, "report every N batches")
	fs.Uint64Var(&f.seed, "seed", 0, "seed for initialisation and shuffling (0 = random)")
	fs.BoolVar(&f.silent, "silent", false, "print nothing while training")
	fs.StringVar(&f.trace, "trace", "", "run deterministically and dump every step as CSV to this path")
}

func parseSizes(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sizes := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid layer size %q", p)
		}
		sizes[i] = n
	}
	return sizes, nil
}

func (f *modelFlags) build(inputs, classes int) (*ml.Model, error) {
	hidden, err := parseSizes(f.hidden)
	if err != nil {
		return nil, err
	}
	opt, err := ml.ParseOptimizer(f.optimizer, f.step)
	if err != nil {
		return nil, err
	}

	seed := func(i int) []ml.LayerOption {
		if f.seed == 0 {
			return nil
		}
		return []ml.LayerOption{ml.Seed(f.seed + uint64(i))}
	}

	configs := []ml.LayerConfig{ml.Input(inputs)}
	for i, size := range hidden {
		configs = append(configs, ml.Dense(size, seed(i)...))
	}
	configs = append(configs, ml.Dense(classes, append(seed(len(hidden)), ml.Activation("softmax"))...))

	return ml.NewNetwork(configs...).WithOptimizer(opt).WithL2(f.lambda), nil
}

func (f *modelFlags) trainConfig(out io.Writer) (ml.TrainConfig, *ml.History, error) {
	cfg := ml.TrainConfig{
		Epochs:         f.epochs,
		BatchSize:      f.batch,
		ValidationSize: f.validation,
		PrintFrequency: f.every,
		Silent:         f.silent,
		Output:         out,
	}
	if f.seed != 0 {
		cfg.Source = rand.NewPCG(f.seed, f.seed)
	}
	if f.checkpoint != "" {
		metric := ml.CheckpointValAcc
		switch f.metric {
		case "acc":
		case "loss":
			metric = ml.CheckpointValLoss
		default:
			return cfg, nil, fmt.Errorf("unknown checkpoint metric %q (want acc or loss)", f.metric)
		}
		cfg.Checkpoint = &ml.Checkpoint{Metric: metric, Path: f.checkpoint}
	}

	var history *ml.History
	if f.trace != "" {
		history = &ml.History{}
		cfg.Debug = true
		cfg.Recorder = history
		cfg.ValidationSize = 0
		cfg.Checkpoint = nil
	}
	return cfg, history, nil
}

func writeTrace(path string, history *ml.History) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := history.WriteCSV(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// dataFlags select a labelled dataset on disk.
type dataFlags struct {
	images, labels, csv string
}

func (f *dataFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.images, "images", "", "IDX image file")
	fs.StringVar(&f.labels, "labels", "", "IDX label file")
	fs.StringVar(&f.csv, "csv", "", "CSV file, features then label on each row")
}

func (f *dataFlags) load(out io.Writer) (X, Y *ml.Matrix, err error) {
	fmt.Fprintln(out, "Loading dataset...")
	switch {
	case f.csv != "":
		X, Y, err = data.LoadCSV(f.csv)
	case f.images != "" && f.labels != "":
		X, Y, err = data.LoadIDX(f.images, f.labels)
	default:
		return nil, nil, errors.New("give either -csv or both -images and -labels")
	}
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(out, "Loaded dataset: %d samples, %d input features\n", X.Height(), X.Width())
	return X, Y, nil
}

func classCount(labels *ml.Matrix) int {
	if labels.Width() == 0 {
		return 0
	}
	return int(labels.Max()) + 1
}

// -------- COMMANDS -------- //

func runTrain(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		mf      modelFlags
		df      dataFlags
		classes int
		save    string
	)
	mf.register(fs, modelFlags{hidden: "128,128", optimizer: "adam", step: 0.001, epochs: 10, batch: 128, validation: 2000})
	df.register(fs)
	fs.IntVar(&classes, "classes", 0, "number of classes (0 = largest label + 1)")
	fs.StringVar(&save, "out", "", "save the final model to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	X, Y, err := df.load(out)
	if err != nil {
		return err
	}
	if classes == 0 {
		classes = classCount(Y)
	}
	model, err := mf.build(X.Width(), classes)
	if err != nil {
		return err
	}
	cfg, history, err := mf.trainConfig(out)
	if err != nil {
		return err
	}

	hardwareBanner(out)
	if _, err := model.Train(X, Y, cfg); err != nil {
		return err
	}

	if history != nil {
		if err := writeTrace(mf.trace, history); err != nil {
			return err
		}
	}
	if save != "" {
		if err := model.SaveToFile(save); err != nil {
			return err
		}
		fmt.Fprintf(out, "Model saved to %s\n", save)
	}
	return nil
}

func runTest(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		df        dataFlags
		modelPath string
	)
	df.register(fs)
	fs.StringVar(&modelPath, "model", "", "model file written by train")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if modelPath == "" {
		return errors.New("-model is required")
	}

	model, err := ml.LoadModel(modelPath)
	if err != nil {
		return err
	}
	X, Y, err := df.load(out)
	if err != nil {
		return err
	}
	if X.Width() != model.InputSize() {
		return fmt.Errorf("samples have %d features, model expects %d", X.Width(), model.InputSize())
	}
	if err := ml.ValidateLabels(Y, model.Classes()); err != nil {
		return err
	}

	score := model.Predict(X)
	loss, _ := model.ComputeLoss(score, Y)
	fmt.Fprintf(out, "Model: %s\n", model.Summary())
	fmt.Fprintf(out, "Loss: %.4f | Acc: %.2f%%\n", loss, model.Accuracy(score, Y)*100)
	return nil
}

func runPredict(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		modelPath, imagePath string
		width, height, top   int
		invert               bool
	)
	fs.StringVar(&modelPath, "model", "", "model file written by train")
	fs.StringVar(&imagePath, "image", "", "PNG or JPEG image to classify")
	fs.IntVar(&width, "w", 28, "resize width")
	fs.IntVar(&height, "h", 28, "resize height")
	fs.IntVar(&top, "top", 3, "number of candidates to print")
	fs.BoolVar(&invert, "invert", false, "invert a dark-on-light drawing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if modelPath == "" || imagePath == "" {
		return errors.New("-model and -image are required")
	}

	model, err := ml.LoadModel(modelPath)
	if err != nil {
		return err
	}
	if width*height != model.InputSize() {
		return fmt.Errorf("a %dx%d image gives %d inputs, model expects %d", width, height, width*height, model.InputSize())
	}

	fmt.Fprintf(out, "Running Inference on: %s\n", imagePath)
	input, err := data.LoadImage(imagePath, width, height, invert)
	if err != nil {
		return err
	}

	candidates := model.Classify(input, top)[0]
	fmt.Fprintf(out, "Predicted Class: %d\n", candidates[0].Class)
	fmt.Fprintf(out, "Confidence: %.2f%%\n", candidates[0].Probability*100)
	for i, c := range candidates[1:] {
		fmt.Fprintf(out, "  #%d %s\n", i+2, c)
	}
	return nil
}

func runSpiral(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("spiral", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		mf              modelFlags
		points, classes int
		save            string
	)
	mf.register(fs, modelFlags{hidden: "100", optimizer: "adam", step: 0.01, epochs: 300, batch: 32, validation: 30})
	fs.IntVar(&points, "points", 100, "points per class")
	fs.IntVar(&classes, "classes", 3, "number of spiral arms")
	fs.StringVar(&save, "out", "", "save the final model to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var src rand.Source
	if mf.seed != 0 {
		src = rand.NewPCG(mf.seed, ^mf.seed)
	}
	X, Y := data.Spiral(points, classes, src)
	fmt.Fprintf(out, "Generated spiral: %d samples in %d classes\n", X.Height(), classes)

	model, err := mf.build(X.Width(), classes)
	if err != nil {
		return err
	}
	cfg, history, err := mf.trainConfig(out)
	if err != nil {
		return err
	}
	if _, err := model.Train(X, Y, cfg); err != nil {
		return err
	}

	score := model.Predict(X)
	fmt.Fprintf(out, "Accuracy on the full spiral: %.2f%%\n", model.Accuracy(score, Y)*100)

	if history != nil {
		if err := writeTrace(mf.trace, history); err != nil {
			return err
		}
	}
	if save != "" {
		if err := model.SaveToFile(save); err != nil {
			return err
		}
		fmt.Fprintf(out, "Model saved to %s\n", save)
	}
	return nil
}
