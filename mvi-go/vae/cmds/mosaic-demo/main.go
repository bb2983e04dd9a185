package main

import (
	"math/rand"
	"os"

	arg "github.com/alexflint/go-arg"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mosaicvi/mosaicvi/mvi-go/synthetic"
	"github.com/mosaicvi/mosaicvi/mvi-go/vae"
	"github.com/mosaicvi/mosaicvi/mvi-golib/errors"
	"github.com/mosaicvi/mosaicvi/mvi-golib/logging"
)

func main() {
	args := struct {
		Obs        int     `arg:"--obs" default:"200" help:"number of observations to simulate"`
		Genes      int     `arg:"--genes" default:"50" help:"number of genes"`
		Regions    int     `arg:"--regions" default:"80" help:"number of accessibility regions"`
		Proteins   int     `arg:"--proteins" default:"10" help:"number of surface proteins"`
		Clusters   int     `arg:"--clusters" default:"4" help:"number of simulated clusters"`
		Batches    int     `arg:"--batches" default:"2" help:"number of experimental batches"`
		DropAcc    float64 `arg:"--drop-acc" default:"0.3" help:"fraction of observations without accessibility"`
		DropPro    float64 `arg:"--drop-pro" default:"0.3" help:"fraction of observations without protein counts"`
		Epochs     int     `arg:"--epochs" default:"20" help:"number of evaluation epochs"`
		Warmup     int     `arg:"--warmup" default:"10" help:"KL warmup epochs"`
		Mixing     string  `arg:"--mixing" default:"poe" help:"mixing strategy: poe, moe or mean"`
		Likelihood string  `arg:"--likelihood" default:"nb" help:"expression likelihood: zinb, nb or poisson"`
		Weights    string  `arg:"--weights" default:"equal" help:"modality weights: equal, universal, cell or gated"`
		Penalty    string  `arg:"--penalty" default:"none" help:"alignment penalty: none, jeffreys, mmd or kernel-mmd"`
		Seed       int64   `arg:"--seed" default:"42"`
		Plot       string  `arg:"--plot" help:"write a loss-curve PNG to this path"`
	}{}
	arg.MustParse(&args)

	mixing, err := vae.ParseMixing(args.Mixing)
	if err != nil {
		logging.Sugar.Fatal(err)
	}
	likelihood, err := vae.ParseLikelihood(args.Likelihood)
	if err != nil {
		logging.Sugar.Fatal(err)
	}
	weights, err := vae.ParseWeights(args.Weights)
	if err != nil {
		logging.Sugar.Fatal(err)
	}
	penalty, err := vae.ParsePenalty(args.Penalty)
	if err != nil {
		logging.Sugar.Fatal(err)
	}

	logging.Sugar.Infof("simulating %d observations (%d genes, %d regions, %d proteins, %d clusters)",
		args.Obs, args.Genes, args.Regions, args.Proteins, args.Clusters)
	ds, err := synthetic.Generate(synthetic.Params{
		NObs:              args.Obs,
		NGenes:            args.Genes,
		NRegions:          args.Regions,
		NProteins:         args.Proteins,
		NBatches:          args.Batches,
		NClusters:         args.Clusters,
		DropAccessibility: args.DropAcc,
		DropProtein:       args.DropPro,
		Seed:              uint64(args.Seed),
	})
	if err != nil {
		logging.Sugar.Fatal(err)
	}

	cfg := vae.Config{
		NGenes:         args.Genes,
		NRegions:       args.Regions,
		NProteins:      args.Proteins,
		NBatches:       args.Batches,
		NObs:           args.Obs,
		NLatent:        10,
		NHidden:        64,
		NLayersEncoder: 2,
		NLayersDecoder: 2,
		Likelihood:     likelihood,
		Mixing:         mixing,
		Weights:        weights,
		Penalty:        penalty,
		RegionFactors:  true,
	}
	rng := rand.New(rand.NewSource(args.Seed))
	model, err := vae.New(cfg, rng)
	if err != nil {
		logging.Sugar.Fatal(err)
	}
	logging.Sugar.Infof("model has %d parameter tensors", len(model.Parameters()))

	losses := make(plotter.XYs, 0, args.Epochs)
	for epoch := 0; epoch < args.Epochs; epoch++ {
		klWeight := vae.KLWarmupWeight(epoch, args.Warmup)
		inf, err := model.Inference(ds.Batch, rng)
		if err != nil {
			logging.Sugar.Fatal(err)
		}
		gen, err := model.Generative(ds.Batch, inf, false, rng)
		if err != nil {
			logging.Sugar.Fatal(err)
		}
		loss, err := model.Loss(ds.Batch, inf, gen, klWeight)
		if err != nil {
			logging.Sugar.Fatal(err)
		}
		logging.Sugar.Infof("epoch %d: loss=%.2f kl-weight=%.2f recon-expr=%.2f recon-acc=%.2f recon-pro=%.2f",
			epoch, loss.Loss, klWeight,
			mean(loss.ReconstructionExpression),
			mean(loss.ReconstructionAccessibility),
			mean(loss.ReconstructionProtein))
		losses = append(losses, plotter.XY{X: float64(epoch), Y: loss.Loss})
	}

	if args.Plot != "" {
		if err := writeLossPlot(args.Plot, losses); err != nil {
			logging.Sugar.Fatal(err)
		}
		logging.Sugar.Infof("wrote loss curve to %s", args.Plot)
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func writeLossPlot(path string, losses plotter.XYs) (err error) {
	p := plot.New()
	p.Title.Text = "Objective under KL warmup"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"
	line, err := plotter.NewLine(losses)
	if err != nil {
		return err
	}
	p.Add(line, plotter.NewGrid())

	w, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer errors.Defer(&err, f.Close)
	_, err = w.WriteTo(f)
	return err
}
