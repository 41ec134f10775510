package cmd

import (
	"flag"

	"github.com/etnz/fiscal/docs"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// argPredictors predicts the positional arguments of some subcommands.
var argPredictors = map[string]complete.Predictor{
	"import":       predict.Files("*"),
	"fmt":          predict.Files("*"),
	"import-rates": predict.Files("*.jsonl"),
}

// flagPredictors predicts the values of flags by name.
var flagPredictors = map[string]complete.Predictor{
	"db":     predict.Files("*.db"),
	"config": predict.Files("*.json"),
	"format": predict.Set{"jsonl", "exante"},
	"fy":     predict.Something,
	"run":    predict.Something,
}

// Completion describes the commands of c and their flags for shell
// completion.
func Completion(c *subcommands.Commander) *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: flagsOf(flag.CommandLine),
	}
	c.VisitCommands(func(_ *subcommands.CommandGroup, sub subcommands.Command) {
		f := flag.NewFlagSet(sub.Name(), flag.ContinueOnError)
		sub.SetFlags(f)
		root.Sub[sub.Name()] = &complete.Command{
			Flags: flagsOf(f),
			Args:  argPredictors[sub.Name()],
		}
	})
	if topic, ok := root.Sub["topic"]; ok {
		if topics, err := docs.GetAllTopics(); err == nil {
			topic.Args = predict.Set(topics)
		}
	}
	return root
}

func flagsOf(f *flag.FlagSet) map[string]complete.Predictor {
	flags := map[string]complete.Predictor{}
	f.VisitAll(func(fl *flag.Flag) {
		if b, ok := fl.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			flags[fl.Name] = predict.Nothing
			return
		}
		if p, ok := flagPredictors[fl.Name]; ok {
			flags[fl.Name] = p
			return
		}
		flags[fl.Name] = predict.Something
	})
	return flags
}
