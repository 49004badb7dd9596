package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/onpolicy/agent/linear/continuous/actorcritic"
	"github.com/samuelfneumann/onpolicy/agent/linear/continuous/policy"
	"github.com/samuelfneumann/onpolicy/buffer/gae"
	"github.com/samuelfneumann/onpolicy/experiment"
	"github.com/samuelfneumann/onpolicy/experiment/tracker"
)

func main() {
	configFile := flag.String("config", "", "JSON experiment config file")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	c := experiment.DefaultConfig()
	if *configFile != "" {
		var err error
		c, err = experiment.LoadConfig(*configFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not load config")
		}
	}

	env, err := c.EnvConf.CreateVec(c.NumEnvs, c.Seed)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create environment")
	}
	p := policy.NewGaussian(c.Seed, env.ObservationLayout(), env.ActionDim())
	learner, err := actorcritic.NewLearner(p, c.ActorLearningRate,
		c.CriticLearningRate)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create learner")
	}
	buf := gae.New(env.ObservationLayout(), env.ActionDim(), c.StepsPerEpoch,
		c.NumEnvs, c.Lambda, c.Gamma)

	e, err := experiment.NewOnPolicy(c, env, p, buf, learner,
		tracker.New(logger), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create experiment")
	}

	if err := e.Run(); err != nil {
		logger.Fatal().Err(err).Msg("training failed")
	}
	if err := e.Save(); err != nil {
		logger.Fatal().Err(err).Msg("could not save data")
	}

	trajs, err := e.Evaluate(os.Stderr)
	if err != nil {
		logger.Fatal().Err(err).Msg("evaluation failed")
	}
	for _, traj := range trajs {
		ret := 0.0
		for _, r := range traj.Rewards {
			ret += r
		}
		logger.Info().Str("id", traj.ID.String()).Int("env", traj.Env).
			Int("steps", traj.Steps).Float64("return", ret).
			Msg("evaluation trajectory")
	}
}
