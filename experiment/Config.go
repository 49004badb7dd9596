// Package experiment implements functionality for running on-policy
// experiments, where each epoch collects a buffer of experience which
// is then used for a single policy update
package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samuelfneumann/onpolicy/environment/envconfig"
)

// Config represents a configuration of an on-policy experiment
type Config struct {
	Epochs        int
	StepsPerEpoch int // Steps per environment per epoch
	NumEnvs       int
	MaxEpLen      int
	Seed          uint64

	// GAE(λ) parameters
	Gamma  float64
	Lambda float64

	// Learning rates of the linear actor-critic
	ActorLearningRate  float64
	CriticLearningRate float64

	// EvalTrajectories is the number of greedy trajectories collected
	// after training, split evenly over environments if EvenEval is set
	EvalTrajectories int
	EvenEval         bool

	// SaveFile, if not empty, is where the history of statistics is
	// saved after training
	SaveFile string

	EnvConf envconfig.Config
}

// DefaultConfig returns the default experiment configuration
func DefaultConfig() Config {
	return Config{
		Epochs:             20,
		StepsPerEpoch:      1000,
		NumEnvs:            4,
		MaxEpLen:           500,
		Seed:               0,
		Gamma:              0.99,
		Lambda:             0.95,
		ActorLearningRate:  0.01,
		CriticLearningRate: 0.01,
		EvalTrajectories:   4,
		EvenEval:           true,
		EnvConf: envconfig.Config{
			Environment:   envconfig.Cartpole,
			Task:          envconfig.Balance,
			EpisodeCutoff: 500,
			Discount:      0.99,
		},
	}
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.Epochs < 1 || c.StepsPerEpoch < 1 || c.NumEnvs < 1 ||
		c.MaxEpLen < 1 {
		return fmt.Errorf("validate: epochs, steps per epoch, number of "+
			"environments, and max episode length must be positive, "+
			"have(%v, %v, %v, %v)", c.Epochs, c.StepsPerEpoch, c.NumEnvs,
			c.MaxEpLen)
	}
	if c.Gamma < 0 || c.Gamma > 1 || c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: gamma and lambda must be in [0, 1], "+
			"have(%v, %v)", c.Gamma, c.Lambda)
	}
	if c.ActorLearningRate <= 0 || c.CriticLearningRate <= 0 {
		return fmt.Errorf("validate: learning rates must be positive, "+
			"have(%v, %v)", c.ActorLearningRate, c.CriticLearningRate)
	}
	if c.EvalTrajectories < 0 {
		return fmt.Errorf("validate: number of evaluation trajectories "+
			"must be non-negative, have(%v)", c.EvalTrajectories)
	}
	if c.EvenEval && c.EvalTrajectories%c.NumEnvs != 0 {
		return fmt.Errorf("validate: %v evaluation trajectories cannot be "+
			"split evenly over %v environments", c.EvalTrajectories,
			c.NumEnvs)
	}
	if err := c.EnvConf.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// LoadConfig loads a JSON Config from a file. Fields missing from the
// file keep their default values.
func LoadConfig(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not read config: %w",
			err)
	}

	c := DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not decode "+
			"config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("loadConfig: %w", err)
	}
	return c, nil
}
