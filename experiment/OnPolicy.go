package experiment

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/onpolicy/agent"
	"github.com/samuelfneumann/onpolicy/buffer/gae"
	"github.com/samuelfneumann/onpolicy/environment"
	"github.com/samuelfneumann/onpolicy/experiment/tracker"
	"github.com/samuelfneumann/onpolicy/rollout"
)

// Keys of the statistics stored by OnPolicy
const (
	EpochKey                string = "Epoch"
	TotalEnvInteractionsKey string = "TotalEnvInteractions"
	AdvMeanKey              string = "AdvMean"
	AdvStdKey               string = "AdvStd"
)

// Updater updates a policy from one epoch of experience
type Updater interface {
	Update(batch gae.Batch) error
}

// Evaluator is a policy with an evaluation mode
type Evaluator interface {
	Eval()
	Train()
}

// OnPolicy is an experiment which alternates between collecting one
// buffer of experience with the current policy and updating the policy
// with that experience.
type OnPolicy struct {
	config  Config
	env     environment.VecEnv
	policy  agent.ActorCritic
	buf     *gae.Buffer
	updater Updater

	rollout *rollout.Rollout
	tracker *tracker.Logger
	logger  zerolog.Logger

	epoch                int
	totalEnvInteractions int
}

// NewOnPolicy returns a new OnPolicy experiment. The buffer must hold
// c.StepsPerEpoch steps of c.NumEnvs environments.
func NewOnPolicy(c Config, env environment.VecEnv, policy agent.ActorCritic,
	buf *gae.Buffer, updater Updater, t *tracker.Logger,
	logger zerolog.Logger) (*OnPolicy, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newOnPolicy: %w", err)
	}
	if buf.Size() != c.StepsPerEpoch || buf.NumEnvs() != c.NumEnvs ||
		env.NumEnvs() != c.NumEnvs {
		return nil, fmt.Errorf("newOnPolicy: buffer and environment must "+
			"hold %d steps of %d environments, have buffer(%d, %d) and "+
			"environment(%d)", c.StepsPerEpoch, c.NumEnvs, buf.Size(),
			buf.NumEnvs(), env.NumEnvs())
	}

	logger = logger.With().Str("component", "experiment").Logger()
	return &OnPolicy{
		config:  c,
		env:     env,
		policy:  policy,
		buf:     buf,
		updater: updater,
		rollout: rollout.New(logger, t),
		tracker: t,
		logger:  logger,
	}, nil
}

// Epoch returns the number of epochs run so far
func (o *OnPolicy) Epoch() int { return o.epoch }

// TotalEnvInteractions returns the number of environment steps taken
// so far, over all environments
func (o *OnPolicy) TotalEnvInteractions() int { return o.totalEnvInteractions }

// RunEpoch collects one buffer of experience, updates the policy with
// it, and logs the epoch's statistics
func (o *OnPolicy) RunEpoch() error {
	c := rollout.CollectConfig{
		Steps:    o.config.StepsPerEpoch,
		NumEnvs:  o.config.NumEnvs,
		MaxEpLen: o.config.MaxEpLen,
	}
	if err := o.rollout.Collect(o.policy, o.env, o.buf, c); err != nil {
		return fmt.Errorf("runEpoch: %w", err)
	}

	batch, err := o.buf.Get()
	if err != nil {
		return fmt.Errorf("runEpoch: %w", err)
	}
	if batch.Degenerate() {
		o.logger.Warn().Int("epoch", o.epoch).
			Msg("advantages have zero standard deviation")
	}
	if o.logger.GetLevel() <= zerolog.DebugLevel {
		d := zerolog.Dict()
		for k, t := range batch.Tensors() {
			d = d.Ints(k, t.Shape())
		}
		o.logger.Debug().Int("epoch", o.epoch).Dict("shapes", d).
			Msg("epoch batch")
	}
	if err := o.updater.Update(batch); err != nil {
		return fmt.Errorf("runEpoch: %w", err)
	}

	o.totalEnvInteractions += o.config.StepsPerEpoch * o.config.NumEnvs
	o.tracker.Store(rollout.Tag, map[string]float64{
		EpochKey:                float64(o.epoch),
		TotalEnvInteractionsKey: float64(o.totalEnvInteractions),
		AdvMeanKey:              batch.AdvMean,
		AdvStdKey:               batch.AdvStd,
	}, tracker.Overwrite)
	o.tracker.Log(o.epoch)

	o.epoch++
	return nil
}

// Run runs all epochs of the experiment
func (o *OnPolicy) Run() error {
	for o.epoch < o.config.Epochs {
		if err := o.RunEpoch(); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate collects the configured number of evaluation trajectories.
// If the policy is an Evaluator, it acts in evaluation mode. If
// progress is not nil, a progress bar is written to it.
func (o *OnPolicy) Evaluate(progress io.Writer) ([]rollout.Trajectory,
	error) {
	if o.config.EvalTrajectories == 0 {
		return nil, nil
	}

	if e, ok := o.policy.(Evaluator); ok {
		e.Eval()
		defer e.Train()
	}

	c := rollout.TrajectoryConfig{
		NumTrajectories: o.config.EvalTrajectories,
		NumEnvs:         o.config.NumEnvs,
		EvenPerEnv:      o.config.EvenEval,
		ProgressBar:     progress,
	}
	trajs, err := o.rollout.CollectTrajectories(o.policy, o.env, c)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return trajs, nil
}

// Save saves the history of statistics to the configured file, if any
func (o *OnPolicy) Save() error {
	if o.config.SaveFile == "" {
		return nil
	}
	return o.tracker.Save(o.config.SaveFile)
}
