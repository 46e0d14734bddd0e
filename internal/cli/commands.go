package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/itradeyou/council/internal/config"
	"github.com/itradeyou/council/internal/models"
	"github.com/itradeyou/council/internal/pipeline"
	"github.com/itradeyou/council/internal/stages"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "council",
		Short: "Council - multi-PM trade decision synthesis",
		Long: `Council runs a weekly committee of LLM portfolio managers: each PM pitches
one trade, the pitches are peer-reviewed anonymously, and a chairman model
synthesizes a single desk decision that intraday checkpoints then manage.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newCheckpointCmd(cfg))
	rootCmd.AddCommand(newStatusCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))

	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")

	return rootCmd
}

// newRunCmd runs the full weekly pipeline: snapshot, pitches, peer
// review, chairman synthesis and, if approved, execution.
func newRunCmd(cfg *config.Config) *cobra.Command {
	var autoApprove bool
	var skipExecution bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full weekly decision pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			job := models.NewJobState(uuid.NewString(), "weekly-run")
			job.Start()

			p := pipeline.New(
				track(job, stages.NewSnapshotStage(app.Builder, app.Store, true)),
				track(job, stages.NewPitchStage(app.Agents, app.Store, cfg.MaxTokens)),
				track(job, stages.NewPeerReviewStage(app.Agents, app.Store, cfg.MaxTokens)),
				track(job, stages.NewChairmanStage(app.Chairman, app.Store, cfg.MaxTokens)),
			)

			pc, err := p.Execute(ctx, pipeline.NewContext())
			if err != nil {
				job.Fail(err)
				return err
			}

			app.Render.Title("Weekly council cycle " + pc.Meta(stages.MetaWeekID))
			if pitches, ok := pipeline.Value[[]models.Pitch](pc, stages.KeyPitches); ok {
				app.Render.Pitches(pitches)
			}
			if reviews, ok := pipeline.Value[[]models.PeerReview](pc, stages.KeyReviews); ok {
				app.Render.Reviews(reviews)
			}
			decision, _ := pipeline.Value[models.ChairmanDecision](pc, stages.KeyDecision)
			app.Render.Decision(decision)

			if skipExecution || app.Broker == nil {
				job.Complete()
				return nil
			}

			approved := autoApprove
			if !approved && decision.SelectedTrade.Direction != models.Flat {
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Submit %s %s at conviction %+.1f to all accounts?",
						decision.SelectedTrade.Direction, decision.SelectedTrade.Instrument, decision.Conviction),
				}
				if err := survey.AskOne(prompt, &approved); err != nil {
					return err
				}
			}

			pc = pc.Set(stages.KeyApproved, approved)
			exec := track(job, stages.NewExecutionStage(app.Broker, cfg.TradeOwnBook))
			if pc, err = exec.Execute(ctx, pc); err != nil {
				job.Fail(err)
				return err
			}

			job.Complete()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "Approve execution without prompting")
	cmd.Flags().BoolVar(&skipExecution, "no-execute", false, "Stop after the chairman decision")
	return cmd
}

// newCheckpointCmd re-evaluates open positions against the week's frozen
// snapshot at one checkpoint time.
func newCheckpointCmd(cfg *config.Config) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Run an intraday checkpoint over all open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Broker == nil {
				return errors.New("no brokerage accounts configured; set ALPACA_ACCOUNTS")
			}

			if at == "" {
				at = nearestCheckpoint(time.Now())
			}

			job := models.NewJobState(uuid.NewString(), "checkpoint")
			job.Start()

			p := pipeline.New(
				track(job, stages.NewSnapshotStage(app.Builder, app.Store, false)),
				track(job, stages.NewDecisionLoadStage(app.Store)),
				track(job, stages.NewCheckpointStage(app.Chairman, app.Broker, app.Quotes, app.Store, at, cfg.MaxTokens)),
			)

			pc, err := p.Execute(ctx, pipeline.NewContext())
			if err != nil {
				job.Fail(err)
				return err
			}

			app.Render.Title("Checkpoint " + at)
			actions, _ := pipeline.Value[[]models.CheckpointAction](pc, stages.KeyCheckpointActions)
			app.Render.CheckpointActions(actions)

			job.Complete()
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Checkpoint time label, e.g. 14:00 (default: nearest)")
	return cmd
}

// newStatusCmd prints the stored decision for the current week and the
// live positions.
func newStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this week's decision and open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			weekID := models.WeekID(time.Now())
			app.Render.Title("Council status " + weekID)

			decision, err := app.Store.LoadChairmanDecision(ctx, weekID)
			if err != nil {
				return err
			}
			if decision == nil {
				fmt.Println("No decision recorded this week. Run `council run` first.")
			} else {
				app.Render.Decision(*decision)
			}

			if app.Broker != nil {
				positions, err := app.Broker.GetAllPositions(ctx)
				if err != nil {
					return err
				}
				app.Render.Positions(positions)
			}
			return nil
		},
	}
}

// newConfigCmd prints the resolved configuration and roster.
func newConfigCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := config.LoadRoster(cfg.RosterPath)
			if err != nil {
				return err
			}

			fmt.Printf("Data dir:      %s\n", cfg.DataDir)
			fmt.Printf("Database:      %s\n", cfg.DBPath)
			fmt.Printf("Roster:        %s\n", cfg.RosterPath)
			fmt.Printf("LLM rate:      %.1f/s, max tokens %d\n", cfg.LLMRatePerSec, cfg.MaxTokens)
			fmt.Printf("Own book:      %v\n", cfg.TradeOwnBook)
			fmt.Printf("Accounts:      %d configured\n", len(cfg.Accounts))
			fmt.Println("\nAgents:")
			for _, a := range roster.Agents {
				fmt.Printf("  %-14s %s:%s (temp %.1f)\n", a.Name, a.Provider, a.Model, a.Temperature)
			}
			fmt.Printf("Chairman:       %s:%s\n", roster.Chairman.Provider, roster.Chairman.Model)
			return nil
		},
	}
}

// nearestCheckpoint picks the default checkpoint label closest before or
// at the wall clock, from the default monitoring plan.
func nearestCheckpoint(now time.Time) string {
	labels := models.DefaultMonitoringPlan().Checkpoints
	current := now.Format("15:04")
	chosen := labels[0]
	for _, label := range labels {
		if label <= current {
			chosen = label
		}
	}
	return chosen
}

// trackedStage marks a job milestone after the wrapped stage completes.
type trackedStage struct {
	inner pipeline.Stage
	job   *models.JobState
}

func track(job *models.JobState, s pipeline.Stage) pipeline.Stage {
	return trackedStage{inner: s, job: job}
}

func (t trackedStage) Name() string { return t.inner.Name() }

func (t trackedStage) Execute(ctx context.Context, pc pipeline.Context) (pipeline.Context, error) {
	next, err := t.inner.Execute(ctx, pc)
	if err == nil {
		t.job.MarkStage(t.inner.Name())
	}
	return next, err
}
