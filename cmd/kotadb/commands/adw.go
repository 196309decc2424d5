package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/spf13/cobra"

	"github.com/kotadb/kotadb/internal/adw"
	"github.com/kotadb/kotadb/internal/agent"
	"github.com/kotadb/kotadb/internal/checkpoint"
	"github.com/kotadb/kotadb/internal/pr"
	"github.com/kotadb/kotadb/internal/wfcontext"
	"github.com/kotadb/kotadb/internal/worktree"
)

// NewADWCommand creates the autonomous workflow command.
func NewADWCommand(opts *GlobalOptions) *cobra.Command {
	var (
		issueNumber int
		issueTitle  string
		issueBody   string
		skipImprove bool
	)

	cmd := &cobra.Command{
		Use:   "adw",
		Short: "Run the autonomous developer workflow for one issue",
		Long: `Run the full workflow for a GitHub issue: analysis, plan, build,
improve and PR. Progress is checkpointed after every phase; rerunning the
command for the same issue resumes at the first incomplete phase.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			if issueNumber <= 0 {
				return adw.Exitf(adw.ExitInvalidArgs, errors.New("--issue is required"))
			}

			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			issue := adw.Issue{Number: issueNumber, Title: issueTitle, Body: issueBody}

			if issue.Title == "" {
				fetched, fetchErr := fetchIssue(app.Cfg.Automation.Repo, issueNumber)
				if fetchErr != nil {
					return adw.Exitf(adw.ExitGitHubAPI, fetchErr)
				}

				issue = *fetched
			}

			orchestrator, err := buildOrchestrator(app, skipImprove)
			if err != nil {
				return err
			}

			// Signals cancel at the next phase boundary instead of killing
			// the agent mid-write.
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			go func() {
				<-sigs
				app.Providers.Logger.Warn("cancellation requested, stopping at phase boundary")
				orchestrator.Cancel()
			}()

			result, err := orchestrator.Run(cobraCmd.Context(), issue)
			if result != nil {
				fmt.Fprintf(os.Stdout, "issue #%d: success=%t pr=%s cost=$%.4f duration=%dms\n",
					result.IssueNumber, result.Success, result.PRURL, result.CostUSD, result.DurationMS)
			}

			return err
		},
	}

	cmd.Flags().IntVar(&issueNumber, "issue", 0, "GitHub issue number")
	cmd.Flags().StringVar(&issueTitle, "title", "", "issue title (skips the GitHub fetch)")
	cmd.Flags().StringVar(&issueBody, "body", "", "issue body (with --title)")
	cmd.Flags().BoolVar(&skipImprove, "skip-improve", false, "skip the optional improve phase")

	return cmd
}

// buildOrchestrator wires orchestrator collaborators from app config.
func buildOrchestrator(app *App, skipImprove bool) (*adw.Orchestrator, error) {
	cfg := app.Cfg

	if cfg.Automation.Repo == "" {
		return nil, adw.Exitf(adw.ExitMissingEnv, errors.New("automation.repo is not configured"))
	}

	engine := agent.NewClaudeEngine(cfg.Agent.Binary, cfg.Agent.Model, app.Providers.Logger)

	validator := &pr.Validator{
		TypeCheckCmd: cfg.Validation.TypeCheckCmd,
		TestCmd:      cfg.Validation.TestCmd,
		AppRoot:      cfg.Validation.AppRoot,
	}

	prModule := pr.NewModule(cfg.Automation.Repo, validator, app.Providers.Logger)

	dataDir := cfg.Automation.DataDir

	return adw.NewOrchestrator(
		engine,
		wfcontext.New(app.Store),
		checkpoint.NewStore(dataDir+"/checkpoints"),
		checkpoint.NewManifest(dataDir),
		worktree.NewManager(cfg.Workspace.Root, cfg.Automation.BaseBranch, app.Providers.Logger),
		prModule,
		adw.Config{
			Model:        cfg.Agent.Model,
			CuratorModel: cfg.Agent.CuratorModel,
			PhaseTimeout: cfg.Agent.PhaseTimeout,
			SkipImprove:  skipImprove || cfg.Automation.SkipImprove,
			BaseBranch:   cfg.Automation.BaseBranch,
		},
		app.Providers.Logger,
	), nil
}

type issuePayload struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// fetchIssue pulls title and body from the GitHub REST API.
func fetchIssue(repo string, number int) (*adw.Issue, error) {
	if repo == "" {
		return nil, errors.New("automation.repo is not configured; pass --title/--body instead")
	}

	client, err := api.DefaultRESTClient()
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	var payload issuePayload

	err = client.Get(fmt.Sprintf("repos/%s/issues/%d", repo, number), &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch issue #%d: %w", number, err)
	}

	return &adw.Issue{Number: payload.Number, Title: payload.Title, Body: payload.Body}, nil
}
