// Package main is the meetingai development CLI: docker-compose stack
// helpers plus an offline end-to-end demo of the processing pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
	"github.com/dyparkkk-lg/meeting-ai/internal/pipeline"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/asr"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/llm"
	"github.com/dyparkkk-lg/meeting-ai/internal/queue"
	"github.com/dyparkkk-lg/meeting-ai/internal/storage"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "meetingai: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meetingai",
		Short: "meeting-ai development CLI",
		Long: `meetingai orchestrates common development workflows: starting and
stopping the docker-compose stack (Postgres, Redis, MinIO, the API and
the worker) and running an offline pipeline demo with mock providers.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newDemoCmd(),
	)
	return cmd
}

func newUpCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the docker-compose stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "up", "--build"}
			if detach {
				composeArgs = append(composeArgs, "-d")
			}
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	return cmd
}

func newDownCmd() *cobra.Command {
	var removeVolumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the docker-compose stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "down"}
			if removeVolumes {
				composeArgs = append(composeArgs, "-v")
			}
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Remove stack volumes")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Tail logs from docker-compose services",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "logs"}
			if follow {
				composeArgs = append(composeArgs, "-f")
			}
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "F", true, "Follow log output")
	return cmd
}

// demoObjects satisfies the pipeline's object-store contract without
// any real storage; the mock transcriber never dereferences the URL.
type demoObjects struct{}

func (demoObjects) GetReadableURL(ctx context.Context, objectKey string) (string, error) {
	return "demo://" + objectKey, nil
}

func newDemoCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full pipeline in-process with mock providers",
		Long: `demo drives one meeting through every stage without Postgres, Redis
or MinIO: in-memory records, an in-process scheduler and canned
transcription/analysis results. The rendered markdown goes to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			log := logrus.New()
			log.SetOutput(os.Stderr)

			store := storage.NewMemoryStore()
			var p *pipeline.Pipeline
			sched := queue.NewInProcScheduler(nil, nil, 2, queue.DefaultMaxAttempts, queue.DefaultRetryBase, log)
			p = pipeline.New(store, demoObjects{}, asr.NewFixture(), llm.NewFixture(), sched, "en", log)
			sched.SetRunner(p, p.MarkFailed)
			sched.Start(ctx)

			meeting := &model.Meeting{ID: uuid.NewString(), Title: title}
			if err := store.CreateMeeting(ctx, meeting); err != nil {
				return err
			}
			if err := store.SetAudioObject(ctx, meeting.ID, "meetings/"+meeting.ID+"/audio.webm"); err != nil {
				return err
			}
			if err := store.UpdateMeetingStage(ctx, meeting.ID, model.StageUploaded, ""); err != nil {
				return err
			}
			if err := sched.Enqueue(ctx, model.StageTranscriptReady, meeting.ID); err != nil {
				return err
			}

			deadline := time.Now().Add(30 * time.Second)
			for time.Now().Before(deadline) {
				m, err := store.GetMeeting(ctx, meeting.ID)
				if err != nil {
					return err
				}
				switch m.Stage {
				case model.StageComplete:
					doc, err := store.GetDocument(ctx, meeting.ID)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), doc.Content)
					return nil
				case model.StageFailed:
					return fmt.Errorf("demo pipeline failed: %s", m.ErrorMessage)
				}
				time.Sleep(50 * time.Millisecond)
			}
			return fmt.Errorf("demo pipeline did not finish in time")
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "Demo Meeting", "Meeting title for the rendered document")
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Stdin = os.Stdin
	return c.Run()
}
