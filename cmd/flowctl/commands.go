package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/channels/bitrix"
	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/delayscheduler"
	"github.com/Abraxas-365/chatflow/engine/engineinfra"
	"github.com/Abraxas-365/chatflow/engine/flowexec"
	"github.com/Abraxas-365/chatflow/engine/flowsrv"
	"github.com/Abraxas-365/chatflow/engine/nodeexec"
	"github.com/Abraxas-365/chatflow/engine/predicate"
	"github.com/Abraxas-365/chatflow/pkg/agent"
	"github.com/Abraxas-365/chatflow/pkg/auth"
	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/pkg/media"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow.json|flow.yaml>",
		Short: "Check a flow document the way save_flow does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readFlowDocument(args[0])
			if err != nil {
				return err
			}

			validator, err := engine.NewFlowValidator()
			if err != nil {
				return err
			}
			graph, err := validator.Validate(doc)
			if err != nil {
				return err
			}

			entry, _ := graph.EntryPoint()
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %d nodes, %d edges, entry node %q\n",
				args[0], len(graph.Nodes), len(graph.Edges), entry)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <flow.json|flow.yaml>",
		Short: "Execute a flow locally",
		Long: "Execute a flow locally. Messages are printed unless --bitrix is set, in which " +
			"case BITRIX_WEBHOOK_URL receives them. Delays run on in-process timers.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, _ := cmd.Flags().GetString("dialog")
			vars, _ := cmd.Flags().GetStringToString("var")
			replies, _ := cmd.Flags().GetStringSlice("reply")
			useBitrix, _ := cmd.Flags().GetBool("bitrix")
			threshold, _ := cmd.Flags().GetDuration("sync-threshold")

			doc, err := readFlowDocument(args[0])
			if err != nil {
				return err
			}

			var gateway engine.Gateway = newConsoleGateway(cmd.OutOrStdout())
			if useBitrix {
				cfg := config.BitrixConfig{
					WebhookURL: strings.TrimRight(os.Getenv("BITRIX_WEBHOOK_URL"), "/"),
					BotID:      os.Getenv("BITRIX_BOT_ID"),
				}
				if cfg.WebhookURL == "" {
					return fmt.Errorf("--bitrix requires BITRIX_WEBHOOK_URL")
				}
				gateway = bitrix.NewClient(cfg)
			}

			svc, scheduler, err := newLocalService(gateway, threshold)
			if err != nil {
				return err
			}

			ctx := context.Background()
			id, err := svc.SaveFlow(ctx, doc)
			if err != nil {
				return err
			}

			variables := make(map[string]any, len(vars))
			for k, v := range vars {
				variables[k] = v
			}

			dialogID := kernel.NewDialogID(dialog)
			res, err := svc.ExecuteFlow(ctx, id, dialogID, variables)
			if err != nil {
				return err
			}

			for _, reply := range replies {
				if !res.Suspended() || res.Checkpoint == nil || res.Checkpoint.Reason != engine.SuspendForReply {
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "👤 %s\n", reply)
				next, ok, err := svc.ResumeWithReply(ctx, dialogID, reply)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				res = next
			}

			scheduler.Wait()
			return printResult(cmd, res)
		},
	}

	cmd.Flags().String("dialog", "local", "Dialog id the run sends messages to")
	cmd.Flags().StringToString("var", nil, "Initial variables (key=value, repeatable)")
	cmd.Flags().StringSlice("reply", nil, "Replies fed to question nodes in order")
	cmd.Flags().Bool("bitrix", false, "Send through the Bitrix24 webhook instead of printing")
	cmd.Flags().Duration("sync-threshold", delayscheduler.DefaultSyncThreshold, "Longest interval that runs inline")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the flow API (uses JWT_SECRET and JWT_ISSUER)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg := config.AuthConfig{
				JWTSecret: os.Getenv("JWT_SECRET"),
				JWTIssuer: os.Getenv("JWT_ISSUER"),
			}
			if !cfg.Enabled() {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			token, err := auth.NewJWTService(cfg).GenerateToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "flowctl", "Token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// newLocalService wires the engine against in-memory storage.
func newLocalService(gateway engine.Gateway, threshold time.Duration) (*flowsrv.FlowService, *delayscheduler.MemoryDelayScheduler, error) {
	validator, err := engine.NewFlowValidator()
	if err != nil {
		return nil, nil, err
	}

	expr := engine.NewCelEvaluator()
	scheduler := delayscheduler.NewMemoryDelayScheduler(delayscheduler.Options{SyncThreshold: threshold})
	replies := engineinfra.NewMemoryReplyRegistry(engineinfra.DefaultReplyTTL)

	flowEngine, err := flowexec.NewFlowEngine(flowexec.Options{
		Scheduler: scheduler,
		Replies:   replies,
	}, nodeexec.NewExecutors(nodeexec.Dependencies{
		Gateway:      gateway,
		Predicate:    predicate.NewCRMPredicate(gateway, expr),
		Model:        agent.NewReplier(nil, agent.Options{}),
		Media:        media.NewS3Resolver(config.MediaConfig{}),
		Expr:         expr,
		Delay:        scheduler,
		DefaultModel: agent.DefaultModel,
	})...)
	if err != nil {
		return nil, nil, err
	}

	svc := flowsrv.NewFlowService(engineinfra.NewMemoryFlowRepository(), validator, flowEngine, replies, 0)
	scheduler.SetHandler(svc.ResumeContinuation)
	return svc, scheduler, nil
}

// readFlowDocument loads a flow as JSON. YAML files are converted.
func readFlowDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(raw)
	default:
		return raw, nil
	}
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML flow: %w", err)
	}
	return json.Marshal(doc)
}

func printResult(cmd *cobra.Command, res *engine.ExecutionResult) error {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if res.Failed() {
		return fmt.Errorf("run failed: %s", res.Error)
	}
	return nil
}
