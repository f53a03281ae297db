package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/obsidian-owl/floe/internal/audit"
	"github.com/obsidian-owl/floe/internal/config"
	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/floelog"
	"github.com/obsidian-owl/floe/internal/gate"
	"github.com/obsidian-owl/floe/internal/lock"
	"github.com/obsidian-owl/floe/internal/metrics"
	"github.com/obsidian-owl/floe/internal/policy"
	"github.com/obsidian-owl/floe/internal/promotion"
	"github.com/obsidian-owl/floe/internal/registry"
	"github.com/obsidian-owl/floe/internal/resilience"
	"github.com/obsidian-owl/floe/internal/signing"
	"github.com/obsidian-owl/floe/internal/tracing"
	"github.com/obsidian-owl/floe/internal/webhook"
)

func main() {
	err := run(context.Background(), os.Args[1:])
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(floeerr.ExitCode(err))
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return errors.New("no command specified")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := floelog.New("floectl", cfg.Logging.Level, cfg.Logging.Format)

	switch args[0] {
	case "promote":
		return runPromote(ctx, cfg, logger, args[1:])
	case "rollback":
		return runRollback(ctx, cfg, logger, args[1:])
	case "status":
		return runStatus(ctx, cfg, logger, args[1:])
	case "lock":
		return runLock(ctx, cfg, logger, args[1:])
	case "unlock":
		return runUnlock(ctx, cfg, logger, args[1:])
	case "analyze-rollback-impact":
		return runAnalyzeImpact(ctx, cfg, logger, args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println(`floectl - artifact promotion lifecycle CLI

Usage:
  floectl <command> [flags]

Commands:
  promote                   Promote a version from one environment to the next
  rollback                  Roll an environment back to its previous digest
  status                    Show a tag's cross-environment promotion state
  lock                      Lock an environment against promotions/rollbacks
  unlock                    Unlock an environment
  analyze-rollback-impact   Report what a rollback would change, without side effects`)
}

// buildController wires every collaborator the same way for every
// subcommand: real OCI registry, cosign-backed signature verification,
// the gate runner with the policy_compliance gate registered, the lock manager,
// the audit store, and the webhook notifier.
func buildController(cfg *config.Config, logger *floelog.Logger) (*promotion.Controller, error) {
	breakerCfg := resilience.DefaultRegistryCBConfig(logger)
	reg := registry.NewOCIAdapter(cfg.Registry.Repository, cfg.Registry.Insecure, breakerCfg)

	trusted, err := signing.NewTrustedPatterns(cfg.Signing.TrustedSignerPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile trusted signer patterns: %w", err)
	}
	verifier := signing.NewCosignVerifier(trusted)

	engine, err := policy.NewEngine(policy.EngineConfig{EnforcementLevel: "strict"})
	if err != nil {
		return nil, fmt.Errorf("build policy engine: %w", err)
	}

	runner := gate.NewRunner(cfg.Gates.FanOut, cfg.Gates.PerGateTimeout)
	runner.Register(gate.NewPolicyGate(engine))

	locks := lock.NewManager(reg)
	auditStore := audit.NewStore(reg)

	m := metrics.New("floe-promotion-controller")
	tracer := tracing.NewGlobalTracer("floe-promotion-controller")

	var subscribers []webhook.Subscriber
	for _, s := range cfg.Webhooks {
		subscribers = append(subscribers, webhook.NewSubscriber(s))
	}
	notifier := webhook.New(subscribers, logger, m, tracer)

	return promotion.New(cfg, reg, verifier, runner, locks, auditStore, notifier, logger, m), nil
}

func runPromote(ctx context.Context, cfg *config.Config, logger *floelog.Logger, args []string) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tag := fs.String("tag", "", "Artifact version tag (required)")
	from := fs.String("from", "", "Source environment (required)")
	to := fs.String("to", "", "Target environment (required)")
	operator := fs.String("operator", "", "Operator identity (required)")
	dryRun := fs.Bool("dry-run", false, "Evaluate without mutating the registry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tag == "" || *from == "" || *to == "" || *operator == "" {
		return errors.New("--tag, --from, --to, and --operator are required")
	}

	ctrl, err := buildController(cfg, logger)
	if err != nil {
		return err
	}
	record, err := ctrl.Promote(ctx, promotion.PromoteRequest{
		Tag: *tag, From: *from, To: *to, Operator: *operator, DryRun: *dryRun,
	})
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runRollback(ctx context.Context, cfg *config.Config, logger *floelog.Logger, args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tag := fs.String("tag", "", "Artifact version tag (required)")
	env := fs.String("env", "", "Environment to roll back (required)")
	reason := fs.String("reason", "", "Reason for the rollback (required)")
	operator := fs.String("operator", "", "Operator identity (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tag == "" || *env == "" || *reason == "" || *operator == "" {
		return errors.New("--tag, --env, --reason, and --operator are required")
	}

	ctrl, err := buildController(cfg, logger)
	if err != nil {
		return err
	}
	record, err := ctrl.Rollback(ctx, promotion.RollbackRequest{
		Tag: *tag, Environment: *env, Reason: *reason, Operator: *operator,
	})
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runStatus(ctx context.Context, cfg *config.Config, logger *floelog.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tag := fs.String("tag", "", "Artifact version tag (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tag == "" {
		return errors.New("--tag is required")
	}

	ctrl, err := buildController(cfg, logger)
	if err != nil {
		return err
	}
	resp, err := ctrl.Status(ctx, *tag)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runLock(ctx context.Context, cfg *config.Config, logger *floelog.Logger, args []string) error {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	env := fs.String("env", "", "Environment to lock (required)")
	reason := fs.String("reason", "", "Reason for the lock (required)")
	operator := fs.String("operator", "", "Operator identity (required)")
	ttl := fs.Duration("ttl", 0, "Lock time-to-live, 0 means no expiry")
	force := fs.Bool("force", false, "Force-lock over an existing lock held by another operator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *env == "" || *reason == "" || *operator == "" {
		return errors.New("--env, --reason, and --operator are required")
	}

	manager, err := buildLockManager(cfg, logger)
	if err != nil {
		return err
	}
	lockState, err := manager.Lock(ctx, *env, *reason, *operator, *ttl, *force)
	if err != nil {
		return err
	}
	return printJSON(lockState)
}

func runUnlock(ctx context.Context, cfg *config.Config, logger *floelog.Logger, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	env := fs.String("env", "", "Environment to unlock (required)")
	operator := fs.String("operator", "", "Operator identity (required)")
	force := fs.Bool("force", false, "Force-unlock a lock held by another operator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *env == "" || *operator == "" {
		return errors.New("--env and --operator are required")
	}

	manager, err := buildLockManager(cfg, logger)
	if err != nil {
		return err
	}
	if err := manager.Unlock(ctx, *env, *operator, *force); err != nil {
		return err
	}
	fmt.Println("Unlocked.")
	return nil
}

func runAnalyzeImpact(ctx context.Context, cfg *config.Config, logger *floelog.Logger, args []string) error {
	fs := flag.NewFlagSet("analyze-rollback-impact", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tag := fs.String("tag", "", "Artifact version tag (required)")
	env := fs.String("env", "", "Environment to analyze (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tag == "" || *env == "" {
		return errors.New("--tag and --env are required")
	}

	ctrl, err := buildController(cfg, logger)
	if err != nil {
		return err
	}
	impact, err := ctrl.AnalyzeRollbackImpact(ctx, *tag, *env)
	if err != nil {
		return err
	}
	return printJSON(impact)
}

func buildLockManager(cfg *config.Config, logger *floelog.Logger) (*lock.Manager, error) {
	reg := registry.NewOCIAdapter(cfg.Registry.Repository, cfg.Registry.Insecure, resilience.DefaultRegistryCBConfig(logger))
	return lock.NewManager(reg), nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
