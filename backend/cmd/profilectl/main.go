// profilectl is an operational CLI for the mastery engine: apply learning
// events, inspect profiles, manage the learning plan, and maintain the alias
// table. These are the same operations the conversational orchestration
// layer calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"
	"mindcoach/backend/internal/concept"
	"mindcoach/backend/internal/profile"
	"mindcoach/backend/internal/services"
	"mindcoach/backend/pkg/config"
	"mindcoach/backend/pkg/logger"
)

const usage = `Usage: profilectl <command> [flags] [args]

Commands:
  apply    -user U -activity A -conversation C  <concept>...   apply a learning event
  list     -user U                                             all profiles, best first
  weak     -user U -limit N                                    weakest profiles by understanding
  delete   -user U -concept KEY                                delete one profile row
  plan     -user U [add|remove|show] [KEY]                     manage the learning plan
  alias    -alias A -canonical C                               append one alias pair
  lineage  -user U <conversation-id>...                        concepts touched by conversations
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Env); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	manager, err := services.NewManager(cfg)
	if err != nil {
		logger.Get().Fatal("Failed to initialize engine", zap.Error(err))
	}
	defer manager.Close()

	ctx := context.Background()
	if err := run(ctx, manager, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "profilectl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, manager *services.Manager, command string, args []string) error {
	switch command {
	case "apply":
		fs := flag.NewFlagSet("apply", flag.ExitOnError)
		user := fs.String("user", "", "user id (default anonymous)")
		activity := fs.String("activity", "", "activity label (explain, derive, practice, recall)")
		conversation := fs.String("conversation", "", "conversation id for lineage")
		fs.Parse(args)

		vec, err := manager.ApplyLearningEvent(ctx, fs.Args(), *activity, *user, *conversation)
		if err != nil {
			return err
		}
		fmt.Printf("applied delta u=%.3f r=%.3f a=%.3f to %d mention(s)\n", vec.U, vec.R, vec.A, len(fs.Args()))
		return nil

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		user := fs.String("user", "", "user id")
		fs.Parse(args)

		profiles, err := manager.GetAllProfiles(ctx, *user)
		if err != nil {
			return err
		}
		printProfiles(profiles)
		return nil

	case "weak":
		fs := flag.NewFlagSet("weak", flag.ExitOnError)
		user := fs.String("user", "", "user id")
		limit := fs.Int("limit", 10, "max results")
		fs.Parse(args)

		profiles, err := manager.GetWeakProfiles(ctx, *user, *limit)
		if err != nil {
			return err
		}
		printProfiles(profiles)
		return nil

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		user := fs.String("user", "", "user id")
		key := fs.String("concept", "", "canonical concept key")
		fs.Parse(args)
		if *key == "" {
			return fmt.Errorf("-concept is required")
		}
		return manager.DeleteProfile(ctx, *key, *user)

	case "plan":
		fs := flag.NewFlagSet("plan", flag.ExitOnError)
		user := fs.String("user", "", "user id")
		fs.Parse(args)

		rest := fs.Args()
		action := "show"
		if len(rest) > 0 {
			action = rest[0]
		}
		switch action {
		case "show":
			plan, err := manager.GetPlan(ctx, *user)
			if err != nil {
				return err
			}
			for _, key := range plan {
				fmt.Println(key)
			}
			return nil
		case "add", "remove":
			if len(rest) < 2 {
				return fmt.Errorf("plan %s requires a concept key", action)
			}
			if action == "add" {
				return manager.AddToPlan(ctx, rest[1], *user)
			}
			return manager.RemoveFromPlan(ctx, rest[1], *user)
		default:
			return fmt.Errorf("unknown plan action %q", action)
		}

	case "alias":
		fs := flag.NewFlagSet("alias", flag.ExitOnError)
		alias := fs.String("alias", "", "alias text")
		canonical := fs.String("canonical", "", "canonical concept name")
		fs.Parse(args)
		if *alias == "" || *canonical == "" {
			return fmt.Errorf("-alias and -canonical are required")
		}
		manager.AppendAliases([]concept.AliasPair{{Alias: *alias, Canonical: *canonical}})
		return nil

	case "lineage":
		fs := flag.NewFlagSet("lineage", flag.ExitOnError)
		user := fs.String("user", "", "user id")
		fs.Parse(args)

		keys, err := manager.LineageConcepts(ctx, fs.Args(), *user)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printProfiles(profiles []profile.ConceptProfile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONCEPT\tU\tR\tA\tSCORE\tTIMES\tLAST PRACTICE")
	for _, p := range profiles {
		last := ""
		if !p.LastPractice.IsZero() {
			last = p.LastPractice.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%d\t%s\n",
			p.ConceptKey, p.U, p.R, p.A, p.Score(), p.Times, last)
	}
	w.Flush()
}
