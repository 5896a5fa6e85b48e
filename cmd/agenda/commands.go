package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tktechnologies/meeting-agent/internal/app"
	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/repo"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

func planCmd() *cobra.Command {
	var opts engine.PlanOptions
	cmd := &cobra.Command{
		Use:   "plan [subject]",
		Short: "Plan a meeting agenda",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Subject = args[0]
			}
			if strings.TrimSpace(opts.Subject) == "" && strings.TrimSpace(opts.Prompt) == "" {
				return errors.New("a subject or --prompt is required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.OrgID = orgID(a)
				opts.ActorID = actorID()
				p, err := a.Engine.PlanAgenda(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProposal(p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "free-form request, e.g. \"30 min sync about the vendor migration\"")
	cmd.Flags().IntVar(&opts.DurationMinutes, "duration", 0, "meeting length in minutes (default from config)")
	cmd.Flags().StringVar(&opts.Language, "language", "", "agenda language: en-US or pt-BR")
	cmd.Flags().StringVar(&opts.MacroMode, "macro-mode", "", "workstream mode: auto, strict or off")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "store the proposal")
	return cmd
}

func printProposal(p domain.AgendaProposal) {
	if p.Status == domain.ProposalUnmetPrecondition {
		fmt.Printf("No agenda planned: %s\n", p.Reason)
		return
	}
	fmt.Print(compose.Markdown(p.Agenda, p.Metadata.Language))
	fmt.Println()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendRows([]table.Row{
		{"status", p.Status},
		{"choice", p.Choice},
		{"facts", len(p.SupportingFactIDs)},
	})
	if p.Metadata.Nudge != "" {
		tw.AppendRow(table.Row{"nudge", p.Metadata.Nudge})
	}
	if p.Metadata.FallbackReason != "" {
		tw.AppendRow(table.Row{"fallback", p.Metadata.FallbackReason})
	}
	if p.ID != "" {
		tw.AppendRow(table.Row{"id", p.ID})
	}
	tw.Render()
}

func workstreamCmd() *cobra.Command {
	ws := &cobra.Command{
		Use:     "workstream",
		Aliases: []string{"ws"},
		Short:   "Manage workstreams",
	}
	ws.AddCommand(workstreamListCmd())
	ws.AddCommand(workstreamCreateCmd())
	ws.AddCommand(workstreamUpdateCmd())
	ws.AddCommand(workstreamLinkCmd())
	ws.AddCommand(workstreamAutoCmd())
	return ws
}

func workstreamListCmd() *cobra.Command {
	var filters store.WorkstreamFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workstreams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListWorkstreams(ctx, orgID(a), filters)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, w := range items {
					rows = append(rows, table.Row{w.ID, w.Title, w.Status, w.Health, w.Priority, w.FactCount, strings.Join(w.Tags, ",")})
				}
				return printTable(items, table.Row{"ID", "Title", "Status", "Health", "Priority", "Facts", "Tags"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&filters.Status, "status", "", "active, paused or archived")
	cmd.Flags().StringVar(&filters.Query, "query", "", "title search")
	cmd.Flags().IntVar(&filters.MinPriority, "min-priority", 0, "minimum priority")
	cmd.Flags().IntVar(&filters.Limit, "limit", 50, "max rows")
	return cmd
}

func workstreamCreateCmd() *cobra.Command {
	var opts engine.WorkstreamCreateOptions
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a workstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.OrgID = orgID(a)
				opts.ActorID = actorID()
				w, err := a.Engine.CreateWorkstream(ctx, opts)
				if err != nil {
					return err
				}
				return printWorkstream(w)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.ID, "id", "", "explicit id")
	f.StringVar(&opts.Description, "description", "", "description")
	f.StringVar(&opts.Status, "status", "", "active, paused or archived")
	f.StringVar(&opts.Health, "health", "", "green, yellow or red")
	f.IntVar(&opts.Priority, "priority", 0, "priority 0..3")
	f.StringVar(&opts.Owner, "owner", "", "owner")
	f.StringVar(&opts.StartDate, "start-date", "", "start date")
	f.StringVar(&opts.TargetDate, "target-date", "", "target date")
	f.StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	return cmd
}

func workstreamUpdateCmd() *cobra.Command {
	var (
		title, description, status, health, owner, target string
		priority                                          int
		tags                                              []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update workstream fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := engine.WorkstreamUpdateOptions{OrgID: orgID(a), ID: args[0], ActorID: actorID()}
				f := cmd.Flags()
				if f.Changed("title") {
					opts.Title = &title
				}
				if f.Changed("description") {
					opts.Description = &description
				}
				if f.Changed("status") {
					opts.Status = &status
				}
				if f.Changed("health") {
					opts.Health = &health
				}
				if f.Changed("owner") {
					opts.Owner = &owner
				}
				if f.Changed("target-date") {
					opts.TargetDate = &target
				}
				if f.Changed("priority") {
					opts.Priority = &priority
				}
				if f.Changed("tag") {
					opts.Tags, opts.SetTags = tags, true
				}
				w, err := a.Engine.UpdateWorkstream(ctx, opts)
				if err != nil {
					return err
				}
				return printWorkstream(w)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "title")
	f.StringVar(&description, "description", "", "description")
	f.StringVar(&status, "status", "", "active, paused or archived")
	f.StringVar(&health, "health", "", "green, yellow or red")
	f.StringVar(&owner, "owner", "", "owner")
	f.StringVar(&target, "target-date", "", "target date")
	f.IntVar(&priority, "priority", 0, "priority 0..3")
	f.StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	return cmd
}

func workstreamLinkCmd() *cobra.Command {
	var weight float64
	cmd := &cobra.Command{
		Use:   "link <workstream-id> <fact-id>...",
		Short: "Link facts to a workstream",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Engine.Repo.Workstream(ctx, orgID(a), args[0]); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("workstream %s not found", args[0])
					}
					return err
				}
				if err := a.Engine.LinkFacts(ctx, orgID(a), args[0], args[1:], store.ClampWeight(weight), actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"workstream_id": args[0], "linked": len(args) - 1})
				}
				fmt.Printf("linked %d facts to %s\n", len(args)-1, args[0])
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 1, "link weight 0..1")
	return cmd
}

func workstreamAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Cluster unlinked facts into auto workstreams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.AutoWorkstreams(ctx, orgID(a), actorID())
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(res.Created)+len(res.Suggested))
				for _, w := range res.Created {
					rows = append(rows, table.Row{"created", w.ID, w.Title, w.FactCount})
				}
				for _, c := range res.Suggested {
					rows = append(rows, table.Row{"suggested", "", c.Title, len(c.FactIDs)})
				}
				return printTable(res, table.Row{"Result", "ID", "Title", "Facts"}, rows)
			})
		},
	}
}

func printWorkstream(w domain.Workstream) error {
	rows := []table.Row{
		{"id", w.ID},
		{"title", w.Title},
		{"status", w.Status},
		{"health", w.Health},
		{"priority", w.Priority},
		{"owner", w.Owner},
		{"tags", strings.Join(w.Tags, ",")},
	}
	return printTable(w, table.Row{"Field", "Value"}, rows)
}

func factCmd() *cobra.Command {
	fact := &cobra.Command{Use: "fact", Short: "Manage facts"}
	fact.AddCommand(factAddCmd())
	fact.AddCommand(factSearchCmd())
	fact.AddCommand(factRecentCmd())
	fact.AddCommand(factStatusCmd())
	return fact
}

func factAddCmd() *cobra.Command {
	var (
		opts     engine.FactCreateOptions
		evidence []string
	)
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Record a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Text = args[0]
			for _, q := range evidence {
				if q = strings.TrimSpace(q); q != "" {
					opts.Evidence = append(opts.Evidence, domain.Evidence{Quote: q})
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.OrgID = orgID(a)
				opts.ActorID = actorID()
				f, err := a.Engine.AddFact(ctx, opts)
				if err != nil {
					return err
				}
				return printFacts([]domain.Fact{f}, f)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.ID, "id", "", "explicit id")
	f.StringVar(&opts.Type, "type", "", "decision, risk, action_item, status, goal or other")
	f.StringVar(&opts.Status, "status", "", "draft, proposed, published or validated")
	f.StringVar(&opts.Owner, "owner", "", "owner")
	f.StringVar(&opts.DueAt, "due", "", "due date (RFC3339 or YYYY-MM-DD)")
	f.StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	f.StringArrayVar(&evidence, "evidence", nil, "evidence quote (repeatable)")
	f.StringVar(&opts.WorkstreamID, "workstream", "", "link to workstream")
	return cmd
}

func factSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search facts by text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.SearchFacts(ctx, orgID(a), args[0], limit)
				if err != nil {
					return err
				}
				return printFacts(items, items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func factRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.GetRecentFacts(ctx, orgID(a), limit)
				if err != nil {
					return err
				}
				return printFacts(items, items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func factStatusCmd() *cobra.Command {
	var auto bool
	cmd := &cobra.Command{
		Use:   "status <fact-id> <status>",
		Short: "Change a fact's status, or auto-validate evidenced drafts with --auto",
		Args: func(cmd *cobra.Command, args []string) error {
			if auto {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if auto {
					res, err := a.Engine.AutoValidateFacts(ctx, orgID(a), actorID())
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(res)
					}
					fmt.Printf("Checked %d draft/proposed facts, validated %d\n", res.Checked, len(res.Validated))
					if len(res.Validated) == 0 {
						return nil
					}
					return printFacts(res.Validated, res)
				}
				f, err := a.Engine.SetFactStatus(ctx, orgID(a), args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printFacts([]domain.Fact{f}, f)
			})
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "validate draft/proposed facts that carry an evidence quote")
	return cmd
}

func printFacts(items []domain.Fact, v any) error {
	rows := make([]table.Row, 0, len(items))
	for _, f := range items {
		due := ""
		if f.DueAt != nil {
			due = *f.DueAt
		}
		rows = append(rows, table.Row{f.ID, f.Type, f.Status, truncate(f.Payload.Text, 60), f.Payload.Owner, due})
	}
	return printTable(v, table.Row{"ID", "Type", "Status", "Text", "Owner", "Due"}, rows)
}

func meetingCmd() *cobra.Command {
	m := &cobra.Command{Use: "meeting", Short: "Record held meetings"}
	var opts engine.MeetingOptions
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Record a meeting and its open items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.OrgID = orgID(a)
				opts.ActorID = actorID()
				mt, err := a.Engine.RecordMeeting(ctx, opts)
				if err != nil {
					return err
				}
				rows := []table.Row{{mt.ID, mt.Title, mt.Subject, mt.HeldAt, len(mt.OpenItems)}}
				return printTable(mt, table.Row{"ID", "Title", "Subject", "Held", "Open items"}, rows)
			})
		},
	}
	add.Flags().StringVar(&opts.Subject, "subject", "", "meeting subject")
	add.Flags().StringVar(&opts.HeldAt, "held-at", "", "when it was held (default now)")
	add.Flags().StringArrayVar(&opts.OpenItems, "open-item", nil, "open item (repeatable)")
	m.AddCommand(add)
	return m
}

func proposalCmd() *cobra.Command {
	p := &cobra.Command{Use: "proposal", Short: "Inspect stored agenda proposals"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored proposals, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListProposals(ctx, orgID(a), limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.ID, it.Agenda.Title, it.Agenda.Minutes, it.Status, it.Choice, it.CreatedAt})
				}
				return printTable(items, table.Row{"ID", "Title", "Minutes", "Status", "Choice", "Created"}, rows)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "max rows")
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				prop, err := a.Engine.Repo.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				if prop.OrgID != orgID(a) {
					return fmt.Errorf("proposal %s: %w", args[0], repo.ErrNotFound)
				}
				if viper.GetBool("json") {
					return printJSON(prop)
				}
				printProposal(prop)
				return nil
			})
		},
	}
	p.AddCommand(list, show)
	return p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Inspect the event log"}
	var (
		n       int
		evtType string
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.LatestEvents(ctx, n, 0, orgID(a), evtType)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, e := range items {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID})
				}
				return printTable(items, table.Row{"ID", "TS", "Type", "Kind", "Entity", "Actor"}, rows)
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	ev.AddCommand(tail)
	return ev
}
