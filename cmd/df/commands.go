package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"domainflow/internal/domain"
	"domainflow/internal/engine"
	"domainflow/internal/listing"
)

func domainCmd() *cobra.Command {
	d := &cobra.Command{Use: "domain", Short: "Manage client domains"}
	d.AddCommand(domainListCmd())
	d.AddCommand(domainCreateCmd())
	d.AddCommand(domainShowCmd())
	d.AddCommand(domainStatusCmd("close", "Close a domain", engine.Engine.CloseDomain))
	d.AddCommand(domainStatusCmd("reopen", "Reopen a closed domain", engine.Engine.ReopenDomain))
	d.AddCommand(domainStatusCmd("pin", "Pin a domain to the top", engine.Engine.PinDomain))
	d.AddCommand(domainStatusCmd("unpin", "Unpin a domain", engine.Engine.UnpinDomain))
	d.AddCommand(domainDeleteCmd())
	d.AddCommand(domainStatsCmd())
	return d
}

func domainListCmd() *cobra.Command {
	var query, sortBy string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List domains, pinned first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stored, err := e.Preferences().Load(ctx)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("query") {
					query = stored.SearchQuery
				}
				if !cmd.Flags().Changed("sort-by") {
					sortBy = stored.SortBy
				}
				if !cmd.Flags().Changed("all") {
					all = stored.ShowClosedDomains
				}
				items, err := e.ListDomains(ctx, true)
				if err != nil {
					return err
				}
				items = listing.ComposeDomains(items, query, all, sortBy, e.Collator)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printDomains(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search name, url and description")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "created_at, name or progress")
	cmd.Flags().BoolVar(&all, "all", false, "include closed domains")
	return cmd
}

func printDomains(items []domain.Domain) {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(table.Row{"ID", "Nome", "URL", "Stato", "Fissato", "Task", "Progresso"})
	for _, d := range items {
		pin := ""
		if d.Pinned {
			pin = "*"
		}
		tw.AppendRow(table.Row{d.ID, d.Name, d.URL, d.Status, pin, fmt.Sprintf("%d/%d", d.CompletedTasks, d.TotalTasks), fmt.Sprintf("%d%%", d.Progress)})
	}
	tw.Render()
}

func domainCreateCmd() *cobra.Command {
	var in engine.DomainInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a domain; every template becomes a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDomain(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Fprintf(stdout, "Dominio %s creato con %d task\n", d.ID, d.TotalTasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "domain name")
	cmd.Flags().StringVar(&in.URL, "url", "", "site url")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func domainShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a domain with its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDomain(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				printDomains([]domain.Domain{d})
				return nil
			})
		},
	}
}

func domainStatusCmd(use, short string, fn func(engine.Engine, context.Context, string) (domain.Domain, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := fn(e, ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				printDomains([]domain.Domain{d})
				return nil
			})
		},
	}
}

func domainDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a domain with its tasks, subtasks and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDomain(ctx, args[0])
				if err != nil {
					return err
				}
				if !confirm(fmt.Sprintf("Sei sicuro di voler eliminare il dominio %q e tutti i suoi task?", d.Name)) {
					return nil
				}
				if err := e.DeleteDomain(ctx, d.ID); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Dominio eliminato con successo")
				return nil
			})
		},
	}
}

func domainStatsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.DomainStats(ctx, all)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Fprintf(stdout, "Totale %d | Completati %d | In corso %d | Da iniziare %d\n", st.Total, st.Completed, st.InProgress, st.NotStarted)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include closed domains")
	return cmd
}

func templateCmd() *cobra.Command {
	t := &cobra.Command{Use: "template", Short: "Manage task templates"}
	t.AddCommand(templateListCmd())
	t.AddCommand(templateCreateCmd())
	t.AddCommand(templateDeleteCmd())
	sub := &cobra.Command{Use: "subtask", Short: "Manage template subtasks"}
	sub.AddCommand(templateSubtaskAddCmd())
	sub.AddCommand(templateSubtaskListCmd())
	t.AddCommand(sub)
	return t
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(stdout)
				tw.AppendHeader(table.Row{"ID", "Titolo", "Categoria", "Priorità", "Tag"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Priority, strings.Join(t.Tags, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func templateCreateCmd() *cobra.Command {
	var in engine.TaskFields
	var hours float64
	var checklist []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hours") {
				in.EstimatedHours = &hours
			}
			for _, text := range checklist {
				in.ChecklistItems = append(in.ChecklistItems, domain.ChecklistItem{Text: text})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTemplate(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Fprintf(stdout, "Template %s creato con successo\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.Priority, "priority", "medium", "low, medium, high or urgent")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringSliceVar(&in.Dependencies, "dependency", nil, "dependency (repeatable)")
	cmd.Flags().StringSliceVar(&in.ReferenceLinks, "link", nil, "reference link (repeatable)")
	cmd.Flags().StringArrayVar(&checklist, "check", nil, "checklist item (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func templateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template; copied tasks are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTemplate(ctx, args[0])
				if err != nil {
					return err
				}
				if !confirm(fmt.Sprintf("Sei sicuro di voler eliminare il template %q?", t.Title)) {
					return nil
				}
				if err := e.DeleteTemplate(ctx, t.ID); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Template eliminato con successo")
				return nil
			})
		},
	}
}

func templateSubtaskAddCmd() *cobra.Command {
	var in engine.SubtaskInput
	cmd := &cobra.Command{
		Use:   "add <template-id>",
		Short: "Append a subtask to a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddTemplateSubtask(ctx, args[0], in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Fprintf(stdout, "Sottotask %s aggiunto in posizione %d\n", s.ID, s.OrderIndex)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func templateSubtaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <template-id>",
		Short: "List template subtasks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTemplateSubtasks(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(stdout)
				tw.AppendHeader(table.Row{"#", "ID", "Titolo"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.OrderIndex, s.ID, s.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Work on domain tasks"}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskCompletionCmd("done", "Mark a task done", true))
	t.AddCommand(taskCompletionCmd("undo", "Mark a task open again", false))
	t.AddCommand(taskCommentCmd())
	return t
}

func taskListCmd() *cobra.Command {
	var sortBy, tag, dependency string
	cmd := &cobra.Command{
		Use:   "list <domain-id>",
		Short: "List a domain's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters, err := e.Preferences().DomainFilters(ctx)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("sort-by") {
					filters.SortBy = sortBy
				}
				if cmd.Flags().Changed("tag") {
					filters.FilterTag = tag
				}
				if cmd.Flags().Changed("dependency") {
					filters.FilterDependency = dependency
				}
				tasks, err := e.ListDomainTasks(ctx, args[0])
				if err != nil {
					return err
				}
				completions, err := e.TaskCompletions(ctx, args[0])
				if err != nil {
					return err
				}
				tasks = listing.SortTasks(listing.FilterTasks(tasks, filters.FilterTag, filters.FilterDependency), filters.SortBy, e.Collator)
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(stdout)
				tw.AppendHeader(table.Row{"ID", "Titolo", "Priorità", "Categoria", "Fatto", "Sottotask"})
				for _, t := range tasks {
					done := ""
					if t.Completed {
						done = "x"
					}
					c := completions[t.ID]
					subs := ""
					if c.SubtasksTotal > 0 {
						subs = fmt.Sprintf("%d/%d", c.SubtasksCompleted, c.SubtasksTotal)
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Category, done, subs})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "created_at, priority or title")
	cmd.Flags().StringVar(&tag, "tag", "", "tag substring, all for none")
	cmd.Flags().StringVar(&dependency, "dependency", "", "dependency substring, all for none")
	return cmd
}

func taskCompletionCmd(use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskCompleted(ctx, args[0], completed)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Fprintf(stdout, "Task %q aggiornato\n", t.Title)
				return nil
			})
		},
	}
}

func taskCommentCmd() *cobra.Command {
	var subtask bool
	cmd := &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Comment on a task, or on a subtask with --subtask",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target domain.CommentTarget = domain.TaskTarget{TaskID: args[0]}
			if subtask {
				target = domain.SubtaskTarget{SubtaskID: args[0]}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, target, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Fprintln(stdout, "Commento aggiunto con successo")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&subtask, "subtask", false, "the id is a subtask id")
	return cmd
}
