package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseflow/internal/domain"
	"caseflow/internal/engine"
	"caseflow/pkg/decision"
)

func packageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "package", Short: "Edit packages of an app"}

	var cond string
	var order int
	add := &cobra.Command{
		Use:   "add <app-id> <package>",
		Short: "Add a package holding a default rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.PackageAddOptions{AppID: args[0], Name: args[1], ActorID: actorID()}
			if cmd.Flags().Changed("condition") {
				opts.Condition = &cond
			}
			if cmd.Flags().Changed("order") {
				opts.Order = &order
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.AddPackage(ctx, opts))
			})
		},
	}
	add.Flags().StringVar(&cond, "condition", "", "gate expression; the package always runs when omitted")
	add.Flags().IntVar(&order, "order", 0, "insert position (appends when omitted)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <app-id> <package>",
		Short: "Delete a package and its call",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.DeletePackage(ctx, engine.PackageDeleteOptions{AppID: args[0], Name: args[1], ActorID: actorID()}))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "move <app-id> <package> <up|down>",
		Short:     "Swap a package with its neighbour",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.MovePackage(ctx, engine.PackageMoveOptions{
					AppID:     args[0],
					Name:      args[1],
					Direction: domain.Direction(args[2]),
					ActorID:   actorID(),
				}))
			})
		},
	})

	var newCond string
	var unconditional bool
	condCmd := &cobra.Command{
		Use:   "condition <app-id> <package>",
		Short: "Set or clear the gate of a package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if unconditional == cmd.Flags().Changed("set") {
				return fmt.Errorf("exactly one of --set or --clear required")
			}
			opts := engine.PackageConditionOptions{AppID: args[0], Name: args[1], ActorID: actorID()}
			if !unconditional {
				opts.Condition = &newCond
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.UpdatePackageCondition(ctx, opts))
			})
		},
	}
	condCmd.Flags().StringVar(&newCond, "set", "", "new gate expression")
	condCmd.Flags().BoolVar(&unconditional, "clear", false, "make the package unconditional")
	cmd.AddCommand(condCmd)
	return cmd
}

// readCode returns the literal flag value or the contents of the named file.
func readCode(code, file string) (string, error) {
	if file == "" {
		return code, nil
	}
	if code != "" {
		return "", fmt.Errorf("--code and --code-file are exclusive")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseAssignments(items []string) ([]domain.OutputAssignment, error) {
	out := make([]domain.OutputAssignment, 0, len(items))
	for _, item := range items {
		attr, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("assignment %q must be attribute=value", item)
		}
		out = append(out, domain.OutputAssignment{Attribute: strings.TrimSpace(attr), Value: strings.TrimSpace(value)})
	}
	return out, nil
}

func ruleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rule", Short: "Edit rules of a package"}

	var (
		code, codeFile, cond string
		order                int
	)
	add := &cobra.Command{
		Use:   "add <app-id> <package> <rule>",
		Short: "Add a rule",
		Long:  "Code is either a full rule definition named <rule> or a bare body. Without code the rule only records itself.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readCode(code, codeFile)
			if err != nil {
				return err
			}
			opts := engine.RuleAddOptions{AppID: args[0], Package: args[1], Name: args[2], Code: body, ActorID: actorID()}
			if cmd.Flags().Changed("condition") {
				opts.Condition = &cond
			}
			if cmd.Flags().Changed("order") {
				opts.Order = &order
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.AddRule(ctx, opts))
			})
		},
	}
	add.Flags().StringVar(&code, "code", "", "rule code")
	add.Flags().StringVar(&codeFile, "code-file", "", "read rule code from a file")
	add.Flags().StringVar(&cond, "condition", "", "guard expression")
	add.Flags().IntVar(&order, "order", 0, "insert position (appends when omitted)")
	cmd.AddCommand(add)
	cmd.AddCommand(ruleUpdateCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <app-id> <package> <rule>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.DeleteRule(ctx, engine.RuleDeleteOptions{AppID: args[0], Package: args[1], Name: args[2], ActorID: actorID()}))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "move <app-id> <package> <rule> <up|down>",
		Short:     "Swap a rule with its neighbour",
		Args:      cobra.ExactArgs(4),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.MoveRule(ctx, engine.RuleMoveOptions{
					AppID:     args[0],
					Package:   args[1],
					Name:      args[2],
					Direction: domain.Direction(args[3]),
					ActorID:   actorID(),
				}))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decompose <app-id> <package> <rule>",
		Short: "Split a rule into free code and output assignments",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.DecomposeRule(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Println(d.Signature)
				if d.FreeCode != "" {
					fmt.Println("Free code:")
					fmt.Println(d.FreeCode)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Attribute", "Value", "Line", "Nested"})
				for _, a := range d.OutputAssignments {
					tw.AppendRow(table.Row{a.Attribute, a.Value, a.LineOffset, a.Nested})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func ruleUpdateCmd() *cobra.Command {
	var (
		code, codeFile, cond, freeCode string
		clearCond, noAssign            bool
		assigns                        []string
	)
	cmd := &cobra.Command{
		Use:   "update <app-id> <package> <rule>",
		Short: "Replace rule code, guard or components",
		Long: `--code replaces the whole rule. --free-code and --assign regenerate the rule from
components; the one not given is kept from the current decomposition.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.RuleUpdateOptions{
				AppID:          args[0],
				Package:        args[1],
				Name:           args[2],
				ClearCondition: clearCond,
				ActorID:        actorID(),
			}
			if cmd.Flags().Changed("code") || codeFile != "" {
				body, err := readCode(code, codeFile)
				if err != nil {
					return err
				}
				opts.Code = &body
			}
			if cmd.Flags().Changed("condition") {
				opts.Condition = &cond
			}
			if cmd.Flags().Changed("free-code") {
				opts.FreeCode = &freeCode
			}
			switch {
			case noAssign:
				opts.OutputAssignments = []domain.OutputAssignment{}
			case len(assigns) > 0:
				list, err := parseAssignments(assigns)
				if err != nil {
					return err
				}
				opts.OutputAssignments = list
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.UpdateRule(ctx, opts))
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "new rule code")
	cmd.Flags().StringVar(&codeFile, "code-file", "", "read new rule code from a file")
	cmd.Flags().StringVar(&cond, "condition", "", "new guard expression")
	cmd.Flags().BoolVar(&clearCond, "clear-condition", false, "remove the guard")
	cmd.Flags().StringVar(&freeCode, "free-code", "", "statements kept ahead of the output assignments")
	cmd.Flags().StringArrayVar(&assigns, "assign", nil, "output assignment attribute=value, repeatable; suffix [] appends")
	cmd.Flags().BoolVar(&noAssign, "no-assignments", false, "drop every output assignment")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		intention, inputFile string
		fields               []string
	)
	cmd := &cobra.Command{
		Use:   "simulate <app-id>",
		Short: "Run the decision engine against one input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := decision.Input{FieldValues: map[string]any{}}
			if inputFile != "" {
				b, err := os.ReadFile(inputFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(b, &in); err != nil {
					return fmt.Errorf("decode %s: %w", inputFile, err)
				}
				if in.FieldValues == nil {
					in.FieldValues = map[string]any{}
				}
			}
			if cmd.Flags().Changed("intention") {
				in.Intention = intention
			}
			for _, f := range fields {
				k, v, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("field %q must be name=value", f)
				}
				in.FieldValues[strings.TrimSpace(k)] = v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.Simulate(ctx, engine.SimulateOptions{AppID: args[0], Input: in})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Handling", out.Handling},
					{"Priority", out.Priority},
					{"Work basket", out.WorkBasket},
					{"Template", out.ResponseTemplateID},
					{"Acknowledgement", out.AcknowledgementToRequester},
					{"Notes", strings.Join(out.Notes, ", ")},
					{"Fired", strings.Join(out.Details, " -> ")},
				})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&intention, "intention", "", "input intention")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "field value name=value, repeatable")
	cmd.Flags().StringVar(&inputFile, "input", "", "JSON file holding the whole input")
	return cmd
}
