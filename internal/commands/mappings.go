package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/payrecon/internal/clients"
	"github.com/cleared-dev/payrecon/internal/model"
)

func newMappingsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and edit sender to client mappings",
	}
	cmd.AddCommand(newMappingsListCommand(opts), newMappingsAddCommand(opts))
	return cmd
}

func newMappingsListCommand(opts *rootOptions) *cobra.Command {
	var source, clientID string
	var minConfidence int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List client mappings, most used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := clients.MappingFilter{ClientID: clientID, MinConfidence: minConfidence}
			if source != "" {
				src, ok := model.ParsePaymentSource(source)
				if !ok {
					return fmt.Errorf("unknown payment source %q", source)
				}
				filter.Source = src
			}

			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			matcher := a.newMatcher(a.store)
			mappings, err := matcher.ListMappings(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("listing mappings: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				fmt.Fprintln(out, "No client mappings found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				titleStyle.Render("SENDER"),
				titleStyle.Render("CLIENT"),
				titleStyle.Render("SOURCE"),
				titleStyle.Render("CONFIDENCE"),
				titleStyle.Render("USES"),
				titleStyle.Render("LAST USED"),
			)
			for _, m := range mappings {
				name := m.ClientID
				if c, ok := matcher.Cache().Client(m.ClientID); ok {
					name = c.Name
				}
				lastUsed := mutedStyle.Render("never")
				if !m.LastUsed.IsZero() {
					lastUsed = m.LastUsed.Format("2006-01-02")
				}
				confidence := fmt.Sprint(m.Confidence)
				if m.Manual {
					confidence += " (manual)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					m.RawSender, name, m.PaymentSource, confidence, m.UsageCount, lastUsed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "only mappings for this payment source")
	cmd.Flags().StringVar(&clientID, "client", "", "only mappings to this client id")
	cmd.Flags().IntVar(&minConfidence, "min-confidence", 0, "only mappings at or above this confidence")

	return cmd
}

func newMappingsAddCommand(opts *rootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "add <sender> <client-id>",
		Short: "Map a sender name to a client manually",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, ok := model.ParsePaymentSource(source)
			if !ok {
				return fmt.Errorf("unknown payment source %q", source)
			}

			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			matcher := a.newMatcher(a.store)
			m, err := matcher.CreateManualMapping(cmd.Context(), args[0], args[1], src)
			if err != nil {
				return fmt.Errorf("creating mapping: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (%s)\n",
				okStyle.Render("Mapped"), m.RawSender, m.ClientID, m.SenderID)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", string(model.SourceWire), "payment source of the sender")

	return cmd
}
