package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/payrecon/internal/api"
	"github.com/cleared-dev/payrecon/internal/api/handlers"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			matcher := a.newMatcher(a.store)
			im := a.newImporter(a.store, matcher)
			maxUpload := int64(a.cfg.Server.MaxUploadMB) << 20
			payments := handlers.NewPaymentsHandler(im, matcher, maxUpload)

			srv := api.NewServer(a.cfg.Server.Addr, api.NewHandler(payments, a.log), a.log)
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}
