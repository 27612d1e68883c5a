package main

import (
	"github.com/spf13/cobra"

	"easypass/internal/config"
	"easypass/internal/derive"
	"easypass/internal/generator"
	"easypass/internal/security"
)

func (a *app) generateCmd() *cobra.Command {
	var (
		simple  bool
		counter int
		length  int
	)

	cmd := &cobra.Command{
		Use:   "generate <site>",
		Short: "Print the password for a site",
		Long: `Print the password that typing the trigger for <site> would produce.
The counter comes from the counter store, then the site's override, then
the default, unless --counter is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			key, err := a.masterKey(cmd, cfg, false)
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				key.Destroy()
				return err
			}
			defer st.Close()

			resolver := config.NewResolver(cfg, key, counterStore(st))
			defer resolver.Close()

			opts, err := resolver.Resolve(args[0])
			if err != nil {
				return err
			}
			if simple {
				opts.Mode = derive.ModeSimple
			}
			if cmd.Flags().Changed("counter") {
				opts.Counter = counter
			}
			if cmd.Flags().Changed("length") {
				opts.Length = length
			}

			pw, err := generator.Generate(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return security.GuardedExec(pw, func(text []byte) error {
				if _, err := out.Write(text); err != nil {
					return err
				}
				_, err := out.Write([]byte{'\n'})
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&simple, "simple", false, "use simple (concatenation) mode")
	cmd.Flags().IntVar(&counter, "counter", 0, "override the counter")
	cmd.Flags().IntVar(&length, "length", 0, "override the length")
	return cmd
}
