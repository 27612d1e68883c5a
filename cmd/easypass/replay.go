package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"easypass/internal/config"
	"easypass/internal/inject"
	"easypass/internal/keystroke"
	"easypass/internal/replace"
	"easypass/internal/trigger"
)

func (a *app) replayCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "replay <keys>",
		Short: "Feed typed keys through trigger recognition without typing anything",
		Long: `Replay a key script through the trigger state machine and print the
replacement each completed trigger would produce. Special keys are written
as escapes: {bs}, {del}, {enter}, {tab}, {space}, {esc}, {left}, {focus},
{ctrl+x}, {alt+x}; {{ is a literal brace.

Without a master key the failures are reported instead.`,
		Example: `  easypass replay 'hello ;;github.com '
  easypass replay ';;githbu{bs}{bs}ub.com{enter}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := keystroke.ParseKeys(args[0])
			if err != nil {
				return err
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			topts, err := cfg.TriggerOptions()
			if err != nil {
				return err
			}
			machine, err := trigger.New(topts...)
			if err != nil {
				return err
			}

			key, err := a.masterKey(cmd, cfg, false)
			if err != nil && !errors.Is(err, config.ErrNoMasterKey) {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				if key != nil {
					key.Destroy()
				}
				return err
			}
			defer st.Close()

			resolver := config.NewResolver(cfg, key, counterStore(st))
			defer resolver.Close()

			out := cmd.OutOrStdout()
			report := replace.ObserverFunc(func(r replace.Report) {
				fmt.Fprintf(out, "%s: %s\n", r.Kind, r.Message())
			})
			orch := replace.New(resolver, report, replace.WithLogger(slog.Default()))
			act := &inject.Writer{W: out}

			for _, ev := range events {
				c, ok := machine.Feed(ev.Trigger())
				if !ok {
					continue
				}
				fmt.Fprintf(out, "trigger %s%s (%s)\n", c.Prefix, c.Site, c.Mode)

				instr, ok := orch.Handle(cmd.Context(), c)
				if !ok {
					continue
				}
				edit := inject.Edit{Keep: instr.KeepCount, Delete: instr.DeleteCount, Text: instr.Insert}
				if reveal {
					fmt.Fprintf(out, "keep %d, delete %d, insert %s\n", edit.Keep, edit.Delete, instr.Insert.Reveal())
				} else if err := act.Apply(cmd.Context(), edit); err != nil {
					instr.Wipe()
					return err
				}
				instr.Wipe()
			}

			if prefix, site, ok := machine.Pending(); ok {
				fmt.Fprintf(out, "pending %s%s\n", prefix, site)
			}
			stats := machine.Stats()
			fmt.Fprintf(out, "%d completed, %d aborted\n", stats.Completed, stats.Aborted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the passwords instead of redacting them")
	return cmd
}
