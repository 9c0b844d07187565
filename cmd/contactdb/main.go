// Package main provides the contactdb CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/contactdb/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPaths []string
	engine      string
	dbPath      string
	verbose     bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "contactdb",
		Short: "Inspect and edit a contact database profile",
		Long: `A CLI tool for the contact database: typed settings, contacts and event histories
stored in a swappable engine.

Engines:
- sqlite: single-file SQL profile (default)
- bolt: single-file bbolt profile
- memory: throwaway in-process profile`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", []string{"contactdb.toml"}, "Config file(s), merged in order")
	rootCmd.PersistentFlags().StringVarP(&engine, "engine", "e", "", "Storage engine (sqlite, bolt, memory)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Profile path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging")

	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(modulesCmd())
	rootCmd.AddCommand(contactsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(residentsCmd())
	rootCmd.AddCommand(langpackCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withSession opens the profile for the duration of fn.
func withSession(fn func(s *cli.Session) error) error {
	s, err := cli.Open(cli.Options{
		ConfigPaths: configPaths,
		Engine:      engine,
		Path:        dbPath,
		Verbose:     verbose,
	})
	if err != nil {
		return err
	}
	runErr := fn(s)
	if err := s.Close(); err != nil && runErr == nil {
		return fmt.Errorf("failed to close profile: %w", err)
	}
	return runErr
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show profile summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.Info() })
		},
	}
}

func settingsCmd() *cobra.Command {
	var contact string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write settings",
		Long: `Read and write (contact, module, setting) values.

Contacts are given as a handle or "global". Kinds are
byte, word, dword, ascii, utf8, wide and blob (hex).`,
	}
	cmd.PersistentFlags().StringVar(&contact, "contact", "global", "Contact handle")

	cmd.AddCommand(&cobra.Command{
		Use:   "get [module] [setting]",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.GetSetting(contact, args[0], args[1]) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [module] [setting] [kind] [value]",
		Short: "Write a setting",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error {
				return s.SetSetting(contact, args[0], args[1], args[2], args[3])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unset [module] [setting]",
		Short: "Delete a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.UnsetSetting(contact, args[0], args[1]) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list [module]",
		Short: "List settings of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.ListSettings(contact, args[0]) })
		},
	})

	return cmd
}

func modulesCmd() *cobra.Command {
	var deleteFor string

	cmd := &cobra.Command{
		Use:   "modules [module]",
		Short: "List modules, or delete one with --delete-for",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error {
				if deleteFor == "" {
					return s.ListModules()
				}
				if len(args) != 1 {
					return fmt.Errorf("module name required with --delete-for")
				}
				return s.DeleteModule(deleteFor, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&deleteFor, "delete-for", "", "Delete the module's settings of this contact")

	return cmd
}

func contactsCmd() *cobra.Command {
	var proto string

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List, add and delete contacts",
	}
	cmd.PersistentFlags().StringVar(&proto, "proto", "", "Protocol module")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List contacts as handle, protocol and event count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.ListContacts(proto) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Add a contact and print its handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.AddContact(proto) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [contact]",
		Short: "Delete a contact with its settings and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.DeleteContact(args[0]) })
		},
	})

	return cmd
}

func eventsCmd() *cobra.Command {
	var (
		contact string
		module  string
		id      string
		unread  bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Browse and append event history",
	}
	cmd.PersistentFlags().StringVar(&contact, "contact", "global", "Contact handle")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a contact's events, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.ListEvents(contact, unread) })
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "Only unread events")
	cmd.AddCommand(list)

	add := &cobra.Command{
		Use:   "add [text]",
		Short: "Append a message event and print its handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.AddEvent(contact, module, args[0], id) })
		},
	}
	add.Flags().StringVar(&module, "module", "CLI", "Module that owns the event")
	add.Flags().StringVar(&id, "id", "", "Module-scoped string id")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "read [handle]",
		Short: "Print an event and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.ReadEvent(args[0]) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "find [module] [id]",
		Short: "Print the event holding a string id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.FindEvent(args[0], args[1]) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [handle]",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.DeleteEvent(args[0]) })
		},
	})

	return cmd
}

func residentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "residents",
		Short: "List memory-only settings registered in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *cli.Session) error { return s.ListResidents() })
		},
	}
}

func langpackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "langpack [name]",
		Short: "Select the profile's language pack, or the default with no name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withSession(func(s *cli.Session) error {
				if err := s.UseLangpack(name); err != nil {
					return err
				}
				return s.Info()
			})
		},
	}
}
