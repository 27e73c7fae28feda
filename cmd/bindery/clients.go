package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bindery/bindery/internal/downloader"
	"github.com/bindery/bindery/internal/downloader/types"
	"github.com/bindery/bindery/internal/downloads"
)

func newClientsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage download clients",
	}
	cmd.AddCommand(
		newClientsListCmd(opts),
		newClientsAddCmd(opts),
		newClientsTestCmd(opts),
	)
	return cmd
}

// clientView is the exported shape of a client; secrets are never printed.
type clientView struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Enabled     bool   `yaml:"enabled"`
	Priority    int    `yaml:"priority"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Category    string `yaml:"category,omitempty"`
	DownloadDir string `yaml:"downloadDir,omitempty"`
	Health      string `yaml:"health"`
	LastError   string `yaml:"lastError,omitempty"`
}

func newClientsListCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured download clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("unknown output format %q", output)
			}

			a, err := openApp(cmd.Context(), opts, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			sess := a.store.Begin(cmd.Context())
			defer sess.Rollback() //nolint:errcheck // read-only
			clients, err := sess.Clients().List(cmd.Context())
			if err != nil {
				return err
			}

			if output == "yaml" {
				views := make([]clientView, 0, len(clients))
				for _, c := range clients {
					views = append(views, clientView{
						ID: c.ID, Name: c.Name, Type: string(c.Type), Enabled: c.Enabled,
						Priority: c.Priority, Host: c.Host, Port: c.Port, Category: c.Category,
						DownloadDir: c.DownloadDir, Health: string(c.Health), LastError: c.LastError,
					})
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(views); err != nil {
					return err
				}
				return enc.Close()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tENABLED\tPRIORITY\tHEALTH")
			for _, c := range clients {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%s\n", c.ID, c.Name, c.Type, c.Enabled, c.Priority, c.Health)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")
	return cmd
}

func newClientsAddCmd(opts *rootOptions) *cobra.Command {
	var c downloads.DownloadClient
	var clientType string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a download client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !downloader.IsClientTypeImplemented(clientType) {
				return fmt.Errorf("unsupported client type %q (supported: %v)", clientType, downloader.ImplementedClientTypes())
			}

			a, err := openApp(cmd.Context(), opts, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			c.Name = args[0]
			c.Type = types.ClientType(clientType)
			c.Enabled = !disabled
			if a.secrets != nil {
				if c.Password, err = a.secrets.Encrypt(c.Password); err != nil {
					return err
				}
				if c.APIKey, err = a.secrets.Encrypt(c.APIKey); err != nil {
					return err
				}
			}

			sess := a.store.Begin(cmd.Context())
			defer sess.Rollback() //nolint:errcheck // no-op after commit
			if err := sess.ClientRepo().Create(cmd.Context(), &c); err != nil {
				return err
			}
			if err := sess.Commit(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added download client %d (%s)\n", c.ID, c.Type)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&clientType, "type", "", "Client type (transmission, qbittorrent, sabnzbd, ...)")
	f.StringVar(&c.Host, "host", "localhost", "Host name")
	f.IntVar(&c.Port, "port", 0, "Port")
	f.BoolVar(&c.UseSSL, "ssl", false, "Connect over HTTPS")
	f.StringVar(&c.URLBase, "url-base", "", "URL path prefix")
	f.StringVar(&c.Username, "username", "", "User name")
	f.StringVar(&c.Password, "password", "", "Password")
	f.StringVar(&c.APIKey, "api-key", "", "API key or RPC secret")
	f.StringVar(&c.Category, "category", "", "Category or label applied to new downloads")
	f.StringVar(&c.DownloadDir, "download-dir", "", "Download or watch directory")
	f.IntVar(&c.Priority, "priority", 0, "Selection priority, lower wins")
	f.BoolVar(&disabled, "disabled", false, "Add the client disabled")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newClientsTestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Test connectivity to a download client and record its health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid client id %q", args[0])
			}

			a, err := openApp(cmd.Context(), opts, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			orchestrator, err := a.orchestrator()
			if err != nil {
				return err
			}
			client, err := orchestrator.CheckClient(cmd.Context(), id)
			if client == nil {
				return err
			}
			if err != nil {
				return fmt.Errorf("client %d (%s) failed: %w", client.ID, client.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client %d (%s) is healthy\n", client.ID, client.Name)
			return nil
		},
	}
}
