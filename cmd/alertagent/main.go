package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/config"
	"github.com/dennisdiepolder/monti/alertagent/internal/prefs"
	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/dennisdiepolder/monti/alertagent/pkg/client"
	"github.com/spf13/cobra"
)

var controlAddr string

var rootCmd = &cobra.Command{
	Use:           "alertagent",
	Short:         "Hospital alert field agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the alert server and relay alerts until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runAgent(cfg)
	},
}

var locationCmd = &cobra.Command{
	Use:   "location [label]",
	Short: "Show or set the location label sent at registration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			fmt.Println(store.LocationLabel())
			return nil
		}
		if err := store.SetLocationLabel(args[0]); err != nil {
			return err
		}
		fmt.Printf("location set to %q (used from the next registration)\n", strings.TrimSpace(args[0]))
		return nil
	},
}

var hostCmd = &cobra.Command{
	Use:   "host [host]",
	Short: "Show or override the alert server host; an empty host clears the override",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store := prefs.NewStore(cfg.PrefsFile)
		if len(args) == 0 {
			fmt.Println(endpointFunc(cfg, store)())
			return nil
		}
		if err := store.SetServerHost(args[0]); err != nil {
			return err
		}
		fmt.Printf("endpoint is now %s (used from the next connection attempt)\n", endpointFunc(cfg, store)())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection status of the running agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		status, err := c.GetStatus()
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s since %s)\n", status.Text, status.State, status.Since.Format(time.RFC3339))
		fmt.Printf("location: %s\nendpoint: %s\nopen alerts: %d\n", status.Location, status.Endpoint, status.ActiveCount)
		return nil
	},
}

var showAll bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts presented by the running agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		alerts, err := c.ListAlerts(showAll)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("no alerts")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRECEIVED\tCODE\tLOCATION\tPRIORITY\tACKED")
		for _, p := range alerts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
				p.ID, p.ReceivedAt.Format(time.Kitchen), p.Alert.CodeName, p.Alert.LocationName, p.Alert.Priority, p.Acknowledged)
		}
		return w.Flush()
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack [id]",
	Short: "Acknowledge an alert, the newest open one by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}

		ack := c.AcknowledgeLatest
		if len(args) == 1 {
			ack = func() (*types.Presentation, error) { return c.Acknowledge(args[0]) }
		}
		p, err := ack()
		if err != nil {
			return err
		}
		fmt.Printf("acknowledged %s at %s\n", p.Alert.CodeName, p.Alert.LocationName)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlAddr, "control", "", "control API address (default $ALERTAGENT_CONTROL_ADDR)")
	alertsCmd.Flags().BoolVar(&showAll, "all", false, "include acknowledged alerts")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(locationCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(ackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*prefs.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return prefs.NewStore(cfg.PrefsFile), nil
}

func controlClient() (*client.Client, error) {
	addr := controlAddr
	if addr == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		addr = cfg.ControlAddr
	}
	return client.NewClient(baseURL(addr)), nil
}

// baseURL accepts host:port or a full URL
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}
