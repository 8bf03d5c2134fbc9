package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/drover/pkg/types"
	"github.com/spf13/cobra"
)

var apiAddr string

func init() {
	volumeCmd.PersistentFlags().StringVar(&apiAddr, "addr", "localhost:8470", "Daemon API address")
	serviceCmd.PersistentFlags().StringVar(&apiAddr, "addr", "localhost:8470", "Daemon API address")

	volumeCreateCmd.Flags().Uint64("size", 1, "Volume size in GiB")
	volumeCreateCmd.Flags().String("description", "", "Volume description")

	volumeCmd.AddCommand(volumeCreateCmd)
	volumeCmd.AddCommand(volumeListCmd)
	volumeCmd.AddCommand(volumeShowCmd)
	volumeCmd.AddCommand(volumeRemoveCmd)

	serviceCmd.AddCommand(serviceListCmd)
}

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes",
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Inspect registered daemons",
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func apiRequest(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, "http://"+apiAddr+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", apiAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(data))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var volumeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new volume on this daemon's backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetUint64("size")
		desc, _ := cmd.Flags().GetString("description")

		var volume types.VolumeRecord
		err := apiRequest(http.MethodPost, "/v1/volumes", map[string]interface{}{
			"size_gib":    size,
			"description": desc,
		}, &volume)
		if err != nil {
			return err
		}

		fmt.Printf("Volume %s created (%d GiB) on %s\n", volume.ID, volume.SizeGiB, volume.Host)
		return nil
	},
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		var volumes []*types.VolumeRecord
		if err := apiRequest(http.MethodGet, "/v1/volumes", nil, &volumes); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tHOST\tSIZE\tSTATUS\tMIGRATION")
		for _, v := range volumes {
			migration := string(v.MigrationStatus)
			if migration == "" {
				migration = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%dGiB\t%s\t%s\n",
				v.ID, v.Host, v.SizeGiB, v.Status, migration)
		}
		return w.Flush()
	},
}

var volumeShowCmd = &cobra.Command{
	Use:   "show <volume-id>",
	Short: "Show one volume record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var volume types.VolumeRecord
		if err := apiRequest(http.MethodGet, "/v1/volumes/"+args[0], nil, &volume); err != nil {
			return err
		}

		data, err := json.MarshalIndent(&volume, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var volumeRemoveCmd = &cobra.Command{
	Use:     "rm <volume-id>",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a volume and its backing storage",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiRequest(http.MethodDelete, "/v1/volumes/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Printf("Volume %s deleted\n", args[0])
		return nil
	},
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered daemons",
	RunE: func(cmd *cobra.Command, args []string) error {
		var services []*types.Service
		if err := apiRequest(http.MethodGet, "/v1/store/services", nil, &services); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "HOST\tBACKEND\tADDRESS\tZONE")
		for _, s := range services {
			zone := s.AvailabilityZone
			if zone == "" {
				zone = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Host, s.Backend, s.Address, zone)
		}
		return w.Flush()
	},
}
