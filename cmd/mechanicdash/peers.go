package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/mechanic-dash/internal/transport"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List serial and Bluetooth SPP peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		peers, err := transport.ListPeerDetails()
		if err != nil {
			// Some platforms list ports without USB details.
			names, err := transport.ListPeers()
			if err != nil {
				return err
			}
			for _, n := range names {
				peers = append(peers, transport.PeerInfo{Name: n})
			}
		}
		if len(peers) == 0 {
			fmt.Fprintln(out, "No serial peers found")
			return nil
		}
		for _, p := range peers {
			if p.IsUSB {
				fmt.Fprintf(out, "%s\tUSB %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
				continue
			}
			fmt.Fprintln(out, p.Name)
		}
		fmt.Fprintf(out, "\nAlso accepted: tcp://host:port, ws://host/path, %s\n", transport.DemoPeer)
		return nil
	},
}
