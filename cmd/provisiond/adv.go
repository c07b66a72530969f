package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/wifiprov/provision"
	"github.com/user/wifiprov/wire/advertising"
)

func advCmd() *cobra.Command {
	var provisioned, connected bool

	advCmd := &cobra.Command{
		Use:   "adv",
		Short: "Print the advertising payload and scan response",
		Example: "  " + exeName + " adv\n" +
			"  " + exeName + " adv --provisioned --connected",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := advertising.Build(advertising.Fields{
				Name:       cfg.Name,
				Services:   [][]byte{provision.ServiceUUID},
				Appearance: int16(cfg.Appearance),
			})

			var flags byte
			if provisioned {
				flags |= advertising.StatusProvisioned
			}
			if connected {
				flags |= advertising.StatusWifiConnected
			}
			rsp, err := advertising.ScanResponse(provision.ServiceUUID, provision.DefaultRevision, flags)
			if err != nil {
				return err
			}

			fmt.Printf("advertising data (%d bytes): %x\n", len(data), data)
			fmt.Printf("scan response    (%d bytes): %x\n", len(rsp), rsp)
			if !advertising.Fits(data) {
				return fmt.Errorf("advertising data exceeds %d bytes", advertising.MaxAdvertisingDataLen)
			}
			return nil
		},
	}

	advCmd.Flags().BoolVar(&provisioned, "provisioned", false, "set the provisioned status flag")
	advCmd.Flags().BoolVar(&connected, "connected", false, "set the Wi-Fi connected status flag")
	return advCmd
}
