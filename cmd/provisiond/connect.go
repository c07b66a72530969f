package main

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wifiprov/credential"
)

func connectAnyRunCmd(cmd *cobra.Command, args []string) error {
	nic, err := openNIC(cfg)
	if err != nil {
		return err
	}

	tried, err := credential.New(nic).ConnectAny(cmd.Context(), cfg.JoinTimeout)
	switch {
	case errors.Is(err, credential.ErrAlreadyConnected):
		fmt.Println("Already connected")
		return nil
	case errors.Is(err, credential.ErrNoProfiles):
		fmt.Println("No stored profiles")
		return nil
	case err != nil:
		return fmt.Errorf("tried %s: %w", strings.Join(tried, ", "), err)
	}

	fmt.Println(connectedMessage(tried, nic.IPv4()))
	return nil
}

// connectedMessage names the last network tried. ConnectAny tries nothing
// when the station came up on its own after the initial check.
func connectedMessage(tried []string, ip net.IP) string {
	if len(tried) == 0 {
		return fmt.Sprintf("Already connected (%s)", ip)
	}
	return fmt.Sprintf("Connected to %s (%s)", tried[len(tried)-1], ip)
}

func connectAnyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "connect-any",
		Short:   "Join the first reachable stored network",
		Long:    "Try every stored profile in order, one attempt each, until one connects.\n",
		Example: "  " + exeName + " connect-any -b bluez",
		Args:    cobra.NoArgs,
		RunE:    connectAnyRunCmd,
	}
}
