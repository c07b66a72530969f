package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/provision"
)

func runRunCmd(cmd *cobra.Command, args []string) error {
	pcfg, err := cfg.Provision()
	if err != nil {
		return err
	}
	nic, err := openNIC(cfg)
	if err != nil {
		return err
	}
	stack, err := openStack(cfg)
	if err != nil {
		return err
	}

	machine := pairing.NewMachine(stack,
		pairing.NewTerminalDisplay(os.Stdout),
		pairing.DelayConfirmer{Delay: cfg.ConfirmDelay, Accept: true})

	svc, err := provision.New(stack, nic, pcfg,
		provision.WithPairing(machine),
		provision.WithIndicator(&provision.LogIndicator{}))
	if err != nil {
		return err
	}

	logger.Info("provisiond", "backend %s, advertising as %q", cfg.Backend, cfg.Name)
	err = svc.Run(cmd.Context())
	if errors.Is(err, provision.ErrAlreadyConnected) {
		fmt.Println("Station already connected; nothing to provision")
		return nil
	}
	return err
}

func runCmd() *cobra.Command {
	runHelpText := "Advertise the provisioning service and serve requests until\n"
	runHelpText += "the station connects or the process is interrupted.\n"

	runEx := "  " + exeName + " run\n"
	runEx += "  " + exeName + " run -b bluez -l debug\n"

	return &cobra.Command{
		Use:     "run",
		Short:   "Serve Wi-Fi provisioning over BLE",
		Long:    runHelpText,
		Example: runEx,
		Args:    cobra.NoArgs,
		RunE:    runRunCmd,
	}
}
