package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/proto"
)

var messageTypes = map[string]func() proto.Message{
	"info":     func() proto.Message { return &proto.Info{} },
	"request":  func() proto.Message { return &proto.Request{} },
	"response": func() proto.Message { return &proto.Response{} },
	"result":   func() proto.Message { return &proto.Result{} },
	"status":   func() proto.Message { return &proto.DeviceStatus{} },
	"wifi":     func() proto.Message { return &proto.WifiInfo{} },
}

func decodeRunCmd(as string, args []string) error {
	data, err := hex.DecodeString(strings.ReplaceAll(strings.Join(args, ""), ":", ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	fields, err := proto.DecodeRaw(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.Bytes != nil {
			fmt.Printf("field %d (wire type %d): %x\n", f.Num, f.Type, f.Bytes)
		} else {
			fmt.Printf("field %d (wire type %d): %d\n", f.Num, f.Type, f.Varint)
		}
	}

	if as == "" {
		return nil
	}
	newMsg, ok := messageTypes[as]
	if !ok {
		return fmt.Errorf("unknown message type %q", as)
	}
	msg := newMsg()
	if err := msg.Unmarshal(data); err != nil {
		return err
	}
	fmt.Println(logger.ToJSON(msg))
	return nil
}

func decodeCmd() *cobra.Command {
	var as string

	decodeCmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Dump the fields of an encoded message",
		Example: "  " + exeName + " decode 0801\n" +
			"  " + exeName + " decode --as response 08011000",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodeRunCmd(as, args)
		},
	}

	decodeCmd.Flags().StringVar(&as, "as", "",
		"also decode as info, request, response, result, status or wifi")
	return decodeCmd
}
