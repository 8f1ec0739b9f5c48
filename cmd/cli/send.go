package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/botte/botte-service/internal/client"
	"github.com/botte/botte-service/internal/database"
	"github.com/botte/botte-service/internal/http/ratelimit"
	"github.com/botte/botte-service/internal/taskqueue"
)

const (
	viaHTTP   = "http"
	viaInvoke = "invoke"
	viaQueue  = "queue"
)

var (
	sendVia       string
	sendSenderApp string
	sendFIFO      bool
	sendGroup     string
)

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Send a message to the owner's chat",
	Long: `Send a message through a running deployment. With no arguments the text is
read from stdin.

  --via http     POST /message on the API
  --via invoke   direct invocation through POST /invoke/message
  --via queue    write a BOTTE_MESSAGE task to the queue table`,
	Example: `  botte send "Build finished"
  echo "backup done" | botte send --via queue --fifo --group backups`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendVia, "via", viaHTTP, "Delivery path: http, invoke or queue")
	sendCmd.Flags().StringVar(&sendSenderApp, "sender-app", "", "Sender app name (default from config)")
	sendCmd.Flags().BoolVar(&sendFIFO, "fifo", false, "Queue only: deliver in order with other FIFO tasks")
	sendCmd.Flags().StringVar(&sendGroup, "group", "", "Queue only: FIFO group id")
}

func runSend(cmd *cobra.Command, args []string) error {
	if err := requireConfig(cmd); err != nil {
		return err
	}

	text, err := messageText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	clientCfg := cfg.Client
	if sendSenderApp != "" {
		clientCfg.SenderApp = sendSenderApp
	}
	ctx := cmd.Context()

	switch strings.ToLower(sendVia) {
	case viaHTTP:
		c := client.NewHTTPClient(clientCfg, cfg.AuthToken(), ratelimit.DefaultConfig(), cfg.Telegram.Timeout)
		msg, err := c.SendMessage(ctx, text)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), msg.Raw)

	case viaInvoke:
		remote := client.NewHTTPClient(clientCfg, cfg.AuthToken(), ratelimit.DefaultConfig(), cfg.Telegram.Timeout)
		body, err := client.NewInvokeClient(remote, clientCfg.SenderApp).SendMessage(ctx, text)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), body)

	case viaQueue:
		if err := initDatabase(ctx); err != nil {
			return err
		}
		defer database.Close()

		qc := client.NewQueueClient(taskqueue.New(database.Pool()), clientCfg.SenderApp, logger)
		task, err := qc.SendMessage(ctx, client.QueueMessage{
			Text:          text,
			DoProcessFIFO: sendFIFO,
			FIFOGroupID:   sendGroup,
		})
		if err != nil {
			return err
		}
		encoded, err := task.ToJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
		return err

	default:
		return fmt.Errorf("invalid --via: %s (use 'http', 'invoke' or 'queue')", sendVia)
	}
}

func messageText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return "", fmt.Errorf("no message text given")
	}
	return text, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
