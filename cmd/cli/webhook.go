package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botte/botte-service/internal/telegram"
)

var webhookURL string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect or configure the bot webhook",
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current webhook configuration",
	RunE:  runWebhookInfo,
}

var webhookConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Point the bot webhook at this deployment",
	Long: `Registers the webhook URL with the bot API. The API token is sent as the
webhook secret, so updates pass the authorizer through the
X-Telegram-Bot-Api-Secret-Token header.`,
	Example: `  botte webhook configure --url https://botte.example.com/telegram/webhook`,
	RunE:    runWebhookConfigure,
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookInfoCmd, webhookConfigureCmd)

	webhookConfigureCmd.Flags().StringVar(&webhookURL, "url", "", "Webhook URL (default telegram.webhook_url)")
}

func botClient() *telegram.Client {
	return telegram.NewClient(cfg.Telegram, cfg.TelegramToken())
}

func runWebhookInfo(cmd *cobra.Command, args []string) error {
	if err := requireConfig(cmd); err != nil {
		return err
	}

	info, err := botClient().GetWebhookInfo(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get webhook info: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), info)
}

func runWebhookConfigure(cmd *cobra.Command, args []string) error {
	if err := requireConfig(cmd); err != nil {
		return err
	}

	url := webhookURL
	if url == "" {
		url = cfg.Telegram.WebhookURL
	}
	if url == "" {
		return fmt.Errorf("no webhook URL: pass --url or set telegram.webhook_url")
	}

	secret, err := cfg.AuthToken().Get()
	if err != nil {
		return fmt.Errorf("API authorizer token required as webhook secret: %w", err)
	}

	if err := botClient().SetWebhook(cmd.Context(), url, secret); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	logger.Info().Str("url", url).Msg("Webhook configured")
	return nil
}
