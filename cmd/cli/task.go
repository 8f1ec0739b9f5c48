package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/botte/botte-service/internal/attrvalue"
	"github.com/botte/botte-service/internal/tasks"
)

var (
	encodeText       string
	encodeSenderApp  string
	encodeFIFO       bool
	encodeGroup      string
	encodeExpiration int64
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Encode and decode BOTTE_MESSAGE tasks",
}

var taskEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the queue item of a new task as canonical JSON",
	Example: `  botte task encode --text "hello" --sender-app CI
  botte task encode --text "step 2" --sender-app CI --fifo --group deploy`,
	RunE: runTaskEncode,
}

var taskDecodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a change-stream record or batch into tasks",
	Long: `Reads a single stream record or a {"Records": [...]} batch from the file
(or stdin) and prints the decoded tasks in delivery order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTaskDecode,
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskEncodeCmd, taskDecodeCmd)

	taskEncodeCmd.Flags().StringVar(&encodeText, "text", "", "Message text")
	taskEncodeCmd.Flags().StringVar(&encodeSenderApp, "sender-app", "BOTTE_CLI", "Sender app name")
	taskEncodeCmd.Flags().BoolVar(&encodeFIFO, "fifo", false, "Deliver in order with other FIFO tasks")
	taskEncodeCmd.Flags().StringVar(&encodeGroup, "group", "", "FIFO group id")
	taskEncodeCmd.Flags().Int64Var(&encodeExpiration, "expiration", 0, "Expiration, Unix seconds (default one hour after the KSUID time)")
}

func runTaskEncode(cmd *cobra.Command, args []string) error {
	task := tasks.New(tasks.NewTaskInput{
		Text:          encodeText,
		SenderApp:     encodeSenderApp,
		DoProcessFIFO: encodeFIFO,
		FIFOGroupID:   encodeGroup,
		ExpirationTs:  encodeExpiration,
	})

	encoded, err := task.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
	return err
}

// DecodedTask is the printed form of a decoded task.
type DecodedTask struct {
	PK           string `json:"pk"`
	KSUID        string `json:"ksuid"`
	SenderApp    string `json:"sender_app"`
	Text         string `json:"text"`
	ExpirationTs int64  `json:"expiration_ts"`
}

func runTaskDecode(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	decoded, err := decodeTasks(data)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), decoded)
}

// decodeTasks accepts a batch or a single record. Batches come out in
// delivery order. The PK is the one stored in the record: a decoded task
// does not know whether it was written FIFO.
func decodeTasks(data []byte) ([]DecodedTask, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}

	records := []json.RawMessage{bytes.TrimSpace(data)}
	if _, ok := fields["Records"]; ok {
		event, err := tasks.ParseEvent(data)
		if err != nil {
			return nil, err
		}
		records = event.Records
	}

	decoded, err := tasks.CollectFromEvent(tasks.Event{Records: records})
	if err != nil {
		return nil, err
	}

	out := make([]DecodedTask, len(decoded))
	for i, task := range decoded {
		out[i] = DecodedTask{
			PK:           recordPK(records[i]),
			KSUID:        task.KSUID.String(),
			SenderApp:    task.SenderApp,
			Text:         task.Text,
			ExpirationTs: task.ExpirationTs,
		}
	}
	slices.SortStableFunc(out, func(a, b DecodedTask) int {
		return strings.Compare(a.KSUID, b.KSUID)
	})
	return out, nil
}

func recordPK(raw json.RawMessage) string {
	var record tasks.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return ""
	}
	pk, _ := attrvalue.Map(record.Change.NewImage).Get(tasks.AttrPK).(string)
	return pk
}
