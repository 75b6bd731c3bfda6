package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	ledger "credpass/internal/ledger/models"
	"credpass/internal/platform/kafka/producer"
)

// publishBatch bounds the records sent per produce call.
const publishBatch = 500

func newPublishCmd(opts *options) *cobra.Command {
	var (
		brokers string
		topic   string
	)

	cmd := &cobra.Command{
		Use:   "publish <events.jsonl>",
		Short: "Publish a JSON-lines event history to the ledger events topic",
		Long: "Each line is checked with the strict event decoder and sent keyed by " +
			"its sequence number. Every record goes to one partition so the " +
			"projector receives them in ledger order.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open events file: %w", err)
			}
			defer f.Close()

			p, err := producer.New(producer.Config{Brokers: brokers}, opts.logger(cmd))
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck // flushes on close

			var (
				batch []*producer.Message
				sent  int
			)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := p.Produce(ctx, batch...); err != nil {
					return err
				}
				sent += len(batch)
				batch = batch[:0]
				return nil
			}

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 64*1024), 1<<20)
			line := 0
			for scanner.Scan() {
				line++
				data := bytes.TrimSpace(scanner.Bytes())
				if len(data) == 0 {
					continue
				}
				ev, err := ledger.Decode(data)
				if err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				batch = append(batch, &producer.Message{
					Topic: topic,
					Key:   []byte(partitionKey),
					Value: bytes.Clone(data),
					Headers: map[string]string{
						"seq":  strconv.FormatUint(ev.Seq, 10),
						"kind": string(ev.Kind),
					},
				})
				if len(batch) >= publishBatch {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			if err := flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d events to %s\n", sent, topic)
			return nil
		},
	}
	cmd.Flags().StringVar(&brokers, "brokers", opts.cfg.Kafka.Brokers, "comma-separated Kafka brokers")
	cmd.Flags().StringVar(&topic, "topic", opts.cfg.Kafka.Topic, "ledger events topic")
	return cmd
}

// partitionKey pins every ledger event to one partition.
const partitionKey = "ledger"
