package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/unicorn-labs/unicorn-go/internal/dispatch"
	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/postgres"
	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
	"github.com/unicorn-labs/unicorn-go/internal/platform/workflow"
	pgrepo "github.com/unicorn-labs/unicorn-go/internal/repo/postgres"
	"github.com/unicorn-labs/unicorn-go/internal/service/lifecycle"
	"github.com/unicorn-labs/unicorn-go/internal/service/tokens"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "unicornctl",
		Usage: "Operator CLI for the contracts and properties services",
		Commands: []*cli.Command{
			migrateCommand(),
			contractsCommand(),
			tokensCommand(),
			dlqCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return postgres.Open(ctx, cfg)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := pgrepo.RunMigrations(ctx, db); err != nil {
				return err
			}
			return printJSON(c.Root().Writer, map[string]string{"status": "migrated"})
		},
	}
}

func contractsCommand() *cli.Command {
	return &cli.Command{
		Name:  "contracts",
		Usage: "Submit and inspect contracts",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Queue a contract create request",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "property-id", Required: true, Usage: "country/city/street/number"},
					&cli.StringFlag{Name: "seller", Required: true},
					&cli.StringFlag{Name: "country", Required: true},
					&cli.StringFlag{Name: "city", Required: true},
					&cli.StringFlag{Name: "street", Required: true},
					&cli.IntFlag{Name: "number", Required: true},
					&cli.StringFlag{Name: "contract-id", Usage: "client supplied id for idempotent retries"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					req := lifecycle.CreateRequest{
						PropertyID: c.String("property-id"),
						ContractID: c.String("contract-id"),
						SellerName: c.String("seller"),
						Address: domain.Address{
							Country: c.String("country"),
							City:    c.String("city"),
							Street:  c.String("street"),
							Number:  int(c.Int("number")),
						},
					}
					if err := req.Validate(); err != nil {
						return err
					}
					return enqueueRequest(ctx, c.Root().Writer, dispatch.OpCreate, req)
				},
			},
			{
				Name:  "approve",
				Usage: "Queue a contract approve request",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "property-id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return enqueueRequest(ctx, c.Root().Writer, dispatch.OpApprove, lifecycle.ApproveRequest{PropertyID: c.String("property-id")})
				},
			},
			{
				Name:  "get",
				Usage: "Show the stored contract for a property",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "property-id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					db, err := openDB(ctx)
					if err != nil {
						return err
					}
					defer db.Close()
					contract, err := pgrepo.NewContractStore(db).Get(ctx, domain.NormalizePropertyID(c.String("property-id")))
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, contract)
				},
			},
		},
	}
}

func enqueueRequest(ctx context.Context, w io.Writer, op dispatch.Operation, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := queue.NewStore(db).Enqueue(ctx, queue.QueueContractRequests, map[string]string{queue.AttributeOperation: string(op)}, body)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]string{"message_id": id, "operation": string(op)})
}

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Manage workflow continuation tokens",
		Commands: []*cli.Command{
			{
				Name:  "store",
				Usage: "Store a workflow token; resumes at once if the contract is already approved",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "property-id", Required: true},
					&cli.StringFlag{Name: "token", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := workflow.ConfigFromEnv()
					if err != nil {
						return err
					}
					db, err := openDB(ctx)
					if err != nil {
						return err
					}
					defer db.Close()
					engine, err := workflow.New(cfg, queue.NewStore(db))
					if err != nil {
						return err
					}
					logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
					signal, err := tokens.New(pgrepo.NewContractStore(db), engine, logger).Store(ctx, c.String("property-id"), c.String("token"))
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, map[string]any{"stored": true, "resumed": signal != nil})
				},
			},
		},
	}
}

func dlqCommand() *cli.Command {
	queueFlag := &cli.StringFlag{Name: "queue", Value: queue.QueueContractRequests, Usage: "queue name"}
	return &cli.Command{
		Name:  "dlq",
		Usage: "Inspect and redrive dead-lettered messages",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List dead-lettered messages, newest first",
				Flags: []cli.Flag{
					queueFlag,
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					db, err := openDB(ctx)
					if err != nil {
						return err
					}
					defer db.Close()
					msgs, err := queue.NewStore(db).ListDeadLetters(ctx, c.String("queue"), int(c.Int("limit")))
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, deadLetterViews(msgs))
				},
			},
			{
				Name:  "redrive",
				Usage: "Return dead-lettered messages to their queue",
				Flags: []cli.Flag{
					queueFlag,
					&cli.StringFlag{Name: "message-id", Usage: "redrive a single message; all when empty"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					db, err := openDB(ctx)
					if err != nil {
						return err
					}
					defer db.Close()
					n, err := queue.NewStore(db).Redrive(ctx, c.String("queue"), c.String("message-id"))
					if err != nil {
						return err
					}
					return printJSON(c.Root().Writer, map[string]any{"redriven": n})
				},
			},
		},
	}
}

type deadLetterView struct {
	MessageID    string            `json:"message_id"`
	Queue        string            `json:"queue"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Body         json.RawMessage   `json:"body"`
	ReceiveCount int               `json:"receive_count"`
	LastError    string            `json:"last_error,omitempty"`
}

func deadLetterViews(msgs []queue.Message) []deadLetterView {
	out := make([]deadLetterView, 0, len(msgs))
	for _, m := range msgs {
		body := json.RawMessage(m.Body)
		if !json.Valid(body) {
			quoted, _ := json.Marshal(string(m.Body))
			body = quoted
		}
		out = append(out, deadLetterView{
			MessageID:    m.ID,
			Queue:        m.Queue,
			Attributes:   m.Attributes,
			Body:         body,
			ReceiveCount: m.ReceiveCount,
			LastError:    m.LastError,
		})
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
