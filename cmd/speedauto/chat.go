package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/chat/handler"
	"github.com/speedauto/speedauto-assistant-go/internal/config"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Conversa com o assistente pelo terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// logs em stderr sujariam o prompt: só warn pra cima
			logger := observability.NewLogger("warn", "speedauto-chat")
			defer logger.Sync()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("wire application: %w", err)
			}
			defer a.Close(logger)

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return runREPL(ctx, a.chat, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "id da sessão (gerado quando vazio)")
	return cmd
}

// runREPL reads one message per line until EOF or sair/exit/quit. A reply
// carrying a confirmation token arms the next line as its answer.
func runREPL(ctx context.Context, chat handler.Responder, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "SpeedAuto Assistente. Digite 'sair' para encerrar.")

	scanner := bufio.NewScanner(in)
	pending := ""
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			continue
		}
		switch strings.ToLower(msg) {
		case "sair", "exit", "quit":
			fmt.Fprintln(out, "Até mais!")
			return nil
		}

		reply := chat.Respond(ctx, domain.TurnRequest{
			Message:            msg,
			SessionID:          sessionID,
			ConfirmationAnswer: pending,
		})
		fmt.Fprintln(out, reply)

		pending = ""
		if strings.Contains(reply, domain.ConfirmPrefix) {
			pending = reply
		}
	}
}
