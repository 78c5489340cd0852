package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bizassist/internal/logger"
	"bizassist/pkg"

	"github.com/urfave/cli/v3"
)

func (rt *commandEnv) chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "talk to the assistant of a business on the console",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "business", Aliases: []string{"b"}, Usage: "business id", Required: true},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "your name", Value: "Guest"},
			&cli.StringFlag{Name: "conversation", Usage: "continue an existing conversation"},
			&cli.StringFlag{Name: "docs", Usage: "directory of documents to index before chatting"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := newAssistant(ctx, rt.cfg, rt.yamlCfg)
			if err != nil {
				return err
			}
			defer a.Close()

			businessID := c.String("business")
			profile, err := a.profiles.GetProfile(ctx, businessID)
			if err != nil {
				return err
			}
			if dir := c.String("docs"); dir != "" {
				if err := ingestDir(ctx, a, businessID, dir); err != nil {
					return err
				}
			}

			session := &chatSession{
				assistant:      a,
				businessID:     businessID,
				userName:       c.String("name"),
				conversationID: c.String("conversation"),
			}
			fmt.Printf("Chatting with %s. Commands: /new starts a new conversation, /quit exits.\n\n", profile.Name)
			return session.run(ctx, os.Stdin, os.Stdout)
		},
	}
}

// chatSession is one console user talking to one business
type chatSession struct {
	assistant      *assistant
	businessID     string
	userName       string
	conversationID string
}

func (s *chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, ">> ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		input := strings.TrimSpace(line)

		switch input {
		case "":
		case "/quit":
			return nil
		case "/new":
			s.conversationID = ""
			fmt.Fprintln(out, "Started a new conversation.")
		default:
			s.say(ctx, input, out)
		}

		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
	}
}

func (s *chatSession) say(ctx context.Context, message string, out io.Writer) {
	resp, err := s.assistant.processor.HandleTurn(ctx, pkg.TurnRequest{
		BusinessID:     s.businessID,
		ConversationID: s.conversationID,
		UserName:       s.userName,
		Message:        message,
	})
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n\n", err)
		return
	}
	s.conversationID = resp.ConversationID

	fmt.Fprintf(out, "%s\n", resp.Reply)
	for _, action := range resp.ToolActions {
		line := fmt.Sprintf("  [%s] %s", action.Outcome.Status, action.ToolName)
		if action.Outcome.Reason != "" {
			line += ": " + action.Outcome.Reason
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "  (%s, answered by %s, %dms)\n\n", resp.Intent, resp.AnsweredBy, resp.ProcessingTime)
}

// ingestDir indexes every supported document directly inside dir. Nothing is
// announced to the business, the documents are only loaded for this session.
func ingestDir(ctx context.Context, a *assistant, businessID, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read documents directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !a.ingestor.Supports(e.Name()) || filepath.Ext(e.Name()) == "" {
			continue
		}
		documentID, n, err := a.ingestor.IngestFile(ctx, businessID, filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		logger.Debug().Str("document_id", documentID).Int("chunks", n).Msg("Document ready")
	}
	return nil
}
