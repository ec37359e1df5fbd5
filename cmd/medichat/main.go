// The medichat binary runs the conversational medication assistant: it
// launches the configured tool providers, connects the model backend and
// serves an interactive query loop on the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/assistants"
	"github.com/effective-security/medichat/callbacks"
	"github.com/effective-security/medichat/chatmodel"
	"github.com/effective-security/medichat/hub"
	"github.com/effective-security/medichat/llmfactory"
	"github.com/effective-security/medichat/pkg/llms"
	"github.com/effective-security/medichat/router"
	"github.com/effective-security/medichat/store"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

func main() {
	hubCfgFile := flag.String("cfg", "medichat.yaml", "provider configuration file")
	llmCfgFile := flag.String("llm-cfg", "llm.yaml", "model provider configuration file")
	model := flag.String("model", "", "model name, the configured default when empty")
	redisURL := flag.String("redis", "", "redis URL for persistent chat history, in-memory when empty")
	verbose := flag.Bool("verbose", false, "print tool and model activity")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}

	if err := run(*hubCfgFile, *llmCfgFile, *model, *redisURL, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "medichat: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(hubCfgFile, llmCfgFile, modelName, redisURL string, verbose bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	factory, err := llmfactory.Load(llmCfgFile)
	if err != nil {
		return err
	}

	var llmModel llms.Model
	if modelName != "" {
		llmModel, err = factory.ModelByName(modelName)
	} else {
		llmModel, err = factory.DefaultModel()
	}
	if err != nil {
		return err
	}

	hubCfg, err := hub.LoadConfig(hubCfgFile)
	if err != nil {
		return err
	}
	if len(hubCfg.Servers) == 0 {
		return errors.New("no tool providers configured")
	}

	h := hub.New(hubCfg)
	if err := h.Open(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
	}()

	st, err := newStore(ctx, redisURL)
	if err != nil {
		return err
	}

	opts := []assistants.Option{
		assistants.WithStore(st),
		assistants.WithResetHistory(h.HistoryMode() == hub.HistoryReset),
	}
	if verbose {
		opts = append(opts, assistants.WithCallback(callbacks.NewPrinter(os.Stderr, callbacks.ModeVerbose)))
	}

	rtr := router.New(h.Registry(), h)
	assistant := assistants.NewAssistant(llmModel, rtr, h.Registry(), opts...)

	chatCtx := chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("", nil))
	return repl(chatCtx, assistant, rtr)
}

func newStore(ctx context.Context, redisURL string) (store.MessageStore, error) {
	if redisURL == "" {
		return store.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.WithMessage(err, "failed to connect to redis")
	}
	return store.NewRedisStore(client, "medichat"), nil
}

func repl(ctx context.Context, assistant *assistants.Assistant, rtr *router.Router) error {
	fmt.Println("medichat: ask about over-the-counter medications.")
	fmt.Println("Use @<topic> to read a cached papers resource, 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("medichat> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit", line == "exit":
			return nil
		case strings.HasPrefix(line, "@"):
			res, err := rtr.ReadResource(ctx, "papers://"+strings.TrimPrefix(line, "@"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
				continue
			}
			fmt.Println(res.JoinedText())
		default:
			answer, err := assistant.SubmitQuery(ctx, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
				continue
			}
			fmt.Println(answer)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
