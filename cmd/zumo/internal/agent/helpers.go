package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/zumo/cmd/zumo/internal"
	"github.com/tinyland-inc/zumo/pkg/logger"
)

type generator interface {
	Generate(ctx context.Context, prompt string) string
}

func agentCmd(ctx context.Context, message, model string, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
	if model != "" {
		cfg.Provider.Model = model
	}
	if ctx == nil {
		ctx = context.Background()
	}

	gen, err := internal.NewResponder(cfg)
	if err != nil {
		return err
	}
	logger.InfoCF("agent", "Generator ready", map[string]any{
		"provider": cfg.Provider.Kind,
		"model":    gen.Model(),
	})

	if message != "" {
		fmt.Printf("\n%s %s\n", internal.Logo, gen.Generate(ctx, message))
		return nil
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", internal.Logo)
	interactiveMode(ctx, gen)
	return nil
}

func interactiveMode(ctx context.Context, gen generator) {
	prompt := fmt.Sprintf("%s You: ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".zumo_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, gen, os.Stdin, os.Stdout)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		fmt.Printf("\n%s %s\n\n", internal.Logo, gen.Generate(ctx, input))
	}
}

func simpleInteractiveMode(ctx context.Context, gen generator, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s You: ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		fmt.Fprintf(out, "\n%s %s\n\n", internal.Logo, gen.Generate(ctx, input))
	}
}
