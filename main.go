package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dstgpt/config"
	convo "dstgpt/llm/chat"
	"dstgpt/llm/knowledge"
	"dstgpt/llm/pricing"
	"dstgpt/llm/providers"
	"dstgpt/llm/rag"
	"dstgpt/logger"
	"dstgpt/tui/chat"

	tea "github.com/charmbracelet/bubbletea"
	clc "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	"github.com/cloudwego/eino/callbacks"
	"github.com/coze-dev/cozeloop-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() {
	// Load .env file if exists
	_ = godotenv.Load()
}

func main() {
	configPath := flag.String("config", "config/configs.json", "path of the configuration document")
	question := flag.String("ask", "", "answer one question and exit")
	ingest := flag.String("ingest", "", "add a file or directory to the knowledge base and exit")
	flag.Parse()

	if err := run(*configPath, *question, *ingest); err != nil {
		fmt.Fprintln(os.Stderr, "dstgpt:", err)
		os.Exit(1)
	}
}

func run(configPath, question, ingest string) error {
	ctx := context.Background()
	interactive := question == "" && ingest == ""

	cfg, err := config.Open(configPath)
	if err != nil {
		return err
	}
	defer cfg.Close()
	settings := cfg.Settings()

	// 全屏界面占用终端，日志写到文件
	logOpts := logger.Options{Level: os.Getenv("LOG_LEVEL")}
	if interactive {
		logOpts.FilePath = "log/dstgpt.log"
	}
	if err := logger.Init(logOpts); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	closeTracing := setupTracing(ctx)
	defer closeTracing()

	prices, err := pricing.Load(settings.PricingFilepath)
	if err != nil {
		logger.Warn("pricing file unusable, using built-in prices", zap.Error(err))
		prices = pricing.Default()
	}

	kb := knowledge.New(cfg, log.Named("knowledge"))
	defer kb.Close()

	pipeline, err := rag.New(ctx, cfg, kb, providers.EnvFactory{}, log.Named("rag"))
	if err != nil {
		// 模型不可用时仍然启动，界面里会显示原因
		logger.Warn("pipeline started degraded", zap.Error(err))
	}

	mode := func() rag.Mode { return rag.Mode(cfg.Settings().RAG) }
	session := convo.NewSession(ctx, pipeline, prices, mode, log.Named("chat"))
	defer session.Close()

	switch {
	case ingest != "":
		report, err := pipeline.Ingest(ctx, ingest)
		fmt.Printf("Ingested %d file(s), %d chunk(s).\n", len(report.Files), report.Chunks)
		return err
	case question != "":
		return askOnce(session, question)
	}

	model := chat.InitialModel(ctx, session, cfg, pipeline)
	program := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := program.Run(); err != nil {
		logger.Error("ui stopped", zap.Error(err))
		return err
	}
	return nil
}

// askOnce 非交互模式：回答一个问题后打印并退出
func askOnce(session *convo.Session, question string) error {
	err := session.Ask(question)
	for _, msg := range session.History() {
		switch msg.Role {
		case convo.RoleAssistant:
			fmt.Printf("[%s] %s\n\n(%s, %d tokens", msg.Side, strings.TrimSpace(msg.Content), msg.Model, msg.Usage.TotalTokens)
			if msg.CostKnown {
				fmt.Printf(", $%.5f", msg.Cost)
			}
			fmt.Print(")\n\n")
		case convo.RoleSystem:
			fmt.Fprintln(os.Stderr, msg.Content)
		}
	}
	return err
}

// setupTracing 配置了 CozeLoop 凭据时上报 eino 回调
func setupTracing(ctx context.Context) func() {
	token := os.Getenv("COZELOOP_API_TOKEN")
	workspaceID := os.Getenv("COZELOOP_WORKSPACE_ID")
	if token == "" || workspaceID == "" {
		return func() {}
	}

	client, err := cozeloop.NewClient(
		cozeloop.WithAPIToken(token),
		cozeloop.WithWorkspaceID(workspaceID),
	)
	if err != nil {
		logger.Warn("cozeloop disabled", zap.Error(err))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(clc.NewLoopHandler(client))
	logger.Info("cozeloop tracing enabled")

	return func() {
		// 给异步上报留一点时间
		time.Sleep(time.Second)
		client.Close(ctx)
	}
}
