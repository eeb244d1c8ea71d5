package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"dstgpt/config"
	convo "dstgpt/llm/chat"
	"dstgpt/llm/knowledge"
)

// ErrUnknownCommand 未知的斜杠命令
var ErrUnknownCommand = errors.New("unknown command")

// Configurer 读写配置
type Configurer interface {
	Settings() config.Settings
	Update(key string, value any) error
}

// Knowledge 知识库与模型状态
type Knowledge interface {
	Ingest(ctx context.Context, path string) (knowledge.IngestReport, error)
	ClearKnowledge(ctx context.Context) error
	Model() string
	Err() error
}

// Conversation 会话操作
type Conversation interface {
	Retry() error
	ClearHistory() error
	Stats() convo.Stats
}

// Command 解析后的斜杠命令
type Command struct {
	Name string
	Arg  string
}

// ParseCommand 解析以 / 开头的输入；普通问题返回 false
func ParseCommand(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return Command{}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return Command{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

const helpText = `Commands:
  /model [name]            show or switch the chat model
  /temperature <0.0-1.0>   set the sampling temperature
  /rag <enabled|disabled|both>
  /prompt [template]       show or set the prompt (needs {context} and {input})
  /vectorstore <dir>       use the index under dir
  /backend <local|redis>   choose the vector store backend
  /topk <n>                number of retrieved chunks
  /ingest <path>           add a file or directory to the knowledge base
  /sources                 list ingested sources
  /clear-knowledge         delete the index and the source list
  /retry                   send the last question again
  /clear                   clear the conversation
  /stats                   tokens and cost of this session
  /quit`

// Commander 执行斜杠命令
type Commander struct {
	cfg  Configurer
	kb   Knowledge
	conv Conversation
}

// NewCommander 创建命令执行器
func NewCommander(cfg Configurer, kb Knowledge, conv Conversation) *Commander {
	return &Commander{cfg: cfg, kb: kb, conv: conv}
}

// Execute 执行命令并返回要展示给用户的文本。
// 配置写入会同步触发模型重建，调用方应在 goroutine 中执行。
func (c *Commander) Execute(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Name {
	case "help":
		return helpText, nil
	case "model":
		if cmd.Arg == "" {
			return fmt.Sprintf("Current model: %s", c.cfg.Settings().BaseModel), nil
		}
		return c.update(config.KeyBaseModel, cmd.Arg, "Model set to "+cmd.Arg)
	case "temperature":
		t, err := strconv.ParseFloat(cmd.Arg, 64)
		if err != nil {
			return "", fmt.Errorf("%w: temperature must be a number between 0.0 and 1.0", config.ErrInvalidValue)
		}
		return c.update(config.KeyTemperature, t, fmt.Sprintf("Temperature set to %.2f", t))
	case "rag":
		if cmd.Arg == "" {
			return fmt.Sprintf("RAG mode: %s", c.cfg.Settings().RAG), nil
		}
		return c.update(config.KeyRAG, strings.ToLower(cmd.Arg), "RAG mode set to "+strings.ToLower(cmd.Arg))
	case "prompt":
		if cmd.Arg == "" {
			return c.cfg.Settings().PromptTemplate, nil
		}
		return c.update(config.KeyPromptTemplate, unescapeNewlines(cmd.Arg), "Prompt template updated")
	case "vectorstore":
		return c.switchVectorstore(cmd.Arg)
	case "backend":
		return c.update(config.KeyVectorstoreBackend, strings.ToLower(cmd.Arg), "Vector store backend set to "+strings.ToLower(cmd.Arg))
	case "topk":
		k, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return "", fmt.Errorf("%w: topk must be a positive integer", config.ErrInvalidValue)
		}
		return c.update(config.KeyTopK, k, fmt.Sprintf("Retrieving %d chunks per question", k))
	case "ingest":
		return c.ingest(ctx, cmd.Arg)
	case "sources":
		sources := c.cfg.Settings().KnowledgeSources
		if len(sources) == 0 {
			return "No knowledge sources ingested yet.", nil
		}
		return "Knowledge sources:\n- " + strings.Join(sources, "\n- "), nil
	case "clear-knowledge":
		if err := c.kb.ClearKnowledge(ctx); err != nil {
			return "", err
		}
		return "Knowledge base cleared.", nil
	case "retry":
		return "", c.conv.Retry()
	case "clear":
		if err := c.conv.ClearHistory(); err != nil {
			return "", err
		}
		return "Conversation cleared.", nil
	case "stats":
		s := c.conv.Stats()
		return fmt.Sprintf("%d questions, %d answers, %d prompt + %d completion tokens, $%.4f",
			s.Questions, s.Answers, s.PromptTokens, s.CompletionTokens, s.Cost), nil
	}
	return "", fmt.Errorf("%w: /%s (try /help)", ErrUnknownCommand, cmd.Name)
}

// update 写入配置；写入成功但模型重建失败时把原因附在回复里
func (c *Commander) update(key string, value any, done string) (string, error) {
	if err := c.cfg.Update(key, value); err != nil {
		return "", err
	}
	if config.IsModelKey(key) {
		if err := c.kb.Err(); err != nil {
			return fmt.Sprintf("%s, but the model is unavailable: %v", done, err), nil
		}
	}
	return done, nil
}

// switchVectorstore 目录和索引文件一起切换
func (c *Commander) switchVectorstore(dir string) (string, error) {
	if dir == "" {
		s := c.cfg.Settings()
		return fmt.Sprintf("Vector store: %s (%s)", s.VectorstoreFilepath, s.VectorstoreBackend), nil
	}
	if err := c.cfg.Update(config.KeyVectorstoreFilepath, filepath.Join(dir, config.DefaultIndexFile)); err != nil {
		return "", err
	}
	return c.update(config.KeyVectorstoreDirectory, dir, "Vector store directory set to "+dir)
}

func (c *Commander) ingest(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: /ingest needs a path", config.ErrInvalidValue)
	}
	report, err := c.kb.Ingest(ctx, path)
	summary := fmt.Sprintf("Ingested %d file(s), %d chunk(s).", len(report.Files), report.Chunks)
	if err != nil {
		if len(report.Files) == 0 {
			return "", err
		}
		return fmt.Sprintf("%s Some files failed: %v", summary, err), nil
	}
	return summary, nil
}

// unescapeNewlines 单行输入框里用 \n 表示换行
func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
