package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/config"
	chatmodel "github.com/vitalog/healthchat/internal/model/chat"
	"github.com/vitalog/healthchat/internal/service/chat"
)

const usage = `命令:
  /new              开始新对话
  /sessions         列出历史会话
  /select <id>      切换到指定会话
  /delete <id>      删除会话
  /records          列出可分析的病历图片
  /attach <id>      选择病历图片作为下一条消息的附件
  /clear            取消附件
  /quit             退出
其余输入作为消息发送`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}

	baseURL := flag.String("base", cfg.Backend.BaseURL, "健康管理后端地址")
	token := flag.String("token", cfg.Backend.Token, "访问令牌")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	opts := []backend.Option{backend.WithTimeout(cfg.Backend.Timeout), backend.WithLogger(logger)}
	if *token != "" {
		opts = append(opts, backend.WithTokenSource(backend.StaticToken(*token)))
	}
	mgr := chat.NewManager(backend.NewClient(*baseURL, opts...), chat.WithLogger(logger))

	if err := mgr.Start(ctx, chat.StartOptions{}); err != nil {
		logger.Warn().Err(err).Msg("start failed")
	}

	repl := &repl{mgr: mgr, out: os.Stdout}
	repl.printMessages(mgr.Messages())
	if err := repl.run(ctx, os.Stdin); err != nil {
		log.Fatal().Err(err).Msg("读取输入失败")
	}
}

type repl struct {
	mgr *chat.Manager
	out io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(r.out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if quit := r.handle(ctx, strings.TrimSpace(scanner.Text())); quit {
			return nil
		}
		fmt.Fprint(r.out, "> ")
	}
	return scanner.Err()
}

// handle executes one input line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, usage)
	case "/new":
		r.mgr.NewConversation()
		r.printMessages(r.mgr.Messages())
	case "/sessions":
		if err := r.mgr.RefreshSessions(ctx); err != nil {
			fmt.Fprintf(r.out, "刷新会话失败: %v\n", err)
		}
		r.printSessions()
	case "/select":
		if err := r.mgr.SelectSession(ctx, arg); err != nil {
			fmt.Fprintf(r.out, "加载会话失败: %v\n", err)
			return false
		}
		r.printMessages(r.mgr.Messages())
	case "/delete":
		if err := r.mgr.DeleteSession(ctx, arg); err != nil {
			fmt.Fprintf(r.out, "删除会话失败: %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, "已删除")
	case "/records":
		for _, rec := range r.mgr.Records() {
			fmt.Fprintf(r.out, "  %s  %s (%s)\n", rec.ID, rec.Title, rec.RecordDate)
		}
	case "/attach":
		ref, err := r.mgr.PickAttachment(arg)
		if err != nil {
			fmt.Fprintf(r.out, "无法选择附件: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "已选择附件: %s\n", ref.Title)
	case "/clear":
		r.mgr.ClearAttachment()
	default:
		fmt.Fprintln(r.out, usage)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	before := len(r.mgr.Messages())
	outcome := r.mgr.Send(ctx, text)

	switch outcome {
	case chat.OutcomeRejectedBusy:
		fmt.Fprintln(r.out, "上一条消息仍在发送中")
		return
	case chat.OutcomeRejectedEmpty:
		return
	case chat.OutcomeStale:
		fmt.Fprintln(r.out, "会话已切换，回复已丢弃")
		return
	}

	msgs := r.mgr.Messages()
	if before < len(msgs) {
		// Skip the echoed user turn.
		r.printMessages(msgs[before+1:])
	}
}

func (r *repl) printSessions() {
	active := r.mgr.ActiveSessionID()
	for _, s := range r.mgr.Sessions() {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s  %s\n", marker, s.ID, s.Title)
	}
}

func (r *repl) printMessages(msgs []chatmodel.Message) {
	for _, m := range msgs {
		who := "助手"
		if m.Role == chatmodel.RoleUser {
			who = "我"
		}
		suffix := ""
		if m.Delivery == chatmodel.DeliveryFailed {
			suffix = " (发送失败)"
		}
		fmt.Fprintf(r.out, "[%s] %s%s\n", who, m.Content, suffix)
	}
}
